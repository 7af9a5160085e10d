package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector on a private Prometheus registry.
type PrometheusCollector struct {
	cacheLookups     *prometheus.CounterVec
	sourceFetches    *prometheus.HistogramVec
	downloadedFiles  *prometheus.CounterVec
	downloadedBytes  *prometheus.CounterVec
	downloadRetries  *prometheus.CounterVec
	downloadFailures *prometheus.CounterVec
	processStarts    *prometheus.CounterVec
	processExits     *prometheus.CounterVec
	processesRunning prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusCollector registers every metric under namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "bundle_launcher"
	}

	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
	}

	pc.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_lookups_total",
			Help:      "Metadata cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	pc.sourceFetches = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of raw source document fetches",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source", "status"},
	)

	pc.downloadedFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_files_total",
			Help:      "Files downloaded by category",
		},
		[]string{"category"},
	)

	pc.downloadedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes downloaded by category",
		},
		[]string{"category"},
	)

	pc.downloadRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Failed download attempts that were retried",
		},
		[]string{"category"},
	)

	pc.downloadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_failures_total",
			Help:      "Downloads that exhausted every attempt",
		},
		[]string{"category"},
	)

	pc.processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_starts_total",
			Help:      "Client processes started per instance",
		},
		[]string{"instance"},
	)

	pc.processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Client process exits per instance, exit code and reason",
		},
		[]string{"instance", "exit_code", "reason"},
	)

	pc.processesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes_running",
			Help:      "Client processes currently registered",
		},
	)

	pc.registry.MustRegister(
		pc.cacheLookups,
		pc.sourceFetches,
		pc.downloadedFiles,
		pc.downloadedBytes,
		pc.downloadRetries,
		pc.downloadFailures,
		pc.processStarts,
		pc.processExits,
		pc.processesRunning,
	)

	return pc
}

// Registry exposes the underlying registry for tests and custom exporters.
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// Handler serves the registry in the Prometheus text format.
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}

// CacheLookup implements Collector.
func (pc *PrometheusCollector) CacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	pc.cacheLookups.WithLabelValues(tier, result).Inc()
}

// SourceFetch implements Collector.
func (pc *PrometheusCollector) SourceFetch(source string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	pc.sourceFetches.WithLabelValues(source, status).Observe(duration.Seconds())
}

// DownloadCompleted implements Collector.
func (pc *PrometheusCollector) DownloadCompleted(category string, bytes int64) {
	pc.downloadedFiles.WithLabelValues(category).Inc()
	pc.downloadedBytes.WithLabelValues(category).Add(float64(bytes))
}

// DownloadRetried implements Collector.
func (pc *PrometheusCollector) DownloadRetried(category string) {
	pc.downloadRetries.WithLabelValues(category).Inc()
}

// DownloadFailed implements Collector.
func (pc *PrometheusCollector) DownloadFailed(category string) {
	pc.downloadFailures.WithLabelValues(category).Inc()
}

// ProcessStarted implements Collector.
func (pc *PrometheusCollector) ProcessStarted(instance string) {
	pc.processStarts.WithLabelValues(instance).Inc()
}

// ProcessExited implements Collector.
func (pc *PrometheusCollector) ProcessExited(instance string, exitCode int, closed bool) {
	reason := "exited"
	if closed {
		reason = "closed"
	}

	pc.processExits.WithLabelValues(instance, strconv.Itoa(exitCode), reason).Inc()
}

// ProcessesRunning implements Collector.
func (pc *PrometheusCollector) ProcessesRunning(count int) {
	pc.processesRunning.Set(float64(count))
}
