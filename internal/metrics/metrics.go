// Package metrics collects counters from the metadata, install and
// supervision layers. Components receive a Collector; the no-op collector is
// used unless the supervisor daemon exposes Prometheus metrics.
package metrics

import "time"

// Collector receives measurements from the core components.
type Collector interface {
	// CacheLookup records a hit or miss in the raw or derived metadata cache.
	CacheLookup(tier string, hit bool)
	// SourceFetch records one raw document fetch by a source adapter.
	SourceFetch(source string, duration time.Duration, err error)
	// DownloadCompleted records one successful transfer.
	DownloadCompleted(category string, bytes int64)
	// DownloadRetried records a failed attempt that will be retried.
	DownloadRetried(category string)
	// DownloadFailed records a transfer that exhausted its attempts.
	DownloadFailed(category string)
	// ProcessStarted records a successful spawn.
	ProcessStarted(instance string)
	// ProcessExited records an observed exit; closed is true for manual closes.
	ProcessExited(instance string, exitCode int, closed bool)
	// ProcessesRunning sets the number of live registry records.
	ProcessesRunning(count int)
}

// noopCollector ignores every measurement.
type noopCollector struct{}

func (noopCollector) CacheLookup(string, bool)                 {}
func (noopCollector) SourceFetch(string, time.Duration, error) {}
func (noopCollector) DownloadCompleted(string, int64)          {}
func (noopCollector) DownloadRetried(string)                   {}
func (noopCollector) DownloadFailed(string)                    {}
func (noopCollector) ProcessStarted(string)                    {}
func (noopCollector) ProcessExited(string, int, bool)          {}
func (noopCollector) ProcessesRunning(int)                     {}

// NewNoop returns a collector that discards everything.
func NewNoop() Collector { //nolint:ireturn // Callers only need the interface.
	return noopCollector{}
}

// OrNoop returns c, or the no-op collector when c is nil.
func OrNoop(c Collector) Collector { //nolint:ireturn // Callers only need the interface.
	if c == nil {
		return noopCollector{}
	}

	return c
}
