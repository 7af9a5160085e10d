package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestPrometheusCollector_Downloads checks download counters by category.
func TestPrometheusCollector_Downloads(t *testing.T) {
	t.Parallel()

	pc := NewPrometheusCollector("test")

	pc.DownloadCompleted("libraries", 100)
	pc.DownloadCompleted("libraries", 50)
	pc.DownloadCompleted("assets", 7)
	pc.DownloadRetried("assets")
	pc.DownloadFailed("assets")

	expected := `
		# HELP test_downloaded_bytes_total Bytes downloaded by category
		# TYPE test_downloaded_bytes_total counter
		test_downloaded_bytes_total{category="assets"} 7
		test_downloaded_bytes_total{category="libraries"} 150
	`
	require.NoError(t, testutil.GatherAndCompare(pc.Registry(), strings.NewReader(expected), "test_downloaded_bytes_total"))
	require.InDelta(t, 1, testutil.ToFloat64(pc.downloadRetries.WithLabelValues("assets")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(pc.downloadFailures.WithLabelValues("assets")), 0)
}

// TestPrometheusCollector_Processes checks process lifecycle metrics.
func TestPrometheusCollector_Processes(t *testing.T) {
	t.Parallel()

	pc := NewPrometheusCollector("test")

	pc.ProcessStarted("survival")
	pc.ProcessesRunning(1)
	pc.ProcessExited("survival", 0, false)
	pc.ProcessExited("survival", -1, true)
	pc.ProcessesRunning(0)

	require.InDelta(t, 1, testutil.ToFloat64(pc.processStarts.WithLabelValues("survival")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(pc.processExits.WithLabelValues("survival", "-1", "closed")), 0)
	require.InDelta(t, 0, testutil.ToFloat64(pc.processesRunning), 0)
}

// TestPrometheusCollector_CacheAndFetch checks lookup and fetch metrics.
func TestPrometheusCollector_CacheAndFetch(t *testing.T) {
	t.Parallel()

	pc := NewPrometheusCollector("")

	pc.CacheLookup("raw", true)
	pc.CacheLookup("raw", false)
	pc.CacheLookup("raw", false)
	pc.SourceFetch("vanilla", 10*time.Millisecond, nil)
	pc.SourceFetch("vanilla", time.Millisecond, errors.New("boom"))

	require.InDelta(t, 2, testutil.ToFloat64(pc.cacheLookups.WithLabelValues("raw", "miss")), 0)

	count, err := testutil.GatherAndCount(pc.Registry(), "bundle_launcher_source_fetch_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

// TestPrometheusCollector_Handler serves the text exposition format.
func TestPrometheusCollector_Handler(t *testing.T) {
	t.Parallel()

	pc := NewPrometheusCollector("test")
	pc.ProcessesRunning(3)

	recorder := httptest.NewRecorder()
	pc.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "test_processes_running 3")
}

// TestNoop accepts every call.
func TestNoop(t *testing.T) {
	t.Parallel()

	c := OrNoop(nil)
	c.CacheLookup("derived", true)
	c.ProcessExited("x", 1, false)
	require.NotNil(t, NewNoop())
}
