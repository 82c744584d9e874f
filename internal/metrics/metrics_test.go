package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadMetrics(t *testing.T) {
	m := New()

	m.DownloadStarted()
	m.DownloadStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveDownloads))

	m.DownloadFinished("complete", 1024, 1.5)
	m.DownloadFinished("cancelled", 0, 0.1)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveDownloads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.DownloadedBytes))
}

func TestExtractionAndRemoteMetrics(t *testing.T) {
	m := New()
	m.ExtractionFinished("completed", 150)
	m.ExtractionFinished("aborted", 0)
	m.RemoteOp("list", "ok")
	m.RemoteOp("list", "NotFoundError")

	assert.Equal(t, 150.0, testutil.ToFloat64(m.ExtractedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteOpsTotal.WithLabelValues("list", "NotFoundError")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DownloadStarted()
		m.DownloadFinished("error", 10, 1)
		m.ExtractionFinished("failed", 0)
		m.RemoteOp("test", "ok")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.DownloadStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rshop_active_downloads 1")
}
