package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordImport("remote", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.ImportsTotal.WithLabelValues("remote", "completed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.ImportsTotal.WithLabelValues("remote", "completed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		m.RecordImport("local", false)
		m.ObserveStage("extract", time.Second, errors.New("boom"))
		m.AddDownloadedBytes(10)
		m.SetQueueDepth(1)
		m.SetCatalogEntries(2)
		m.SetTransfersActive(1)
		m.IncTransfersStarted("install")
		m.SetKeepActive(true)
		m.IncWSConnections()
		m.DecWSConnections()
		NewTimer(m, "acquire").Stop(nil)
	})
	assert.Equal(t, Snapshot{}, m.GetSnapshot())
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordHTTPRequest("GET", "/library/apps", "200", time.Millisecond)
	m.RecordHTTPRequest("POST", "/library/download", "503", time.Millisecond)
	m.RecordImport("local", true)
	m.RecordImport("remote", false)
	m.AddDownloadedBytes(2048)
	m.AddDownloadedBytes(-5)
	m.SetTransfersActive(3)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(1), snap.ImportsOK)
	assert.Equal(t, int64(1), snap.ImportsFailed)
	assert.Equal(t, int64(2048), snap.DownloadedBytes)
	assert.Equal(t, int64(3), snap.ActiveTransfers)
}

func TestTimerRecordsFailures(t *testing.T) {
	m := NewMetrics()

	NewTimer(m, "register").Stop(nil)
	NewTimer(m, "register").Stop(errors.New("disk full"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageFailures.WithLabelValues("register")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestKeepActiveGauge(t *testing.T) {
	m := NewMetrics()

	m.SetKeepActive(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.KeepActive))
	m.SetKeepActive(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.KeepActive))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/library/apps/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	router.GET("/metrics", Handler(m))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/library/apps/abc", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/library/apps/:id", "404")))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "library_http_requests_total")
}
