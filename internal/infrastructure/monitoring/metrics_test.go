package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolated(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordProtocolViolation("patch_before_link")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ProtocolViolations.WithLabelValues("patch_before_link")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ProtocolViolations.WithLabelValues("patch_before_link")))
}

func TestWorkerLifecycle(t *testing.T) {
	m := NewMetrics()

	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped()
	m.RecordBootFailure("execution")
	m.RecordInstalls(2, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkersActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkersTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Installs.WithLabelValues("installed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Installs.WithLabelValues("failed")))

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.ActiveWorkers)
	assert.Equal(t, int64(2), s.TotalWorkers)
	assert.Equal(t, int64(1), s.FailedBoots)
}

func TestTimer(t *testing.T) {
	m := NewMetrics()

	timer := NewTimer(m, "load")
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.Stop(), time.Duration(0))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BootDuration))

	// nil collector
	assert.NotPanics(t, func() { NewTimer(nil, "load").Stop() })
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, int64(1), m.Snapshot().TotalErrors)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docworker_http_requests_total")
	assert.Contains(t, w.Body.String(), "docworker_uptime_seconds")
}
