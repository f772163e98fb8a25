package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWorkers struct {
	infos []ws.Info
}

func (f *fakeWorkers) Active() int     { return len(f.infos) }
func (f *fakeWorkers) List() []ws.Info { return f.infos }

type fakeHosts struct{}

func (fakeHosts) Hosts() []resilience.TargetState {
	return []resilience.TargetState{{Target: "cdn.example.org", State: "open"}}
}

func setup(t *testing.T, logger *logging.Logger) (*gin.Engine, *monitoring.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics()
	workers := &fakeWorkers{infos: []ws.Info{{
		Connection: "conn_01",
		Session:    "sess_01",
		State:      "linked",
		Connected:  time.Unix(1_700_000_000, 0).UTC(),
	}}}
	h := NewHandlers(workers, fakeHosts{}, metrics, logger)

	router := gin.New()
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/workers", h.ListWorkers)
	router.GET("/metrics/json", h.Metrics)
	router.POST("/logs", h.StreamLogs)
	router.GET("/admin/log-level", h.GetLogLevel)
	router.PUT("/admin/log-level", h.SetLogLevel)
	return router, metrics
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRootAndHealth(t *testing.T) {
	router, metrics := setup(t, logging.Nop())
	metrics.WorkerStarted()

	w := do(router, "GET", "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, decode(t, w)["version"])

	w = do(router, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["workers"])
	assert.Contains(t, body, "metrics")
	hosts := body["package_hosts"].([]any)
	assert.Equal(t, "open", hosts[0].(map[string]any)["state"])
}

func TestListWorkers(t *testing.T) {
	router, _ := setup(t, logging.Nop())

	w := do(router, "GET", "/workers", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	workers := body["workers"].([]any)
	first := workers[0].(map[string]any)
	assert.Equal(t, "sess_01", first["session"])
	assert.Equal(t, "linked", first["state"])
}

func TestMetricsJSON(t *testing.T) {
	router, metrics := setup(t, logging.Nop())
	metrics.RecordInstalls(2, 1)

	w := do(router, "GET", "/metrics/json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uptime_seconds")
}

func TestLogLevel(t *testing.T) {
	logger, err := logging.New(logging.Config{Level: "info", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	router, _ := setup(t, logger)

	w := do(router, "GET", "/admin/log-level", "")
	assert.Equal(t, "info", decode(t, w)["level"])

	w = do(router, "PUT", "/admin/log-level", `{"level":"debug"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "debug", decode(t, w)["level"])
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	w = do(router, "PUT", "/admin/log-level", `{"level":"chatty"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, "PUT", "/admin/log-level", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router, _ := setup(t, logging.Wrap(zap.New(core)))

	body := `{"source":"view","entries":[
		{"level":"error","message":"Render failed","session":"sess_01","context":{"model":"p1002","attempt":2}},
		{"level":"verbose","message":"Mounted"}
	]}`
	w := do(router, "POST", "/logs", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["entries_received"])

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "view", entries[0].LoggerName)
	assert.Equal(t, "sess_01", entries[0].ContextMap()["session"])
	assert.Equal(t, "p1002", entries[0].ContextMap()["model"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestStreamLogsRejectsBadBatches(t *testing.T) {
	router, _ := setup(t, logging.Nop())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"source":`, http.StatusBadRequest},
		{"wrong source", `{"source":"ui","entries":[{"message":"x"}]}`, http.StatusBadRequest},
		{"empty", `{"source":"view","entries":[]}`, http.StatusBadRequest},
		{"too many", `{"source":"view","entries":[` + strings.TrimSuffix(strings.Repeat(`{"message":"x"},`, maxLogEntries+1), ",") + `]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(router, "POST", "/logs", tt.body).Code)
		})
	}
}
