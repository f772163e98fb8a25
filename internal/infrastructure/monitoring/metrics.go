package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Worker metrics
	WorkersActive prometheus.Gauge
	WorkersTotal  prometheus.Counter
	BootDuration  *prometheus.HistogramVec
	BootFailures  *prometheus.CounterVec

	// Dependency metrics
	Installs *prometheus.CounterVec

	// Boundary metrics
	Messages           *prometheus.CounterVec
	ProtocolViolations *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests      int64   `json:"total_requests"`
	TotalErrors        int64   `json:"total_errors"`
	ActiveWorkers      int64   `json:"active_workers"`
	TotalWorkers       int64   `json:"total_workers"`
	FailedBoots        int64   `json:"failed_boots"`
	ProtocolViolations int64   `json:"protocol_violations"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docworker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docworker_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Worker metrics
		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docworker_workers_active",
				Help: "Number of running workers",
			},
		),
		WorkersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docworker_workers_total",
				Help: "Total number of workers started",
			},
		),
		BootDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docworker_boot_stage_duration_seconds",
				Help:    "Duration of worker boot stages in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
		BootFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docworker_boot_failures_total",
				Help: "Total number of fatal boot failures",
			},
			[]string{"kind"},
		),

		// Dependency metrics
		Installs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docworker_dependency_installs_total",
				Help: "Total number of dependency installs",
			},
			[]string{"outcome"},
		),

		// Boundary metrics
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docworker_boundary_messages_total",
				Help: "Total number of boundary messages",
			},
			[]string{"direction", "type"},
		),
		ProtocolViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docworker_protocol_violations_total",
				Help: "Total number of dropped out-of-protocol messages",
			},
			[]string{"reason"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docworker_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
	}

	// System metrics
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "docworker_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry all metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// WorkerStarted records a new worker
func (m *Metrics) WorkerStarted() {
	m.WorkersActive.Inc()
	m.WorkersTotal.Inc()

	m.mu.Lock()
	m.snapshot.ActiveWorkers++
	m.snapshot.TotalWorkers++
	m.mu.Unlock()
}

// WorkerStopped records a finished worker
func (m *Metrics) WorkerStopped() {
	m.WorkersActive.Dec()

	m.mu.Lock()
	m.snapshot.ActiveWorkers--
	m.mu.Unlock()
}

// RecordBootStage records the duration of one boot stage
func (m *Metrics) RecordBootStage(stage string, duration time.Duration) {
	m.BootDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordBootFailure records a fatal boot failure
func (m *Metrics) RecordBootFailure(kind string) {
	m.BootFailures.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.snapshot.FailedBoots++
	m.mu.Unlock()
}

// RecordInstalls records dependency install outcomes
func (m *Metrics) RecordInstalls(installed, failed int) {
	m.Installs.WithLabelValues("installed").Add(float64(installed))
	m.Installs.WithLabelValues("failed").Add(float64(failed))
}

// RecordMessage records a boundary message
func (m *Metrics) RecordMessage(direction, msgType string) {
	m.Messages.WithLabelValues(direction, msgType).Inc()
}

// RecordProtocolViolation records a dropped message
func (m *Metrics) RecordProtocolViolation(reason string) {
	m.ProtocolViolations.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.ProtocolViolations++
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
