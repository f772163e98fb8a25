package http

import (
	"net/http"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/ws"
	"github.com/gin-gonic/gin"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// WorkerLister reports the live worker connections
type WorkerLister interface {
	Active() int
	List() []ws.Info
}

// HostLister reports the health of remote package hosts
type HostLister interface {
	Hosts() []resilience.TargetState
}

// Handlers contains all HTTP handlers
type Handlers struct {
	workers WorkerLister
	hosts   HostLister
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandlers creates a new handler set. hosts may be nil.
func NewHandlers(workers WorkerLister, hosts HostLister, metrics *monitoring.Metrics, logger *logging.Logger) *Handlers {
	return &Handlers{
		workers: workers,
		hosts:   hosts,
		metrics: metrics,
		logger:  logger,
	}
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "docworker",
		"version": Version,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"workers": h.workers.Active(),
		"metrics": h.metrics.Snapshot(),
	}
	if h.hosts != nil {
		body["package_hosts"] = h.hosts.Hosts()
	}
	c.JSON(http.StatusOK, body)
}

// ListWorkers lists the live worker connections
func (h *Handlers) ListWorkers(c *gin.Context) {
	workers := h.workers.List()
	c.JSON(http.StatusOK, gin.H{
		"workers": workers,
		"count":   len(workers),
	})
}

// Metrics returns the metrics snapshot as JSON
func (h *Handlers) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

type logLevelRequest struct {
	Level string `json:"level" binding:"required"`
}

// GetLogLevel reports the current log level
func (h *Handlers) GetLogLevel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"level": h.logger.Level()})
}

// SetLogLevel changes the log level without a restart
func (h *Handlers) SetLogLevel(c *gin.Context) {
	var req logLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level is required"})
		return
	}
	if err := h.logger.SetLevel(req.Level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": h.logger.Level()})
}
