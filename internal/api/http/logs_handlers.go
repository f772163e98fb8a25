package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxLogEntries bounds one batch from the view
const maxLogEntries = 500

// ViewLogEntry is a log entry reported by the page hosting the view
type ViewLogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Session   string         `json:"session"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
}

// ViewLogRequest is a batch of view-side logs
type ViewLogRequest struct {
	Source  string         `json:"source"`
	Entries []ViewLogEntry `json:"entries"`
}

// StreamLogs forwards view-side logs into the server log, so render
// errors on the page show up next to the worker that produced them.
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req ViewLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log request format"})
		return
	}
	if req.Source != "view" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log source"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No log entries provided"})
		return
	}
	if len(req.Entries) > maxLogEntries {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many log entries"})
		return
	}

	logger := h.logger.Named("view")
	for _, entry := range req.Entries {
		logEntry(logger, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func logEntry(logger *zap.Logger, entry ViewLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+3)
	fields = append(fields,
		zap.String("source", "view"),
		zap.String("view_timestamp", entry.Timestamp),
	)
	if entry.Session != "" {
		fields = append(fields, zap.String("session", entry.Session))
	}

	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn":
		logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		logger.Debug(entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}
}
