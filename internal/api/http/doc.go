// Package http provides the REST endpoints around the worker host.
//
// Endpoints:
//   - Health: / and /health
//   - Workers: /workers lists live connections and their state
//   - Metrics: /metrics/json
//   - Logs: /logs accepts view-side log batches
//   - Admin: /admin/log-level reads and changes the log level
//
// Example Usage:
//
//	handlers := http.NewHandlers(wsHandler, registry, metrics, logger)
//	router.GET("/health", handlers.Health)
package http
