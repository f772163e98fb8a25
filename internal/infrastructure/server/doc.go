// Package server provides HTTP server setup and initialization for the
// document worker host.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (request ids, logging, metrics, CORS, rate limiting)
//   - One worker per WebSocket connection on /worker
//   - A dependency registry shared by every worker
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Resolve the app payload and dependency list
//  3. Initialize logger and metrics
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. Graceful shutdown on signal, ending every worker first
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	app, err := server.LoadApp(cfg.Worker, fallback)
//	srv, err := server.NewServer(cfg, app)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
