// Package main is the entry point for the document worker host.
//
// Every WebSocket connection on /worker gets its own worker: a fresh
// runtime, the configured dependencies, one run of the application payload
// and a sync session that keeps the document and the remote view in step.
//
// Architecture:
//
//	View (browser) ⇄ /worker WebSocket ⇄ Worker (runtime + document)
//	                                        → Package registry (local dir, remote)
//
// The server provides:
//   - WebSocket worker sessions
//   - Health, worker listing and log-level endpoints
//   - Prometheus metrics on /metrics
//   - Rate limiting and CORS
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - An embedded dashboard when no payload is configured
//
// Usage:
//
//	# Serve an app with a dependency manifest
//	./server -port 8000 -app ./report.js -deps ./deps.yaml -registry ./wheels
//
//	# Development mode (colored logs)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
