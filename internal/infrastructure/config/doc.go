// Package config provides 12-factor configuration management for the
// document worker host.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, allowed origins)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Worker: Application payload, dependency list and runtime limits
//   - Registry: Where and how fast dependencies are fetched
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, ALLOWED_ORIGINS, SHUTDOWN_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - APP_PAYLOAD, DEPS_MANIFEST, DEPENDENCIES, WORKER_INBOX_SIZE,
//     RUNTIME_MAX_CALL_STACK, WORKER_MAX_MESSAGE_BYTES
//   - REGISTRY_DIR, REGISTRY_RPS, REGISTRY_RETRIES, REGISTRY_TIMEOUT,
//     REGISTRY_HOST_FAILURES, REGISTRY_HOST_COOLDOWN
package config
