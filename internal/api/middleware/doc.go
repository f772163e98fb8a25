// Package middleware provides the HTTP middleware stack in front of the
// worker endpoint.
//
// Middleware stack includes:
//   - RequestID: Correlation id per request, echoed in X-Request-ID
//   - Logger: One structured zap line per request
//   - CORS: Cross-origin resource sharing, websockets included
//   - RateLimit: Per-IP token bucket rate limiting with idle sweeping
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
