/*
Package monitoring provides Prometheus metrics for the worker host.

# Overview

Every Metrics value owns its own registry, so tests and embedded hosts can
create as many collectors as they like without colliding on the default
registerer.

# Features

- HTTP request metrics (latency, throughput)
- Worker lifecycle metrics (active, started, boot stage durations, fatal
  boot failures by kind)
- Dependency install outcomes
- Boundary messages by direction and type, dropped protocol violations
- WebSocket connection metrics

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "install")
	// ... install dependencies ...
	timer.Stop()
*/
package monitoring
