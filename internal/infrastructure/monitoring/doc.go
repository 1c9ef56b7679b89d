/*
Package monitoring provides Prometheus metrics for the launcher host.

# Overview

Metrics live on a private registry rather than the global default one. The
lifecycle controller and the RPC bridge record through small interfaces they
declare themselves; *Metrics satisfies both.

# Families

- HTTP requests (count, latency) keyed by route template
- Plugin lifecycle: running and detached instances, creates by outcome,
  kills by reason, crashes, mode negotiation results
- RPC bridge: calls by channel and status, latency, late responses
- Event stream connections and messages
- Go runtime and process collectors, uptime

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
