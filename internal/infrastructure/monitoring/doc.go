/*
Package monitoring provides Prometheus metrics for termhubd.

# Overview

Metrics cover the HTTP control API, the session lifecycle, PTY throughput and
WebSocket streams. *Metrics satisfies terminal.Recorder, so the session
registry reports directly into it.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	reg := terminal.NewRegistry(hub, logger, opts).WithMetrics(metrics)

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
