/*
Package monitoring provides Prometheus metrics for the proxy.

# Overview

Metrics cover the HTTP surface and each subsystem of the browse pipeline:
page cache hits and evictions, render pool occupancy and launches, the
anonymity network phase and probe results, and per-stage latency.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "render")
	// ... render ...
	timer.Stop("ok")

A nil *Metrics is accepted everywhere and records nothing, which keeps unit
tests free of registry plumbing.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
