/*
Package monitoring provides Prometheus metrics for the library backend.

# Overview

Each Metrics value owns a private registry, so the HTTP layer exposes exactly
the collectors created for this process. Every recording method is nil-safe;
components that were built without metrics simply skip recording.

# Metrics

- HTTP request count and latency, labelled by route template
- Imports finished, by source and outcome
- Stage duration and failures (acquire, extract, register)
- Bytes downloaded and acquisition queue depth
- Catalog size, live transfer sessions and the keep-active guard

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", monitoring.Handler(metrics))

	timer := monitoring.NewTimer(metrics, "extract")
	path, err := extractor.Extract(ctx, id, src)
	timer.Stop(err)
*/
package monitoring
