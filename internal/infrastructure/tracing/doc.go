/*
Package tracing provides lightweight request tracing for the proxy.

# Overview

Every inbound request gets a trace ID (taken from X-Trace-ID when a caller
supplies one) and each pipeline stage of a /browse request opens a child
span: cache lookup, connectivity, acquire, render, rewrite. Completed spans
are written to the structured log by a background collector, so a slow
render can be attributed to the stage that stalled.

# Usage

	tracer := tracing.New("news-browser", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "browse.render")
	span.SetTag("mode", "tor")
	tracer.End(span, err)

# Trace Format

- X-Trace-ID: Unique identifier for entire request flow
- X-Span-ID: Identifier for current operation

Both are echoed on the response.
*/
package tracing
