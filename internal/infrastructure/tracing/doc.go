/*
Package tracing provides request tracing for the termhubd control API.

# Overview

Every HTTP request gets a span. Trace and span ids are prefixed ULIDs
(trace_*, span_*), propagated through the X-Trace-ID and X-Span-ID headers
so a UI can correlate its calls with daemon logs.

# Usage

	tracer := tracing.New("termhubd", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Performance

Spans are buffered (1000) and logged asynchronously; a full buffer drops
spans rather than slowing requests.
*/
package tracing
