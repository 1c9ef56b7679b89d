/*
Package tracing provides lightweight request tracing for the launcher API.

Each HTTP request gets a span. Handlers open child spans around plugin
operations (create, feature calls), so a slow call can be followed from the
request that triggered it to the plugin it reached. Finished spans are
logged through zap by a background collector.

# Usage

	tracer := tracing.New(logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "plugin.call")
	span.SetTag("feature_code", code)
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

Traces use HTTP headers for propagation:
  - X-Trace-ID: identifier for the whole request flow
  - X-Span-ID: identifier for the current operation
*/
package tracing
