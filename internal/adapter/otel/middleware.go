package otel

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ticketbridge"

// HTTPMiddleware returns a chi-compatible middleware that creates spans for
// HTTP requests.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}

// StartTaskSpan starts a span for one sync task execution.
func StartTaskSpan(ctx context.Context, task, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sync.task",
		trace.WithAttributes(
			attribute.String("task.name", task),
			attribute.String("task.id", taskID),
		),
	)
}
