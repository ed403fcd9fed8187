package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/intervox"

// Tracer is the intervox tracer from the global provider, so spans follow
// whatever [InitProvider] (or a test) installed last.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a child span of whatever ctx carries. End it when the
// operation (an HTTP request, an answer turn, an analysis) is done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the hex trace id of the span in ctx, or "" outside a
// trace. Clients see it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is slog.Default tagged with trace_id and span_id when ctx carries a
// span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
