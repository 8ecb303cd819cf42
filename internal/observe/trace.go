package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every groovi span.
const tracerName = "github.com/groovi/groovi"

// Tracer returns the groovi tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TraceProvider wraps one call to an external provider (stt, llm, tts) in a
// client span named "<kind> <provider>". The returned done func must be
// called exactly once with the call's error: it marks the span failed when
// err is non-nil, ends it, and records the provider metrics on m when m is
// not nil.
//
//	ctx, done := observe.TraceProvider(ctx, metrics, "groq", "stt")
//	text, err := p.Transcribe(ctx, pcm)
//	done(err)
func TraceProvider(ctx context.Context, m *Metrics, provider, kind string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, kind+" "+provider,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if m != nil {
			m.ObserveProvider(ctx, provider, kind, start, err)
		}
	}
}

// CorrelationID returns the trace ID in ctx, or "" without a span. Request
// logs and the X-Correlation-ID header carry it.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns slog.Default() with trace_id and span_id attached when ctx
// carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
