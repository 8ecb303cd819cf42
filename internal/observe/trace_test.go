package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test. Tests using it must not run in parallel.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes slog.Default() into a buffer for the test, debug level
// included.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestTraceProvider(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantErrors int64
	}{
		{"success", nil, codes.Unset, 0},
		{"failure", errors.New("groq: 503"), codes.Error, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exp := useTestTracer(t)
			m, reader := newTestMetrics(t)

			ctx, done := TraceProvider(context.Background(), m, "groq", "stt")
			if CorrelationID(ctx) == "" {
				t.Error("provider context carries no span")
			}
			done(tc.err)

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			span := spans[0]
			if span.Name != "stt groq" {
				t.Errorf("span name = %q, want %q", span.Name, "stt groq")
			}
			if span.SpanKind != trace.SpanKindClient {
				t.Errorf("span kind = %v, want client", span.SpanKind)
			}
			if span.Status.Code != tc.wantStatus {
				t.Errorf("status = %v, want %v", span.Status.Code, tc.wantStatus)
			}

			rm := collect(t, reader)
			if got := sumWhere(t, rm, "groovi.provider.requests", "provider", "groq"); got != 1 {
				t.Errorf("provider requests = %d, want 1", got)
			}
			if tc.wantErrors > 0 {
				if got := sumWhere(t, rm, "groovi.provider.errors", "kind", "stt"); got != tc.wantErrors {
					t.Errorf("provider errors = %d, want %d", got, tc.wantErrors)
				}
			}
		})
	}
}

func TestTraceProvider_NilMetrics(t *testing.T) {
	exp := useTestTracer(t)

	_, done := TraceProvider(context.Background(), nil, "dialogue", "llm")
	done(nil)

	if spans := exp.GetSpans(); len(spans) != 1 || spans[0].Name != "llm dialogue" {
		t.Errorf("spans = %v", spans)
	}
}

func TestTraceProvider_NestsUnderCaller(t *testing.T) {
	exp := useTestTracer(t)

	ctx, parent := StartSpan(context.Background(), "music.search")
	_, done := TraceProvider(ctx, nil, "music-agent", "llm")
	done(nil)
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	child, root := spans[0], spans[1]
	if child.Parent.SpanID() != root.SpanContext.SpanID() {
		t.Error("provider span is not a child of the caller's span")
	}
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	useTestTracer(t)
	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "turn")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation ID %q is not 32 hex digits", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span has trace_id: %s", buf)
	}
	buf.Reset()

	ctx, span := StartSpan(context.Background(), "session")
	defer span.End()
	Logger(ctx).Info("with span")
	out := buf.String()
	if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) || !strings.Contains(out, "span_id=") {
		t.Errorf("log with span = %s", out)
	}
}
