// Package observe provides application-wide observability primitives for
// groovi: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// Prometheus scraping via [InitProvider]. A package-level [DefaultMetrics]
// instance is provided for convenience; tests should use [NewMetrics] with a
// custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all groovi metrics.
const meterName = "github.com/groovi/groovi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ProviderDuration tracks provider call latency. Attributes: provider, kind.
	ProviderDuration metric.Float64Histogram

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ToolDuration tracks catalog tool latency. Attributes: tool.
	ToolDuration metric.Float64Histogram

	// ToolCalls counts catalog tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// ActiveSessions tracks connected voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionTransitions counts mode changes. Attributes: from, to.
	SessionTransitions metric.Int64Counter

	// BargeIns counts responses interrupted by the user.
	BargeIns metric.Int64Counter

	// AgentIterations records how many LLM rounds each music search took.
	AgentIterations metric.Int64Histogram

	// HTTPRequestDuration tracks HTTP request time. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds tuned for voice latency.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProviderDuration, err = m.Float64Histogram("groovi.provider.duration",
		metric.WithDescription("Latency of provider calls (stt, llm, tts, agent)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("groovi.provider.requests",
		metric.WithDescription("Total provider calls by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("groovi.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("groovi.tool.duration",
		metric.WithDescription("Latency of catalog tool calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("groovi.tool.calls",
		metric.WithDescription("Total catalog tool calls by tool and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("groovi.sessions.active",
		metric.WithDescription("Number of connected voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionTransitions, err = m.Int64Counter("groovi.session.transitions",
		metric.WithDescription("Session mode transitions by source and target mode."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("groovi.bargein.count",
		metric.WithDescription("Responses interrupted by the user speaking."),
	); err != nil {
		return nil, err
	}
	if met.AgentIterations, err = m.Int64Histogram("groovi.agent.iterations",
		metric.WithDescription("LLM rounds per music search."),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 8),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("groovi.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// ObserveProvider records the duration and outcome of one provider call that
// started at start. kind is "stt", "llm", "tts" or "agent".
func (m *Metrics) ObserveProvider(ctx context.Context, provider, kind string, start time.Time, err error) {
	attrs := metric.WithAttributes(Attr("provider", provider), Attr("kind", kind))
	m.ProviderDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, attrs)
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status),
	))
}

// RecordToolCall records the latency and outcome of one catalog tool call.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, d time.Duration, failed bool) {
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("tool", tool)))
	status := "ok"
	if failed {
		status = "error"
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
}

// RecordTransition counts one session mode change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.SessionTransitions.Add(ctx, 1, metric.WithAttributes(Attr("from", from), Attr("to", to)))
}
