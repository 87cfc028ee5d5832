// Package observe provides application-wide observability primitives for
// TravelGenie: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all TravelGenie metrics.
const meterName = "github.com/MrWong99/travelgenie"

// Status attribute values shared by the counters.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks a single decision step (one model call).
	LLMDuration metric.Float64Histogram

	// ToolDuration tracks a single tool invocation. Use with attribute:
	//   attribute.String("tool", ...)
	ToolDuration metric.Float64Histogram

	// AgentTurnDuration tracks a full user turn through the agent loop.
	AgentTurnDuration metric.Float64Histogram

	// AgentIterations tracks how many decision steps one user turn needed.
	AgentIterations metric.Int64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolCache counts result cache lookups. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("result", "hit"|"miss")
	ToolCache metric.Int64Counter

	// AgentSafetyLimit counts user turns stopped by the iteration bound.
	AgentSafetyLimit metric.Int64Counter

	// RAGRequests counts RAG service requests. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	RAGRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live chat sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for calls
// to remote APIs and language models.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// iterationBuckets covers the default iteration bound with room to spare.
var iterationBuckets = []float64{1, 2, 3, 4, 6, 8, 12, 16}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("travelgenie.llm.duration",
		metric.WithDescription("Latency of a single LLM decision step."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("travelgenie.tool.duration",
		metric.WithDescription("Latency of tool execution by tool name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentTurnDuration, err = m.Float64Histogram("travelgenie.agent.turn.duration",
		metric.WithDescription("Latency of a full user turn through the agent loop."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentIterations, err = m.Int64Histogram("travelgenie.agent.iterations",
		metric.WithDescription("Decision steps needed per user turn."),
		metric.WithExplicitBucketBoundaries(iterationBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("travelgenie.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("travelgenie.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCache, err = m.Int64Counter("travelgenie.tool.cache",
		metric.WithDescription("Tool result cache lookups by tool name and result."),
	); err != nil {
		return nil, err
	}
	if met.AgentSafetyLimit, err = m.Int64Counter("travelgenie.agent.safety_limit",
		metric.WithDescription("User turns stopped by the iteration bound."),
	); err != nil {
		return nil, err
	}
	if met.RAGRequests, err = m.Int64Counter("travelgenie.rag.requests",
		metric.WithDescription("Total RAG service requests by endpoint and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("travelgenie.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("travelgenie.active_sessions",
		metric.WithDescription("Number of live chat sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("travelgenie.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordToolCall records one finished tool invocation: the call counter and
// the duration histogram.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordToolCache records a result cache lookup.
func (m *Metrics) RecordToolCache(ctx context.Context, tool string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ToolCache.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("result", result),
		),
	)
}

// RecordAgentTurn records the shape of one finished user turn.
func (m *Metrics) RecordAgentTurn(ctx context.Context, iterations int, limitHit bool, d time.Duration) {
	m.AgentIterations.Record(ctx, int64(iterations))
	m.AgentTurnDuration.Record(ctx, d.Seconds())
	if limitHit {
		m.AgentSafetyLimit.Add(ctx, 1)
	}
}

// RecordRAGRequest records a RAG service request counter increment.
func (m *Metrics) RecordRAGRequest(ctx context.Context, endpoint, status string) {
	m.RAGRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}
