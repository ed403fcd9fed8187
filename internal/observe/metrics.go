// Package observe provides application-wide observability primitives for
// intervox: OpenTelemetry metrics, distributed tracing, trace-aware logging
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed via a
// Prometheus exporter set up by [InitProvider]. A package-level [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all intervox metrics.
const meterName = "github.com/MrWong99/intervox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks transcription latency for one answer turn.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks reasoning-service latency. Use with attribute:
	//   attribute.String("purpose", "analysis"|"questions")
	LLMDuration metric.Float64Histogram

	// AnalysisDuration tracks end-to-end answer analysis latency including
	// retries.
	AnalysisDuration metric.Float64Histogram

	// --- Domain counters and distributions ---

	// VADSpeechSegments counts detected speech segments (one per
	// SpeechStarted event).
	VADSpeechSegments metric.Int64Counter

	// AnalysisFailures counts answers whose analysis was unavailable.
	AnalysisFailures metric.Int64Counter

	// AnswerScore records the overall score of every analysed answer.
	AnswerScore metric.Int64Histogram

	// ReportsGenerated counts completed interview reports.
	ReportsGenerated metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("to", ...)
	CircuitTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks interview sessions that are in progress.
	ActiveSessions metric.Int64UpDownCounter

	// LiveConnections tracks connected live audio WebSockets.
	LiveConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider round trips, which range from tens of milliseconds to tens of
// seconds for long answers.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("intervox.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription per answer turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("intervox.llm.duration",
		metric.WithDescription("Latency of reasoning-service completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("intervox.analysis.duration",
		metric.WithDescription("Latency of answer analysis including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnswerScore, err = m.Int64Histogram("intervox.answer.score",
		metric.WithDescription("Overall score of analysed answers."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.VADSpeechSegments, err = m.Int64Counter("intervox.vad.speech_segments",
		metric.WithDescription("Total speech segments detected by voice activity detection."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisFailures, err = m.Int64Counter("intervox.analysis.failures",
		metric.WithDescription("Total answers whose analysis was unavailable."),
	); err != nil {
		return nil, err
	}
	if met.ReportsGenerated, err = m.Int64Counter("intervox.reports.generated",
		metric.WithDescription("Total interview reports generated."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("intervox.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("intervox.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("intervox.circuit.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("intervox.sessions.active",
		metric.WithDescription("Number of interview sessions in progress."),
	); err != nil {
		return nil, err
	}
	if met.LiveConnections, err = m.Int64UpDownCounter("intervox.live.connections",
		metric.WithDescription("Number of connected live audio streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("intervox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
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

// RecordAnalysis records the outcome of one answer analysis. A non-nil err
// counts as a failure and no score is recorded.
func (m *Metrics) RecordAnalysis(ctx context.Context, d time.Duration, score int, err error) {
	m.AnalysisDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.AnalysisFailures.Add(ctx, 1)
		return
	}
	m.AnswerScore.Record(ctx, int64(score))
}

// RecordCircuitTransition records a breaker state change. Its signature
// matches the resilience.CircuitBreakerConfig OnStateChange hook once the
// states are rendered as strings.
func (m *Metrics) RecordCircuitTransition(breaker, from, to string) {
	m.CircuitTransitions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
