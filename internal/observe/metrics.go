// Package observe provides observability primitives for the voice pipeline:
// OpenTelemetry metrics with a Prometheus exporter bridge.
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

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/Tommy0Storm/BUA-XI-sub000"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SessionsStarted counts session attempts. Use with attribute:
	//   attribute.String("persona", ...)
	SessionsStarted metric.Int64Counter

	// SessionsEnded counts completed sessions. Use with attribute:
	//   attribute.String("reason", ...) — "user", "time_limit", "error".
	SessionsEnded metric.Int64Counter

	// SessionErrors counts sessions terminated by a connection failure.
	SessionErrors metric.Int64Counter

	// CredentialRotations counts fast-fail credential rotations.
	CredentialRotations metric.Int64Counter

	// ActiveSessions tracks the number of live sessions (0 or 1 per process).
	ActiveSessions metric.Int64UpDownCounter

	// AudioChunksIn counts microphone blocks sent upstream.
	AudioChunksIn metric.Int64Counter

	// AudioChunksOut counts model audio chunks scheduled for playback.
	AudioChunksOut metric.Int64Counter

	// DecodeFailures counts undecodable playback chunks that were dropped.
	DecodeFailures metric.Int64Counter

	// Dispatches counts transcript exports.
	Dispatches metric.Int64Counter

	// ConnectDuration tracks time from dial to a ready session.
	ConnectDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// connection setup latency.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.SessionsStarted, err = m.Int64Counter("buavoice.sessions.started",
		metric.WithDescription("Total session attempts by persona."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("buavoice.sessions.ended",
		metric.WithDescription("Total completed sessions by end reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("buavoice.sessions.errors",
		metric.WithDescription("Total sessions terminated by connection failure."),
	); err != nil {
		return nil, err
	}
	if met.CredentialRotations, err = m.Int64Counter("buavoice.credentials.rotations",
		metric.WithDescription("Total fast-fail credential rotations."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksIn, err = m.Int64Counter("buavoice.audio.chunks_in",
		metric.WithDescription("Microphone blocks sent upstream."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksOut, err = m.Int64Counter("buavoice.audio.chunks_out",
		metric.WithDescription("Model audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("buavoice.audio.decode_failures",
		metric.WithDescription("Undecodable playback chunks dropped."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("buavoice.transcript.dispatches",
		metric.WithDescription("Transcript history exports."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("buavoice.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("buavoice.connect.duration",
		metric.WithDescription("Time from dial to a ready live session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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

// RecordSessionStart records a session attempt for the given persona and
// bumps the active-session gauge.
func (m *Metrics) RecordSessionStart(ctx context.Context, persona string) {
	m.SessionsStarted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("persona", persona)),
	)
	m.ActiveSessions.Add(ctx, 1)
}

// RecordSessionEnd records a session end with the given reason and drops the
// active-session gauge.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string) {
	m.SessionsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
	m.ActiveSessions.Add(ctx, -1)
}

// RecordConnectLatency records the dial-to-ready latency of one attempt.
func (m *Metrics) RecordConnectLatency(ctx context.Context, d time.Duration) {
	m.ConnectDuration.Record(ctx, d.Seconds())
}
