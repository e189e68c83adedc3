// Package observe provides observability primitives for the dictation
// service: OpenTelemetry metrics and the SDK provider setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is wired in [InitProvider] so that metrics can be scraped
// from the local debug endpoint's /metrics. A package-level default
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/florentcollect/flototext"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TranscriptionDuration tracks engine inference latency.
	TranscriptionDuration metric.Float64Histogram

	// CaptureDuration tracks recording length as experienced by the user.
	CaptureDuration metric.Float64Histogram

	// SessionsResolved counts finished dictation sessions. Use with
	// attribute.String("status", ...).
	SessionsResolved metric.Int64Counter

	// SessionErrors counts sessions that ended in the error state. Use with
	// attribute.String("reason", ...).
	SessionErrors metric.Int64Counter

	// HistoryAppendFailures counts background history writes that failed.
	HistoryAppendFailures metric.Int64Counter

	// ActiveRecordings tracks whether a capture is currently open (0 or 1;
	// an up-down counter keeps it correct even if sessions ever overlap).
	ActiveRecordings metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both sub-second remote calls and multi-second local inference.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("flototext.transcription.duration",
		metric.WithDescription("Latency of one engine transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("flototext.capture.duration",
		metric.WithDescription("Length of one push-to-talk recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionsResolved, err = m.Int64Counter("flototext.sessions.resolved",
		metric.WithDescription("Total finished dictation sessions by status."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("flototext.sessions.errors",
		metric.WithDescription("Total sessions that ended in the error state, by reason."),
	); err != nil {
		return nil, err
	}
	if met.HistoryAppendFailures, err = m.Int64Counter("flototext.history.append_failures",
		metric.WithDescription("Total background history writes that failed."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("flototext.active_recordings",
		metric.WithDescription("Number of currently open captures."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordSessionResolved records one finished session with its status and
// the engine latency spent on it (zero for sessions that never reached the
// engine).
func (m *Metrics) RecordSessionResolved(ctx context.Context, status string, engineTime time.Duration) {
	m.SessionsResolved.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	if engineTime > 0 {
		m.TranscriptionDuration.Record(ctx, engineTime.Seconds())
	}
}

// RecordSessionError records one session that ended in the error state.
func (m *Metrics) RecordSessionError(ctx context.Context, reason string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
