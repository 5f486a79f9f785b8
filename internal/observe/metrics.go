// Package observe provides the tuner's OpenTelemetry metrics and the
// Prometheus bridge that exposes them on /metrics.
//
// Tests should build a [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider]; [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tuner metrics.
const meterName = "github.com/0xlemi/stringtuner"

// Cycle outcomes recorded on CycleOutcomes.
const (
	OutcomeDetected = "detected"
	OutcomeNoPitch  = "no_pitch"
	OutcomeGated    = "gated"
	OutcomeError    = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// CycleDuration tracks refill plus estimate time per detection cycle.
	CycleDuration metric.Float64Histogram

	// CycleOutcomes counts cycles. Use with attribute:
	//   attribute.String("outcome", ...)
	CycleOutcomes metric.Int64Counter

	// DegradedCycles counts cycles whose window was short-read and
	// zero-padded.
	DegradedCycles metric.Int64Counter

	// DetectedFrequency records every reported frequency in Hz.
	DetectedFrequency metric.Float64Histogram

	// ActiveSessions tracks running detection loops.
	ActiveSessions metric.Int64UpDownCounter
}

// cycleBuckets are in seconds. One frame at 60 Hz is about 0.0167.
var cycleBuckets = []float64{
	0.0005, 0.001, 0.002, 0.004, 0.008, 0.0167, 0.033, 0.1,
}

// frequencyBuckets cover the guitar range in Hz.
var frequencyBuckets = []float64{
	60, 80, 100, 130, 170, 220, 280, 350, 450, 600, 800, 1200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CycleDuration, err = m.Float64Histogram("stringtuner.cycle.duration",
		metric.WithDescription("Time spent refilling and analyzing one window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectedFrequency, err = m.Float64Histogram("stringtuner.detected.frequency",
		metric.WithDescription("Detected fundamental frequencies."),
		metric.WithUnit("Hz"),
		metric.WithExplicitBucketBoundaries(frequencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CycleOutcomes, err = m.Int64Counter("stringtuner.cycles",
		metric.WithDescription("Detection cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DegradedCycles, err = m.Int64Counter("stringtuner.cycles.degraded",
		metric.WithDescription("Cycles whose window was zero-padded after a short read."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("stringtuner.active_sessions",
		metric.WithDescription("Number of running detection loops."),
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
// first call using [otel.GetMeterProvider]. It panics if instrument creation
// fails.
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

// RecordCycle records one cycle's duration and outcome.
func (m *Metrics) RecordCycle(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.CycleDuration.Record(ctx, d.Seconds(), attrs)
	m.CycleOutcomes.Add(ctx, 1, attrs)
}

// RecordDegraded counts a zero-padded cycle.
func (m *Metrics) RecordDegraded(ctx context.Context) {
	m.DegradedCycles.Add(ctx, 1)
}

// RecordFrequency records a delivered detection.
func (m *Metrics) RecordFrequency(ctx context.Context, hz float64) {
	m.DetectedFrequency.Record(ctx, hz)
}

// SessionStarted increments the active session gauge for source.
func (m *Metrics) SessionStarted(ctx context.Context, source string) {
	m.ActiveSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// SessionEnded decrements the active session gauge for source.
func (m *Metrics) SessionEnded(ctx context.Context, source string) {
	m.ActiveSessions.Add(ctx, -1, metric.WithAttributes(attribute.String("source", source)))
}
