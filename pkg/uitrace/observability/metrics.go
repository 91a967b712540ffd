package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records uitrace metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventStarted records an event entering the pending set.
	RecordEventStarted(ctx context.Context, kind string)

	// RecordEventFinished records an event handed to the sender.
	RecordEventFinished(ctx context.Context, kind, status string)

	// RecordEventDropped records a call that could not be correlated.
	RecordEventDropped(ctx context.Context, kind, reason string)

	// RecordError records an error event admitted under the session quota.
	RecordError(ctx context.Context)

	// RecordBatch records a transmitted batch.
	RecordBatch(ctx context.Context, events int, sizeBytes int, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsStarted  metric.Int64Counter
	eventsFinished metric.Int64Counter
	eventsDropped  metric.Int64Counter
	errorsRecorded metric.Int64Counter
	batchesSent    metric.Int64Counter
	batchSize      metric.Int64Histogram
	batchLatency   metric.Float64Histogram
	transmitErrors metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("uitrace")

	eventsStarted, err := meter.Int64Counter("uitrace.events.started",
		metric.WithDescription("Number of events added to the pending set"),
	)
	if err != nil {
		return nil, err
	}

	eventsFinished, err := meter.Int64Counter("uitrace.events.finished",
		metric.WithDescription("Number of events handed to the sender"),
	)
	if err != nil {
		return nil, err
	}

	eventsDropped, err := meter.Int64Counter("uitrace.events.dropped",
		metric.WithDescription("Number of calls that could not be correlated"),
	)
	if err != nil {
		return nil, err
	}

	errorsRecorded, err := meter.Int64Counter("uitrace.errors.recorded",
		metric.WithDescription("Number of error events admitted under the session quota"),
	)
	if err != nil {
		return nil, err
	}

	batchesSent, err := meter.Int64Counter("uitrace.batches.sent",
		metric.WithDescription("Number of batches handed to the transport"),
	)
	if err != nil {
		return nil, err
	}

	batchSize, err := meter.Int64Histogram("uitrace.batch.size_bytes",
		metric.WithDescription("Encoded batch size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	batchLatency, err := meter.Float64Histogram("uitrace.batch.latency_ms",
		metric.WithDescription("Batch transmit latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transmitErrors, err := meter.Int64Counter("uitrace.transmit.errors",
		metric.WithDescription("Number of failed batch transmissions"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsStarted:  eventsStarted,
		eventsFinished: eventsFinished,
		eventsDropped:  eventsDropped,
		errorsRecorded: errorsRecorded,
		batchesSent:    batchesSent,
		batchSize:      batchSize,
		batchLatency:   batchLatency,
		transmitErrors: transmitErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEventStarted records an event entering the pending set.
func (m *otelMetrics) RecordEventStarted(ctx context.Context, kind string) {
	m.eventsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", kind),
	))
}

// RecordEventFinished records a finished event.
func (m *otelMetrics) RecordEventFinished(ctx context.Context, kind, status string) {
	m.eventsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", kind),
		attribute.String("status", status),
	))
}

// RecordEventDropped records an uncorrelated call.
func (m *otelMetrics) RecordEventDropped(ctx context.Context, kind, reason string) {
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", kind),
		attribute.String("reason", reason),
	))
}

// RecordError records an admitted error event.
func (m *otelMetrics) RecordError(ctx context.Context) {
	m.errorsRecorded.Add(ctx, 1)
}

// RecordBatch records a transmitted batch.
func (m *otelMetrics) RecordBatch(ctx context.Context, events int, sizeBytes int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
	}
	m.batchesSent.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.batchSize.Record(ctx, int64(sizeBytes), metric.WithAttributes(attrs...))
	m.batchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.transmitErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.Int("events", events),
		))
	}
}
