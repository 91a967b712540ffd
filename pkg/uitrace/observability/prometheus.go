package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a MetricsRecorder backed by Prometheus collectors,
// for services that expose /metrics instead of exporting OTel metrics.
type PrometheusMetrics struct {
	eventsStarted  *prometheus.CounterVec
	eventsFinished *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	errorsRecorded prometheus.Counter
	batches        *prometheus.CounterVec
	batchEvents    prometheus.Histogram
	batchSize      prometheus.Histogram
	batchLatency   *prometheus.HistogramVec
}

var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collectors and registers them with r.
// Collectors already registered by an earlier call are reused.
func NewPrometheusMetrics(r prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		eventsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "events",
			Name:      "started_total",
			Help:      "Events added to the pending set.",
		}, []string{"event_type"}),
		eventsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "events",
			Name:      "finished_total",
			Help:      "Events handed to the sender.",
		}, []string{"event_type", "status"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Calls that could not be correlated.",
		}, []string{"event_type", "reason"}),
		errorsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "errors",
			Name:      "recorded_total",
			Help:      "Error events admitted under the session quota.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uitrace",
			Subsystem: "batch",
			Name:      "sent_total",
			Help:      "Transmitted batches.",
		}, []string{"success"}),
		batchEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uitrace",
			Subsystem: "batch",
			Name:      "events",
			Help:      "Events per transmitted batch.",
			Buckets:   prometheus.LinearBuckets(1, 5, 10),
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uitrace",
			Subsystem: "batch",
			Name:      "size_bytes",
			Help:      "Encoded batch size.",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
		}),
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uitrace",
			Subsystem: "batch",
			Name:      "latency_seconds",
			Help:      "Batch transmit latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"success"}),
	}

	var err error
	if m.eventsStarted, err = register(r, m.eventsStarted); err != nil {
		return nil, err
	}
	if m.eventsFinished, err = register(r, m.eventsFinished); err != nil {
		return nil, err
	}
	if m.eventsDropped, err = register(r, m.eventsDropped); err != nil {
		return nil, err
	}
	if m.errorsRecorded, err = register(r, m.errorsRecorded); err != nil {
		return nil, err
	}
	if m.batches, err = register(r, m.batches); err != nil {
		return nil, err
	}
	if m.batchEvents, err = register(r, m.batchEvents); err != nil {
		return nil, err
	}
	if m.batchSize, err = register(r, m.batchSize); err != nil {
		return nil, err
	}
	if m.batchLatency, err = register(r, m.batchLatency); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](r prometheus.Registerer, c T) (T, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return c, err
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return c, err
		}
		return existing, nil
	}
	return c, nil
}

// RecordEventStarted implements MetricsRecorder.
func (m *PrometheusMetrics) RecordEventStarted(_ context.Context, kind string) {
	m.eventsStarted.WithLabelValues(kind).Inc()
}

// RecordEventFinished implements MetricsRecorder.
func (m *PrometheusMetrics) RecordEventFinished(_ context.Context, kind, status string) {
	m.eventsFinished.WithLabelValues(kind, status).Inc()
}

// RecordEventDropped implements MetricsRecorder.
func (m *PrometheusMetrics) RecordEventDropped(_ context.Context, kind, reason string) {
	m.eventsDropped.WithLabelValues(kind, reason).Inc()
}

// RecordError implements MetricsRecorder.
func (m *PrometheusMetrics) RecordError(context.Context) {
	m.errorsRecorded.Inc()
}

// RecordBatch implements MetricsRecorder.
func (m *PrometheusMetrics) RecordBatch(_ context.Context, events int, sizeBytes int, duration time.Duration, err error) {
	success := strconv.FormatBool(err == nil)
	m.batches.WithLabelValues(success).Inc()
	m.batchEvents.Observe(float64(events))
	m.batchSize.Observe(float64(sizeBytes))
	m.batchLatency.WithLabelValues(success).Observe(duration.Seconds())
}
