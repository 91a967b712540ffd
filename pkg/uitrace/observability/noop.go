package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordEventStarted does nothing.
func (NoopMetrics) RecordEventStarted(_ context.Context, _ string) {}

// RecordEventFinished does nothing.
func (NoopMetrics) RecordEventFinished(_ context.Context, _, _ string) {}

// RecordEventDropped does nothing.
func (NoopMetrics) RecordEventDropped(_ context.Context, _, _ string) {}

// RecordError does nothing.
func (NoopMetrics) RecordError(_ context.Context) {}

// RecordBatch does nothing.
func (NoopMetrics) RecordBatch(_ context.Context, _ int, _ int, _ time.Duration, _ error) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// StartBatch returns the context unchanged and a no-op span.
func (NoopSpanManager) StartBatch(ctx context.Context, _ BatchInfo) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

// EndBatch does nothing.
func (NoopSpanManager) EndBatch(trace.Span, error) {}
