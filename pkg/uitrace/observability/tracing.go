package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/randalmurphal/uitrace"
	batchSpanName       = "uitrace.flush"
)

// BatchInfo describes a batch about to be transmitted.
type BatchInfo struct {
	Endpoint    string
	Events      int
	SizeBytes   int
	ContentType string
}

// SpanManager opens a client span around every batch transmission.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartBatch starts the span for one transmission.
	StartBatch(ctx context.Context, b BatchInfo) (context.Context, trace.Span)

	// EndBatch completes the span, marking it failed when err is non-nil.
	EndBatch(span trace.Span, err error)
}

// SpanOption configures NewSpanManager.
type SpanOption func(*otelSpanManager)

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) SpanOption {
	return func(m *otelSpanManager) {
		if tp != nil {
			m.provider = tp
		}
	}
}

type otelSpanManager struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
}

// NewSpanManager returns a SpanManager backed by OpenTelemetry. Without
// WithTracerProvider it uses the global provider, so set it first:
//
//	otel.SetTracerProvider(yourProvider)
//	spans := observability.NewSpanManager()
func NewSpanManager(opts ...SpanOption) SpanManager {
	m := &otelSpanManager{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(m)
	}
	m.tracer = m.provider.Tracer(instrumentationName)
	return m
}

func (m *otelSpanManager) StartBatch(ctx context.Context, b BatchInfo) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, batchSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("beacon.endpoint", b.Endpoint),
			attribute.Int("batch.events", b.Events),
			attribute.Int("batch.size_bytes", b.SizeBytes),
			attribute.String("batch.content_type", b.ContentType),
		),
	)
}

func (m *otelSpanManager) EndBatch(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()

	span.SetAttributes(attribute.Bool("batch.delivered", err == nil))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
