package uitrace

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/uitrace/pkg/uitrace/config"
	"github.com/randalmurphal/uitrace/pkg/uitrace/event"
	"github.com/randalmurphal/uitrace/pkg/uitrace/observability"
	"github.com/randalmurphal/uitrace/pkg/uitrace/registry"
	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
	"github.com/randalmurphal/uitrace/pkg/uitrace/transport"
)

// DefaultErrorLimit is the number of error events allowed per session.
const DefaultErrorLimit = 25

// options holds configuration for an Aggregator.
type options[C any] struct {
	sender        sender.Sender
	beaconURL     string
	flushInterval time.Duration
	errorLimit    int
	handlers      []registry.Handler[C]
	ids           event.IDSource
	logger        *slog.Logger
	metrics       observability.MetricsRecorder
	spans         observability.SpanManager
	clock         func() time.Time

	// Used only when the aggregator builds its own BatchSender.
	senderConfig sender.Config
	transport    transport.Options

	// Event sources are wired by their owners; kept for completeness.
	ajaxProviders []any
}

func defaultOptions[C any]() options[C] {
	return options[C]{
		errorLimit:   DefaultErrorLimit,
		ids:          event.UUIDSource{},
		logger:       slog.Default(),
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
		clock:        time.Now,
		senderConfig: sender.DefaultConfig,
	}
}

// Option configures an Aggregator.
type Option[C any] func(*options[C])

// WithSender sets the batch sender finished events are handed to.
// A sender supplied here is not closed by Destroy.
//
// Default: a BatchSender over the transport named by WithBeaconURL.
func WithSender[C any](s sender.Sender) Option[C] {
	return func(o *options[C]) {
		if s != nil {
			o.sender = s
		}
	}
}

// WithBeaconURL sets the collector endpoint for the default sender.
// The URL scheme picks the transport (http, https, ws, wss, sqlite).
func WithBeaconURL[C any](url string) Option[C] {
	return func(o *options[C]) {
		o.beaconURL = url
	}
}

// WithFlushInterval enables periodic flushing of the sender.
// Default: 0 (no periodic flush)
func WithFlushInterval[C any](d time.Duration) Option[C] {
	return func(o *options[C]) {
		if d > 0 {
			o.flushInterval = d
		}
	}
}

// WithErrorLimit sets how many error events one session may emit.
// Default: 25
func WithErrorLimit[C any](n int) Option[C] {
	return func(o *options[C]) {
		if n >= 0 {
			o.errorLimit = n
		}
	}
}

// WithHandlers appends component handlers. Handlers are asked in the
// order they were added; the first non-empty answer wins.
func WithHandlers[C any](handlers ...registry.Handler[C]) Option[C] {
	return func(o *options[C]) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// WithIDSource sets the identifier source.
// Default: random UUIDs
func WithIDSource[C any](ids event.IDSource) Option[C] {
	return func(o *options[C]) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithLogger sets the structured logger.
// Default: slog.Default()
func WithLogger[C any](logger *slog.Logger) Option[C] {
	return func(o *options[C]) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder used by the aggregator and by the
// default sender.
//
// Example:
//
//	agg, err := uitrace.New(uitrace.WithMetrics[Widget](observability.NewMetricsRecorder()))
func WithMetrics[C any](m observability.MetricsRecorder) Option[C] {
	return func(o *options[C]) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSpanManager sets the span manager the default sender wraps every
// transmitted batch in.
func WithSpanManager[C any](s observability.SpanManager) Option[C] {
	return func(o *options[C]) {
		if s != nil {
			o.spans = s
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock[C any](now func() time.Time) Option[C] {
	return func(o *options[C]) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithAjaxProviders records data request event sources. The aggregator
// does not subscribe to them; owners call BeginDataRequest and
// EndDataRequest from their own hooks.
func WithAjaxProviders[C any](providers ...any) Option[C] {
	return func(o *options[C]) {
		o.ajaxProviders = append(o.ajaxProviders, providers...)
	}
}

// WithSettings applies decoded configuration: beacon URL, flush interval,
// error limit and the batching limits of the default sender.
func WithSettings[C any](s config.Settings) Option[C] {
	return func(o *options[C]) {
		o.beaconURL = s.BeaconURL
		if s.FlushInterval > 0 {
			o.flushInterval = s.FlushInterval
		}
		if s.ErrorLimit >= 0 {
			o.errorLimit = s.ErrorLimit
		}

		o.senderConfig.MinEvents = s.MinEvents
		o.senderConfig.MaxLength = s.MaxLength
		o.senderConfig.ExpectedBatchSize = s.ExpectedBatchSize
		o.senderConfig.KeysToIgnore = s.KeysToIgnore
		o.senderConfig.Disabled = s.DisableSending
		if s.Encoding == config.EncodingQuery {
			o.senderConfig.Encoder = sender.QueryEncoder{}
		} else {
			o.senderConfig.Encoder = sender.JSONEncoder{}
		}

		o.transport = transport.Options{Gzip: s.Gzip, Headers: s.Headers}
	}
}
