// Package sender buffers finished uitrace events and transmits them to a
// collector in size-bounded batches.
package sender

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/uitrace/pkg/uitrace/event"
	"github.com/randalmurphal/uitrace/pkg/uitrace/observability"
)

// Sender is the contract the correlation engine needs from a batch sender.
// Send must never block on the network and never fail visibly.
type Sender interface {
	// Send enqueues one finished event for later transmission.
	Send(evt *event.Event)

	// Flush transmits and clears whatever is currently enqueued.
	Flush()
}

// MaxLengther is implemented by senders that know the largest payload the
// transport carries in one request.
type MaxLengther interface {
	MaxLength() int
}

// BatchSizer is implemented by senders that know how many events a
// typical batch holds.
type BatchSizer interface {
	ExpectedBatchSize() int
}

// Batch is one encoded group of events handed to a transport.
type Batch struct {
	Events      []*event.Event
	Payload     []byte
	ContentType string
}

// Transport physically delivers a batch. Implementations live in the
// transport package.
type Transport interface {
	Transmit(ctx context.Context, b Batch) error
	Endpoint() string
	Close() error
}

// Config configures a BatchSender.
type Config struct {
	// Transport delivers batches. Required unless Disabled is set.
	Transport Transport

	// Encoder builds payloads.
	// Default: JSONEncoder
	Encoder Encoder

	// MinEvents flushes automatically once this many events are queued.
	// Default: 25
	MinEvents int

	// MaxLength is the largest payload in bytes. A Send that would push
	// the payload past it flushes the queue first.
	// Default: 0 (unbounded)
	MaxLength int

	// ExpectedBatchSize is reported to the engine for error budgeting.
	// Default: 4
	ExpectedBatchSize int

	// KeysToIgnore are removed from every event before encoding.
	KeysToIgnore []string

	// Disabled drops batches instead of transmitting them.
	Disabled bool

	// Async transmits on a background goroutine. Close waits for them.
	Async bool

	// Timeout bounds one transmission.
	// Default: 10s
	Timeout time.Duration

	// OnSend is called with every batch after transmission is attempted.
	OnSend func(b Batch, err error)

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	MinEvents:         25,
	ExpectedBatchSize: 4,
	Timeout:           10 * time.Second,
}

// BatchSender queues events and flushes them as batches.
type BatchSender struct {
	config Config
	ignore map[string]struct{}

	mu     sync.Mutex
	events []*event.Event
	parts  [][]byte
	size   int
	closed bool

	inflight sync.WaitGroup
}

// Compile-time interface checks.
var (
	_ Sender      = (*BatchSender)(nil)
	_ MaxLengther = (*BatchSender)(nil)
	_ BatchSizer  = (*BatchSender)(nil)
)

// New creates a BatchSender.
func New(config Config) *BatchSender {
	if config.Encoder == nil {
		config.Encoder = JSONEncoder{}
	}
	if config.MinEvents <= 0 {
		config.MinEvents = DefaultConfig.MinEvents
	}
	if config.ExpectedBatchSize <= 0 {
		config.ExpectedBatchSize = DefaultConfig.ExpectedBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = observability.NoopMetrics{}
	}
	if config.Spans == nil {
		config.Spans = observability.NoopSpanManager{}
	}

	ignore := make(map[string]struct{}, len(config.KeysToIgnore))
	for _, k := range config.KeysToIgnore {
		ignore[k] = struct{}{}
	}

	return &BatchSender{config: config, ignore: ignore}
}

// MaxLength returns the configured payload limit, or 0 when unbounded.
func (s *BatchSender) MaxLength() int {
	return s.config.MaxLength
}

// ExpectedBatchSize returns the configured typical batch size.
func (s *BatchSender) ExpectedBatchSize() int {
	return s.config.ExpectedBatchSize
}

// Len returns the number of queued events.
func (s *BatchSender) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Send enqueues an event. It may trigger a flush when the queue reaches
// MinEvents or the payload would exceed MaxLength.
func (s *BatchSender) Send(evt *event.Event) {
	if evt == nil {
		return
	}
	fields := s.fields(evt)

	var ready []Batch

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		observability.LogEventDropped(s.config.Logger, string(evt.Type), ErrSenderClosed.Error())
		return
	}

	part, err := s.config.Encoder.EncodeEvent(fields, len(s.parts))
	if err != nil {
		s.mu.Unlock()
		observability.LogEventDropped(s.config.Logger, string(evt.Type), err.Error())
		return
	}

	if s.wouldOverflow(len(part)) {
		ready = append(ready, s.takeLocked())
		part, err = s.config.Encoder.EncodeEvent(fields, 0)
		if err != nil {
			s.mu.Unlock()
			s.transmitAll(ready)
			return
		}
	}

	s.events = append(s.events, evt)
	s.parts = append(s.parts, part)
	s.size += len(part)

	if len(s.events) >= s.config.MinEvents {
		ready = append(ready, s.takeLocked())
	}
	s.mu.Unlock()

	s.transmitAll(ready)
}

// Flush transmits everything currently queued. The queue is emptied before
// Flush returns; later Sends start a new batch.
func (s *BatchSender) Flush() {
	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		return
	}
	b := s.takeLocked()
	s.mu.Unlock()

	s.transmit(b)
}

// Close flushes remaining events, waits for in-flight transmissions and
// closes the transport. Close is idempotent.
func (s *BatchSender) Close() error {
	s.Flush()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	if s.config.Transport == nil {
		return nil
	}
	return s.config.Transport.Close()
}

// wouldOverflow reports whether adding a part of n bytes exceeds MaxLength.
// An empty queue never overflows, so oversized events go out alone.
func (s *BatchSender) wouldOverflow(n int) bool {
	if s.config.MaxLength <= 0 || len(s.parts) == 0 {
		return false
	}
	total := s.size + n + s.config.Encoder.Overhead(len(s.parts)+1)
	return total > s.config.MaxLength
}

// takeLocked swaps the queue out as a batch. Caller holds s.mu.
func (s *BatchSender) takeLocked() Batch {
	b := Batch{
		Events:      s.events,
		Payload:     s.config.Encoder.Join(s.parts),
		ContentType: s.config.Encoder.ContentType(),
	}
	s.events = nil
	s.parts = nil
	s.size = 0
	return b
}

func (s *BatchSender) fields(evt *event.Event) map[string]any {
	fields := evt.Fields()
	for k := range s.ignore {
		delete(fields, k)
	}
	return fields
}

func (s *BatchSender) transmitAll(batches []Batch) {
	for _, b := range batches {
		s.transmit(b)
	}
}

func (s *BatchSender) transmit(b Batch) {
	if len(b.Events) == 0 {
		return
	}
	if s.config.Disabled || s.config.Transport == nil {
		observability.LogFlush(s.config.Logger, "disabled", len(b.Events), len(b.Payload))
		s.notify(b, nil)
		return
	}
	if s.config.Async {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.deliver(b)
		}()
		return
	}
	s.deliver(b)
}

func (s *BatchSender) deliver(b Batch) {
	endpoint := s.config.Transport.Endpoint()
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	ctx, span := s.config.Spans.StartBatch(ctx, observability.BatchInfo{
		Endpoint:    endpoint,
		Events:      len(b.Events),
		SizeBytes:   len(b.Payload),
		ContentType: b.ContentType,
	})
	done := observability.TimedOperation()

	err := s.config.Transport.Transmit(ctx, b)
	if err != nil {
		err = &TransmitError{Endpoint: endpoint, Events: len(b.Events), Err: err}
		observability.LogTransmitError(s.config.Logger, endpoint, len(b.Events), err)
	} else {
		observability.LogFlush(s.config.Logger, endpoint, len(b.Events), len(b.Payload))
	}

	s.config.Spans.EndBatch(span, err)
	s.config.Metrics.RecordBatch(ctx, len(b.Events), len(b.Payload), done(), err)
	s.notify(b, err)
}

func (s *BatchSender) notify(b Batch, err error) {
	if s.config.OnSend != nil {
		s.config.OnSend(b, err)
	}
}
