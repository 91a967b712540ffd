package uitrace

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/uitrace/pkg/uitrace/event"
	"github.com/randalmurphal/uitrace/pkg/uitrace/registry"
)

// widget is the component type used throughout the tests.
type widget struct {
	kind   string
	app    string
	parent *widget
}

func newWidget(kind string, parent *widget) *widget {
	return &widget{kind: kind, parent: parent}
}

// widgetHandler reports hierarchies nearest first, including the widget.
func widgetHandler() registry.Handler[widget] {
	return registry.HandlerFuncs[widget]{
		TypeFunc: func(w *widget) string { return w.kind },
		HierarchyFunc: func(w *widget) []*widget {
			var chain []*widget
			for p := w; p != nil; p = p.parent {
				chain = append(chain, p)
			}
			return chain
		},
		AppNameFunc: func(w *widget) string { return w.app },
	}
}

// recordingSender keeps every event and counts flushes.
type recordingSender struct {
	mu      sync.Mutex
	sent    []*event.Event
	queue   []*event.Event
	batches [][]*event.Event
	flushes int
}

func (s *recordingSender) Send(evt *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, evt)
	s.queue = append(s.queue, evt)
}

func (s *recordingSender) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	if len(s.queue) > 0 {
		s.batches = append(s.batches, s.queue)
		s.queue = nil
	}
}

func (s *recordingSender) events() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*event.Event(nil), s.sent...)
}

func (s *recordingSender) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

func (s *recordingSender) ofKind(kind event.Kind) []*event.Event {
	var out []*event.Event
	for _, e := range s.events() {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// limitedSender adds the payload limit capabilities.
type limitedSender struct {
	*recordingSender
	maxLength int
	batchSize int
}

func (s limitedSender) MaxLength() int         { return s.maxLength }
func (s limitedSender) ExpectedBatchSize() int { return s.batchSize }

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequentialIDs returns "id-1", "id-2", ...
func sequentialIDs() event.IDSource {
	var n atomic.Int64
	return event.IDFunc(func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	})
}

// newTestAggregator builds an aggregator over a recording sender.
func newTestAggregator(t *testing.T, opts ...Option[widget]) (*Aggregator[widget], *recordingSender) {
	t.Helper()
	rec := &recordingSender{}
	base := []Option[widget]{
		WithSender[widget](rec),
		WithHandlers[widget](widgetHandler()),
		WithIDSource[widget](sequentialIDs()),
	}
	agg, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(agg.Destroy)
	return agg, rec
}
