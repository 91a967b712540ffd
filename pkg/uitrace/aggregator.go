package uitrace

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
	"weak"

	"github.com/randalmurphal/uitrace/pkg/uitrace/event"
	"github.com/randalmurphal/uitrace/pkg/uitrace/observability"
	"github.com/randalmurphal/uitrace/pkg/uitrace/registry"
	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
	"github.com/randalmurphal/uitrace/pkg/uitrace/transport"
)

// Reasons logged and counted when a call cannot be correlated.
const (
	reasonNoTrace     = "no active trace"
	reasonNoComponent = "nil component"
	reasonInFlight    = "load already in flight"
	reasonUnmatched   = "no matching begin"
	reasonEvicted     = "pending event evicted"
	reasonErrorLimit  = "error limit reached"
)

// hierarchyUnknown is written as cmpH when no handler knows the hierarchy.
const hierarchyUnknown = "none"

// ActionOptions describe a user action.
type ActionOptions[C any] struct {
	// Component the user interacted with. Optional.
	Component *C

	Description string

	// StartTime is an absolute time. Zero means now.
	StartTime time.Time

	MiscData map[string]any
}

// LoadOptions describe one side of a component load.
type LoadOptions[C any] struct {
	Component   *C
	Description string

	// StartTime (BeginLoad) and StopTime (EndLoad) are absolute.
	// Zero means now.
	StartTime time.Time
	StopTime  time.Time

	MiscData map[string]any
}

// pendingEvent is a started event waiting for its finish call.
type pendingEvent[C any] struct {
	evt *event.Event
	cmp weak.Pointer[C]
}

// componentInfo is handler-derived metadata, resolved before locking so
// handlers may call back into the aggregator.
type componentInfo[C any] struct {
	cmp       *C
	typ       string
	hierarchy []*C
	path      string
	appName   string
}

// Aggregator correlates UI events into traces and hands finished events
// to a sender. It is safe for concurrent use.
type Aggregator[C any] struct {
	sender   sender.Sender
	owned    *sender.BatchSender
	handlers *registry.Registry[C]
	ids      event.IDSource
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	now      func() time.Time
	tabID    string

	errorLimit int

	mu            sync.Mutex
	start         time.Time
	defaultParams map[string]any
	traceID       string
	errorCount    int
	pending       []pendingEvent[C]
	components    *sideTable[C]

	closeCh   chan struct{}
	closeOnce sync.Once
}

// New creates an Aggregator. It fails only when the beacon URL cannot be
// turned into a transport.
//
// Example:
//
//	agg, err := uitrace.New(
//	    uitrace.WithBeaconURL[Widget]("https://collector.example.com/beacon"),
//	    uitrace.WithHandlers[Widget](widgetHandler{}),
//	    uitrace.WithFlushInterval[Widget](5*time.Second),
//	)
func New[C any](opts ...Option[C]) (*Aggregator[C], error) {
	o := defaultOptions[C]()
	for _, opt := range opts {
		opt(&o)
	}

	a := &Aggregator[C]{
		sender:     o.sender,
		handlers:   registry.New(o.handlers...),
		ids:        o.ids,
		logger:     o.logger,
		metrics:    o.metrics,
		now:        o.clock,
		errorLimit: o.errorLimit,
		components: newSideTable[C](),
		closeCh:    make(chan struct{}),
	}

	if a.sender == nil {
		cfg := o.senderConfig
		cfg.Logger = o.logger
		cfg.Metrics = o.metrics
		cfg.Spans = o.spans
		if o.beaconURL != "" {
			t, err := transport.NewFromURL(o.beaconURL, o.transport)
			if err != nil {
				return nil, fmt.Errorf("create beacon transport: %w", err)
			}
			cfg.Transport = t
		}
		a.owned = sender.New(cfg)
		a.sender = a.owned
	}

	a.start = a.now()
	a.tabID = a.ids.NewID()
	a.logger = a.logger.With(slog.String("tab_id", a.tabID))

	if o.flushInterval > 0 {
		go a.flushLoop(o.flushInterval)
	}
	return a, nil
}

// StartSession concludes every pending event with status, flushes once,
// and starts a new session with defaultParams merged into every event.
// The current trace survives.
func (a *Aggregator[C]) StartSession(status string, defaultParams map[string]any) {
	a.mu.Lock()
	now := a.now()
	concluded := make([]*event.Event, 0, len(a.pending))
	for _, p := range a.pending {
		a.finishLocked(p.evt, now, status, nil)
		concluded = append(concluded, p.evt)
	}
	a.pending = nil
	a.components.reset()
	a.defaultParams = maps.Clone(defaultParams)
	a.errorCount = 0
	a.mu.Unlock()

	observability.LogSessionStart(a.logger, status, len(concluded))
	for _, evt := range concluded {
		a.send(evt)
	}
	a.sender.Flush()
}

// RecordAction records an instantaneous user action and makes it the root
// of a new trace. It returns the trace id.
func (a *Aggregator[C]) RecordAction(opts ActionOptions[C]) string {
	info := a.describe(opts.Component)
	at := a.timeOr(opts.StartTime)

	a.mu.Lock()
	traceID := a.ids.NewID()
	a.traceID = traceID
	evt := a.newEventLocked(event.KindAction, info, at, opts.MiscData)
	evt.EventID = traceID
	evt.Description = opts.Description
	a.finishLocked(evt, at, "", nil)
	a.mu.Unlock()

	observability.LogAction(a.logger, traceID, opts.Description)
	a.metrics.RecordEventStarted(context.Background(), string(event.KindAction))
	a.send(evt)
	return traceID
}

// RecordError records an error against the current trace and flushes
// immediately. It returns the event id, or "" when there is no trace or
// the session's error limit is reached.
func (a *Aggregator[C]) RecordError(message string, miscData map[string]any) string {
	a.mu.Lock()
	if a.traceID == "" {
		a.mu.Unlock()
		a.dropped(event.KindError, reasonNoTrace)
		return ""
	}
	if a.errorCount >= a.errorLimit {
		a.mu.Unlock()
		a.dropped(event.KindError, reasonErrorLimit)
		return ""
	}
	a.errorCount++

	now := a.now()
	evt := a.newEventLocked(event.KindError, componentInfo[C]{}, now, miscData)
	evt.ParentID = a.traceID
	evt.Error = a.truncateError(message)
	a.finishLocked(evt, now, "", nil)
	a.mu.Unlock()

	a.metrics.RecordError(context.Background())
	a.metrics.RecordEventStarted(context.Background(), string(event.KindError))
	a.send(evt)
	a.sender.Flush()
	return evt.EventID
}

// BeginLoad starts a load event for a component. A second BeginLoad for a
// component whose load is still pending is ignored.
func (a *Aggregator[C]) BeginLoad(opts LoadOptions[C]) {
	if opts.Component == nil {
		a.dropped(event.KindLoad, reasonNoComponent)
		return
	}
	info := a.describe(opts.Component)
	at := a.timeOr(opts.StartTime)

	a.mu.Lock()
	if a.traceID == "" {
		a.mu.Unlock()
		a.dropped(event.KindLoad, reasonNoTrace)
		return
	}
	st := a.components.ensure(opts.Component, a.ids.NewID)
	if st.loadID != "" {
		a.mu.Unlock()
		a.dropped(event.KindLoad, reasonInFlight)
		return
	}
	evt := a.startLocked(event.KindLoad, info, at, opts.MiscData)
	evt.Description = opts.Description
	st.loadID = evt.EventID
	a.mu.Unlock()

	a.metrics.RecordEventStarted(context.Background(), string(event.KindLoad))
}

// EndLoad finishes the component's pending load with status Ready. Calls
// without a matching BeginLoad, or after the load was concluded by
// StartSession, are ignored.
func (a *Aggregator[C]) EndLoad(opts LoadOptions[C]) {
	if opts.Component == nil {
		a.dropped(event.KindLoad, reasonNoComponent)
		return
	}
	at := a.timeOr(opts.StopTime)

	a.mu.Lock()
	st := a.components.lookup(opts.Component)
	if st == nil || st.loadID == "" {
		a.mu.Unlock()
		a.dropped(event.KindLoad, reasonUnmatched)
		return
	}
	evt := a.takePendingLocked(st.loadID)
	st.loadID = ""
	if evt == nil {
		a.mu.Unlock()
		a.dropped(event.KindLoad, reasonEvicted)
		return
	}

	evt.First = event.Bool(!st.loaded)
	st.loaded = true
	if opts.Description != "" {
		evt.Description = opts.Description
	}
	a.finishLocked(evt, at, event.StatusReady, opts.MiscData)
	a.mu.Unlock()

	a.send(evt)
}

// BeginDataRequest starts a data request event for requester. The returned
// metadata carries the headers to forward with the request and the id to
// pass to EndDataRequest. It returns false when there is no trace.
func (a *Aggregator[C]) BeginDataRequest(requester *C, url string, miscData map[string]any) (*RequestMetadata, bool) {
	if requester == nil {
		a.dropped(event.KindDataRequest, reasonNoComponent)
		return nil, false
	}
	info := a.describe(requester)
	short := shortURL(url)

	a.mu.Lock()
	if a.traceID == "" {
		a.mu.Unlock()
		a.dropped(event.KindDataRequest, reasonNoTrace)
		return nil, false
	}
	st := a.components.ensure(requester, a.ids.NewID)
	evt := a.startLocked(event.KindDataRequest, info, a.now(), miscData)
	evt.URL = short
	evt.Description = "data request: " + short

	requestID := a.ids.NewID()
	st.requests[requestID] = evt.EventID
	meta := &RequestMetadata{
		TraceID:   evt.TraceID,
		RequestID: requestID,
		Headers: map[string]string{
			HeaderTraceID:  evt.TraceID,
			HeaderParentID: evt.EventID,
		},
	}
	a.mu.Unlock()

	a.metrics.RecordEventStarted(context.Background(), string(event.KindDataRequest))
	return meta, true
}

// EndDataRequest finishes the data request started with requestID. The
// server's request id is taken from response when it carries one.
func (a *Aggregator[C]) EndDataRequest(requester *C, response any, requestID string) {
	if requester == nil {
		a.dropped(event.KindDataRequest, reasonNoComponent)
		return
	}
	serverID := responseRequestID(response)

	a.mu.Lock()
	st := a.components.lookup(requester)
	if st == nil {
		a.mu.Unlock()
		a.dropped(event.KindDataRequest, reasonUnmatched)
		return
	}
	eventID, ok := st.requests[requestID]
	if !ok {
		a.mu.Unlock()
		a.dropped(event.KindDataRequest, reasonUnmatched)
		return
	}
	delete(st.requests, requestID)

	evt := a.takePendingLocked(eventID)
	if evt == nil {
		a.mu.Unlock()
		a.dropped(event.KindDataRequest, reasonEvicted)
		return
	}
	evt.RallyRequestID = serverID
	a.finishLocked(evt, a.now(), event.StatusReady, nil)
	a.mu.Unlock()

	a.send(evt)
}

// ComponentType returns the component's type name, or "" when no handler
// knows it.
func (a *Aggregator[C]) ComponentType(cmp *C) string {
	return a.handlers.Type(cmp)
}

// SendAllRemainingEvents flushes the sender.
func (a *Aggregator[C]) SendAllRemainingEvents() {
	a.sender.Flush()
}

// Destroy stops periodic flushing. When the aggregator built its own
// sender, the sender is closed, flushing what it still holds.
// Destroy is idempotent.
func (a *Aggregator[C]) Destroy() {
	a.closeOnce.Do(func() {
		close(a.closeCh)
		if a.owned != nil {
			if err := a.owned.Close(); err != nil {
				a.logger.Warn("close sender", slog.String("error", err.Error()))
			}
		}
	})
}

// PendingCount returns the number of started but unfinished events.
func (a *Aggregator[C]) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// CurrentTraceID returns the id of the active user action, or "".
func (a *Aggregator[C]) CurrentTraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.traceID
}

// flushLoop flushes the sender on every tick until Destroy.
func (a *Aggregator[C]) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.sender.Flush()
		case <-a.closeCh:
			return
		}
	}
}

// describe asks the handlers about cmp.
func (a *Aggregator[C]) describe(cmp *C) componentInfo[C] {
	if cmp == nil {
		return componentInfo[C]{}
	}
	info := componentInfo[C]{
		cmp:       cmp,
		typ:       a.handlers.Type(cmp),
		hierarchy: a.handlers.Hierarchy(cmp),
		appName:   a.handlers.AppName(cmp),
	}
	info.path = a.hierarchyPath(info.hierarchy)
	return info
}

// hierarchyPath joins the known component types of a hierarchy with ":".
func (a *Aggregator[C]) hierarchyPath(hierarchy []*C) string {
	if len(hierarchy) == 0 {
		return hierarchyUnknown
	}
	types := make([]string, 0, len(hierarchy))
	for _, c := range hierarchy {
		if t := a.handlers.Type(c); t != "" {
			types = append(types, t)
		}
	}
	return strings.Join(types, ":")
}

// newEventLocked builds an event for the current trace. Caller holds a.mu.
func (a *Aggregator[C]) newEventLocked(kind event.Kind, info componentInfo[C], at time.Time, misc map[string]any) *event.Event {
	evt := &event.Event{
		EventID:   a.ids.NewID(),
		TraceID:   a.traceID,
		Type:      kind,
		TabID:     a.tabID,
		BrowserTS: at.UnixMilli(),
		Start:     a.relative(at),
		Params:    maps.Clone(misc),
	}
	if info.cmp != nil {
		st := a.components.ensure(info.cmp, a.ids.NewID)
		evt.ComponentID = st.id
		evt.ComponentType = info.typ
		evt.Hierarchy = info.path
		evt.AppName = info.appName
	}
	return evt
}

// startLocked builds an event parented by findParentIDLocked and adds it
// to the pending set. Caller holds a.mu.
func (a *Aggregator[C]) startLocked(kind event.Kind, info componentInfo[C], at time.Time, misc map[string]any) *event.Event {
	evt := a.newEventLocked(kind, info, at, misc)
	evt.ParentID = a.findParentIDLocked(info)
	a.pending = append(a.pending, pendingEvent[C]{evt: evt, cmp: weak.Make(info.cmp)})
	return evt
}

// findParentIDLocked walks the hierarchy in its natural order. For each
// ancestor the pending set is scanned newest first, skipping data
// requests, for an event of the current trace owned by that ancestor or
// by the component itself. The first hit wins; otherwise the trace is the
// parent. Caller holds a.mu.
func (a *Aggregator[C]) findParentIDLocked(info componentInfo[C]) string {
	self := weak.Make(info.cmp)
	for _, ancestor := range info.hierarchy {
		owner := weak.Make(ancestor)
		for i := len(a.pending) - 1; i >= 0; i-- {
			p := a.pending[i]
			if p.evt.Type == event.KindDataRequest || p.evt.TraceID != a.traceID {
				continue
			}
			if p.cmp == owner || p.cmp == self {
				return p.evt.EventID
			}
		}
	}
	return a.traceID
}

// takePendingLocked removes and returns the pending event with id, or nil.
// Caller holds a.mu.
func (a *Aggregator[C]) takePendingLocked(id string) *event.Event {
	i := slices.IndexFunc(a.pending, func(p pendingEvent[C]) bool {
		return p.evt.EventID == id
	})
	if i < 0 {
		return nil
	}
	evt := a.pending[i].evt
	a.pending = slices.Delete(a.pending, i, i+1)
	return evt
}

// finishLocked stamps the stop time and status and merges parameters:
// session defaults, then the event's own data, then finish data.
// Caller holds a.mu.
func (a *Aggregator[C]) finishLocked(evt *event.Event, at time.Time, status string, misc map[string]any) {
	params := make(map[string]any, len(a.defaultParams)+len(evt.Params)+len(misc))
	maps.Copy(params, a.defaultParams)
	maps.Copy(params, evt.Params)
	maps.Copy(params, misc)
	if len(params) > 0 {
		evt.Params = params
	}

	evt.Stop = a.relative(at)
	if status != "" {
		evt.Status = status
	}
}

func (a *Aggregator[C]) send(evt *event.Event) {
	a.metrics.RecordEventFinished(context.Background(), string(evt.Type), evt.Status)
	a.sender.Send(evt)
}

func (a *Aggregator[C]) dropped(kind event.Kind, reason string) {
	observability.LogEventDropped(a.logger, string(kind), reason)
	a.metrics.RecordEventDropped(context.Background(), string(kind), reason)
}

// truncateError cuts message to the share of the sender's payload limit
// one error may use: 90% of the limit split across a typical batch.
func (a *Aggregator[C]) truncateError(message string) string {
	ml, ok := a.sender.(sender.MaxLengther)
	if !ok || ml.MaxLength() <= 0 {
		return message
	}
	batch := 1
	if bs, ok := a.sender.(sender.BatchSizer); ok && bs.ExpectedBatchSize() > 0 {
		batch = bs.ExpectedBatchSize()
	}
	budget := int(math.Floor(float64(ml.MaxLength()) * 0.9 / float64(batch)))
	if utf8.RuneCountInString(message) <= budget {
		return message
	}
	runes := []rune(message)
	return string(runes[:budget])
}

func (a *Aggregator[C]) timeOr(t time.Time) time.Time {
	if t.IsZero() {
		return a.now()
	}
	return t
}

// relative converts an absolute time to milliseconds since session start.
func (a *Aggregator[C]) relative(t time.Time) int64 {
	return t.Sub(a.start).Milliseconds()
}
