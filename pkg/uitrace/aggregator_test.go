package uitrace

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/uitrace/pkg/uitrace/config"
	"github.com/randalmurphal/uitrace/pkg/uitrace/event"
	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
	"github.com/randalmurphal/uitrace/pkg/uitrace/transport"
)

func TestRecordAction(t *testing.T) {
	clock := newFakeClock()
	agg, rec := newTestAggregator(t, WithClock[widget](clock.Now))

	panel := newWidget("panel", nil)
	button := newWidget("button", panel)
	button.app = "planning"

	clock.Advance(1500 * time.Millisecond)
	traceID := agg.RecordAction(ActionOptions[widget]{Component: button, Description: "clicked save"})

	events := rec.events()
	require.Len(t, events, 1)
	evt := events[0]

	assert.Equal(t, traceID, evt.EventID)
	assert.Equal(t, traceID, evt.TraceID)
	assert.Empty(t, evt.ParentID, "root action has no parent")
	assert.Equal(t, event.KindAction, evt.Type)
	assert.Equal(t, "clicked save", evt.Description)
	assert.Equal(t, int64(1500), evt.Start)
	assert.Equal(t, evt.Start, evt.Stop)
	assert.Equal(t, clock.Now().UnixMilli(), evt.BrowserTS)
	assert.Equal(t, "button", evt.ComponentType)
	assert.Equal(t, "button:panel", evt.Hierarchy)
	assert.Equal(t, "planning", evt.AppName)
	assert.NotEmpty(t, evt.ComponentID)
	assert.NotEmpty(t, evt.TabID)
	assert.Equal(t, traceID, agg.CurrentTraceID())
	assert.Zero(t, agg.PendingCount())
}

func TestRecordActionAbsoluteStartTime(t *testing.T) {
	clock := newFakeClock()
	agg, rec := newTestAggregator(t, WithClock[widget](clock.Now))

	begin := clock.Now()
	clock.Advance(time.Second)
	agg.RecordAction(ActionOptions[widget]{StartTime: begin.Add(200 * time.Millisecond)})

	evt := rec.events()[0]
	assert.Equal(t, int64(200), evt.Start)
	assert.Equal(t, int64(200), evt.Stop)
	assert.Empty(t, evt.ComponentType)
	assert.Empty(t, evt.Hierarchy)
}

func TestRecordActionStartsNewTrace(t *testing.T) {
	agg, rec := newTestAggregator(t)
	grid := newWidget("grid", nil)

	first := agg.RecordAction(ActionOptions[widget]{})
	second := agg.RecordAction(ActionOptions[widget]{})
	require.NotEqual(t, first, second)

	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})

	loads := rec.ofKind(event.KindLoad)
	require.Len(t, loads, 1)
	assert.Equal(t, second, loads[0].TraceID)
	assert.Equal(t, second, loads[0].ParentID)
}

func TestLoadParentedToPendingAncestor(t *testing.T) {
	agg, rec := newTestAggregator(t)
	page := newWidget("page", nil)
	grid := newWidget("grid", page)

	traceID := agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{Component: page})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	assert.Equal(t, 2, agg.PendingCount())

	agg.EndLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: page})

	loads := rec.ofKind(event.KindLoad)
	require.Len(t, loads, 2)
	gridLoad, pageLoad := loads[0], loads[1]

	assert.Equal(t, "grid", gridLoad.ComponentType)
	assert.Equal(t, "grid:page", gridLoad.Hierarchy)
	assert.Equal(t, pageLoad.EventID, gridLoad.ParentID)
	assert.Equal(t, traceID, pageLoad.ParentID)
	assert.Equal(t, traceID, gridLoad.TraceID)
	assert.Equal(t, event.StatusReady, gridLoad.Status)
}

func TestLoadWithoutPendingAncestorParentsToTrace(t *testing.T) {
	agg, rec := newTestAggregator(t)
	page := newWidget("page", nil)
	grid := newWidget("grid", page)

	traceID := agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{Component: page})
	agg.EndLoad(LoadOptions[widget]{Component: page})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})

	for _, evt := range rec.ofKind(event.KindLoad) {
		assert.Equal(t, traceID, evt.ParentID, evt.ComponentType)
	}
}

func TestParentSearchFollowsHierarchyOrder(t *testing.T) {
	agg, rec := newTestAggregator(t)
	page := newWidget("page", nil)
	panel := newWidget("panel", page)
	grid := newWidget("grid", panel)

	agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{Component: panel})
	agg.BeginLoad(LoadOptions[widget]{Component: page})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.StartSession(event.StatusNavigation, nil)

	byType := map[string]*event.Event{}
	for _, evt := range rec.ofKind(event.KindLoad) {
		byType[evt.ComponentType] = evt
	}
	require.Len(t, byType, 3)

	// page started after panel, but panel comes first in grid's hierarchy.
	assert.Equal(t, byType["panel"].EventID, byType["grid"].ParentID)
}

func TestDataRequestParentedToOwnPendingLoad(t *testing.T) {
	agg, rec := newTestAggregator(t)
	grid := newWidget("grid", newWidget("page", nil))

	agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	meta, ok := agg.BeginDataRequest(grid, "http://h/slm/webservice/v2.0/defect?fetch=true", nil)
	require.True(t, ok)
	agg.EndDataRequest(grid, nil, meta.RequestID)
	agg.EndLoad(LoadOptions[widget]{Component: grid})

	requests := rec.ofKind(event.KindDataRequest)
	loads := rec.ofKind(event.KindLoad)
	require.Len(t, requests, 1)
	require.Len(t, loads, 1)
	assert.Equal(t, loads[0].EventID, requests[0].ParentID)
}

func TestDataRequestsAreNeverParents(t *testing.T) {
	agg, rec := newTestAggregator(t)
	panel := newWidget("panel", nil)
	grid := newWidget("grid", panel)

	traceID := agg.RecordAction(ActionOptions[widget]{})
	_, ok := agg.BeginDataRequest(panel, "/data", nil)
	require.True(t, ok)
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})

	loads := rec.ofKind(event.KindLoad)
	require.Len(t, loads, 1)
	assert.Equal(t, traceID, loads[0].ParentID)
}

func TestBeginLoadDuplicateIgnored(t *testing.T) {
	agg, rec := newTestAggregator(t)
	grid := newWidget("grid", nil)

	agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	assert.Equal(t, 1, agg.PendingCount())

	agg.EndLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})
	assert.Len(t, rec.ofKind(event.KindLoad), 1)
}

func TestEndLoadWithoutBeginIgnored(t *testing.T) {
	agg, rec := newTestAggregator(t)

	agg.RecordAction(ActionOptions[widget]{})
	agg.EndLoad(LoadOptions[widget]{Component: newWidget("grid", nil)})
	agg.EndLoad(LoadOptions[widget]{})

	assert.Empty(t, rec.ofKind(event.KindLoad))
}

func TestLoadWithoutTraceIgnored(t *testing.T) {
	agg, rec := newTestAggregator(t)
	grid := newWidget("grid", nil)

	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})

	assert.Zero(t, agg.PendingCount())
	assert.Empty(t, rec.events())
}

func TestEndLoadFirstFlagAndTimes(t *testing.T) {
	clock := newFakeClock()
	agg, rec := newTestAggregator(t, WithClock[widget](clock.Now))
	grid := newWidget("grid", nil)
	begin := clock.Now()

	agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{
		Component: grid,
		StartTime: begin.Add(100 * time.Millisecond),
		MiscData:  map[string]any{"phase": "begin", "rows": 10},
	})
	agg.EndLoad(LoadOptions[widget]{
		Component:   grid,
		StopTime:    begin.Add(350 * time.Millisecond),
		Description: "grid ready",
		MiscData:    map[string]any{"phase": "end"},
	})

	clock.Advance(time.Second)
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})

	loads := rec.ofKind(event.KindLoad)
	require.Len(t, loads, 2)

	first := loads[0]
	assert.Equal(t, int64(100), first.Start)
	assert.Equal(t, int64(350), first.Stop)
	assert.Equal(t, "grid ready", first.Description)
	require.NotNil(t, first.First)
	assert.True(t, *first.First)
	assert.Equal(t, "end", first.Params["phase"])
	assert.Equal(t, 10, first.Params["rows"])

	require.NotNil(t, loads[1].First)
	assert.False(t, *loads[1].First)
	assert.Equal(t, int64(1000), loads[1].Start)
}

func TestRecordErrorLimit(t *testing.T) {
	agg, rec := newTestAggregator(t, WithErrorLimit[widget](3))

	traceID := agg.RecordAction(ActionOptions[widget]{})
	var ids []string
	for range 4 {
		ids = append(ids, agg.RecordError("boom", map[string]any{"line": 12}))
	}

	errs := rec.ofKind(event.KindError)
	require.Len(t, errs, 3)
	assert.Empty(t, ids[3])
	assert.Equal(t, 3, rec.flushCount(), "every admitted error flushes")
	for i, evt := range errs {
		assert.Equal(t, ids[i], evt.EventID)
		assert.Equal(t, traceID, evt.TraceID)
		assert.Equal(t, traceID, evt.ParentID)
		assert.Equal(t, "boom", evt.Error)
		assert.Equal(t, 12, evt.Params["line"])
		assert.Equal(t, evt.Start, evt.Stop)
	}

	// A new session restores the quota.
	agg.StartSession(event.StatusNavigation, nil)
	assert.NotEmpty(t, agg.RecordError("again", nil))
}

func TestRecordErrorDefaultLimit(t *testing.T) {
	agg, rec := newTestAggregator(t)
	agg.RecordAction(ActionOptions[widget]{})
	for range DefaultErrorLimit + 1 {
		agg.RecordError("boom", nil)
	}
	assert.Len(t, rec.ofKind(event.KindError), DefaultErrorLimit)
}

func TestRecordErrorWithoutTrace(t *testing.T) {
	agg, rec := newTestAggregator(t)

	assert.Empty(t, agg.RecordError("boom", nil))
	assert.Empty(t, rec.events())
	assert.Zero(t, rec.flushCount())
}

func TestRecordErrorTruncatesToBudget(t *testing.T) {
	rec := &recordingSender{}
	agg, _ := newTestAggregator(t, WithSender[widget](limitedSender{recordingSender: rec, maxLength: 100, batchSize: 4}))

	agg.RecordAction(ActionOptions[widget]{})
	agg.RecordError(strings.Repeat("x", 50), nil)
	agg.RecordError(strings.Repeat("é", 30), nil)
	agg.RecordError("short", nil)

	errs := rec.ofKind(event.KindError)
	require.Len(t, errs, 3)
	assert.Equal(t, strings.Repeat("x", 22), errs[0].Error)
	assert.Equal(t, strings.Repeat("é", 22), errs[1].Error)
	assert.Equal(t, "short", errs[2].Error)
}

func TestRecordErrorWithoutLimitKeepsMessage(t *testing.T) {
	agg, rec := newTestAggregator(t)
	long := strings.Repeat("x", 5000)

	agg.RecordAction(ActionOptions[widget]{})
	agg.RecordError(long, nil)

	assert.Equal(t, long, rec.ofKind(event.KindError)[0].Error)
}

func TestStartSessionConcludesPending(t *testing.T) {
	agg, rec := newTestAggregator(t)
	page := newWidget("page", nil)
	grid := newWidget("grid", page)

	traceID := agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{Component: page})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	meta, ok := agg.BeginDataRequest(grid, "/data", nil)
	require.True(t, ok)

	before := rec.flushCount()
	agg.StartSession(event.StatusNavigation, nil)

	assert.Equal(t, before+1, rec.flushCount(), "exactly one flush")
	assert.Zero(t, agg.PendingCount())
	assert.Equal(t, traceID, agg.CurrentTraceID())

	concluded := rec.events()[1:]
	require.Len(t, concluded, 3)
	for _, evt := range concluded {
		assert.Equal(t, event.StatusNavigation, evt.Status)
	}

	// Ends for concluded events are out of scope.
	sent := len(rec.events())
	agg.EndLoad(LoadOptions[widget]{Component: grid})
	agg.EndDataRequest(grid, nil, meta.RequestID)
	assert.Len(t, rec.events(), sent)

	// The component can load again, and it is a first load in this session.
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})
	last := rec.events()[len(rec.events())-1]
	assert.Equal(t, event.KindLoad, last.Type)
	require.NotNil(t, last.First)
	assert.True(t, *last.First)
}

func TestStartSessionResetsFirstLoad(t *testing.T) {
	agg, rec := newTestAggregator(t)
	grid := newWidget("grid", nil)

	agg.RecordAction(ActionOptions[widget]{})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})
	agg.StartSession(event.StatusNavigation, nil)
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})

	loads := rec.ofKind(event.KindLoad)
	require.Len(t, loads, 2)
	assert.True(t, *loads[0].First)
	assert.True(t, *loads[1].First)
	assert.Equal(t, loads[0].ComponentID, loads[1].ComponentID, "component ids survive sessions")
}

func TestStartSessionDefaultParams(t *testing.T) {
	agg, rec := newTestAggregator(t)

	agg.StartSession(event.StatusNavigation, map[string]any{"env": "prod", "user": "u1", "eType": "bogus"})
	agg.RecordAction(ActionOptions[widget]{MiscData: map[string]any{"env": "stage"}})

	fields := rec.events()[0].Fields()
	assert.Equal(t, "stage", fields["env"], "event data wins over defaults")
	assert.Equal(t, "u1", fields["user"])
	assert.Equal(t, "action", fields["eType"], "named fields win over params")
}

func TestStartSessionWithNothingPending(t *testing.T) {
	agg, rec := newTestAggregator(t)

	agg.StartSession(event.StatusNavigation, nil)

	assert.Empty(t, rec.events())
	assert.Equal(t, 1, rec.flushCount())
}

func TestBeginDataRequestMetadata(t *testing.T) {
	agg, rec := newTestAggregator(t)
	grid := newWidget("grid", nil)

	traceID := agg.RecordAction(ActionOptions[widget]{})
	meta, ok := agg.BeginDataRequest(grid, "http://h/slm/webservice/1.27/Defect.js?x=1", map[string]any{"method": "GET"})
	require.True(t, ok)
	require.NotNil(t, meta)

	assert.Equal(t, traceID, meta.TraceID)
	assert.NotEmpty(t, meta.RequestID)
	assert.Equal(t, traceID, meta.Headers[HeaderTraceID])
	parentID := meta.Headers[HeaderParentID]
	assert.NotEmpty(t, parentID)

	h := http.Header{}
	h.Set(RequestIDHeader, "srv-42")
	agg.EndDataRequest(grid, &http.Response{Header: h}, meta.RequestID)

	requests := rec.ofKind(event.KindDataRequest)
	require.Len(t, requests, 1)
	evt := requests[0]
	assert.Equal(t, parentID, evt.EventID, "server spans attach to the request event")
	assert.Equal(t, "1.27/Defect.js", evt.URL)
	assert.Equal(t, "data request: 1.27/Defect.js", evt.Description)
	assert.Equal(t, "srv-42", evt.RallyRequestID)
	assert.Equal(t, event.StatusReady, evt.Status)
	assert.Equal(t, "GET", evt.Params["method"])
}

func TestBeginDataRequestWithoutTrace(t *testing.T) {
	agg, _ := newTestAggregator(t)

	meta, ok := agg.BeginDataRequest(newWidget("grid", nil), "/data", nil)
	assert.False(t, ok)
	assert.Nil(t, meta)

	agg.RecordAction(ActionOptions[widget]{})
	meta, ok = agg.BeginDataRequest(nil, "/data", nil)
	assert.False(t, ok)
	assert.Nil(t, meta)
}

func TestConcurrentRequestsFromOneComponent(t *testing.T) {
	agg, rec := newTestAggregator(t)
	grid := newWidget("grid", nil)

	agg.RecordAction(ActionOptions[widget]{})
	first, _ := agg.BeginDataRequest(grid, "/a", nil)
	second, _ := agg.BeginDataRequest(grid, "/b", nil)
	require.NotEqual(t, first.RequestID, second.RequestID)

	agg.EndDataRequest(grid, nil, second.RequestID)
	agg.EndDataRequest(grid, nil, "unknown")
	agg.EndDataRequest(newWidget("other", nil), nil, first.RequestID)
	agg.EndDataRequest(grid, nil, first.RequestID)
	agg.EndDataRequest(grid, nil, first.RequestID)

	requests := rec.ofKind(event.KindDataRequest)
	require.Len(t, requests, 2)
	assert.Equal(t, "/b", requests[0].URL)
	assert.Equal(t, "/a", requests[1].URL)
	assert.Empty(t, requests[0].RallyRequestID)
}

func TestRoundTripBatch(t *testing.T) {
	var batches []sender.Batch
	bs := sender.New(sender.Config{
		MinEvents: 100,
		OnSend: func(b sender.Batch, err error) {
			assert.NoError(t, err)
			batches = append(batches, b)
		},
	})
	agg, err := New(
		WithSender[widget](bs),
		WithHandlers[widget](widgetHandler()),
	)
	require.NoError(t, err)
	defer agg.Destroy()

	page := newWidget("page", nil)
	grid := newWidget("grid", page)

	actionID := agg.RecordAction(ActionOptions[widget]{Component: page, Description: "open page"})
	agg.BeginLoad(LoadOptions[widget]{Component: grid})
	agg.EndLoad(LoadOptions[widget]{Component: grid})
	meta, ok := agg.BeginDataRequest(grid, "/slm/webservice/v2.0/defect", nil)
	require.True(t, ok)
	agg.EndDataRequest(grid, nil, meta.RequestID)
	agg.SendAllRemainingEvents()

	require.Len(t, batches, 1)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(batches[0].Payload, &decoded))
	require.Len(t, decoded, 3)

	assert.Equal(t, "action", decoded[0]["eType"])
	assert.NotContains(t, decoded[0], "pId")
	for _, fields := range decoded {
		assert.Equal(t, actionID, fields["tId"])
	}
	assert.Equal(t, "load", decoded[1]["eType"])
	assert.Equal(t, actionID, decoded[1]["pId"])
	assert.Equal(t, true, decoded[1]["first"])
	assert.Equal(t, "dataRequest", decoded[2]["eType"])
	assert.Equal(t, actionID, decoded[2]["pId"])
	assert.Equal(t, "v2.0/defect", decoded[2]["url"])
}

func TestComponentType(t *testing.T) {
	agg, _ := newTestAggregator(t)

	assert.Equal(t, "grid", agg.ComponentType(newWidget("grid", nil)))
	assert.Empty(t, agg.ComponentType(&widget{}))
	assert.Empty(t, agg.ComponentType(nil))
}

func TestHierarchyUnknown(t *testing.T) {
	agg, rec := newTestAggregator(t)
	loner := newWidget("loner", nil)

	// A registry with no hierarchy answers.
	bare, err := New(
		WithSender[widget](rec),
		WithHandlers[widget](registryTypeOnly()),
	)
	require.NoError(t, err)
	defer bare.Destroy()

	bare.RecordAction(ActionOptions[widget]{Component: loner})
	agg.RecordAction(ActionOptions[widget]{Component: &widget{parent: loner}})

	events := rec.events()
	require.Len(t, events, 2)
	assert.Equal(t, "none", events[0].Hierarchy)
	assert.Equal(t, "loner", events[1].Hierarchy, "unknown types are skipped")
}

func TestPeriodicFlush(t *testing.T) {
	agg, rec := newTestAggregator(t, WithFlushInterval[widget](10*time.Millisecond))
	agg.RecordAction(ActionOptions[widget]{})

	require.Eventually(t, func() bool { return rec.flushCount() >= 2 }, time.Second, 5*time.Millisecond)

	agg.Destroy()
	stopped := rec.flushCount()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, rec.flushCount(), stopped+1)

	assert.NotPanics(t, agg.Destroy)
}

func TestNewWithBeaconURL(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&batch)) {
			return
		}
		mu.Lock()
		received = append(received, batch...)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	agg, err := New(WithBeaconURL[widget](srv.URL))
	require.NoError(t, err)

	traceID := agg.RecordAction(ActionOptions[widget]{Description: "click"})
	agg.SendAllRemainingEvents()

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, traceID, received[0]["eId"])
	mu.Unlock()

	// Destroy closes the sender it built; later events are dropped.
	agg.Destroy()
	agg.RecordAction(ActionOptions[widget]{})
	agg.SendAllRemainingEvents()

	mu.Lock()
	assert.Len(t, received, 1)
	mu.Unlock()
}

// closingSender records whether Close was called.
type closingSender struct {
	*recordingSender
	closed bool
}

func (s *closingSender) Close() error {
	s.closed = true
	return nil
}

func TestDestroyLeavesCallerSenderOpen(t *testing.T) {
	snd := &closingSender{recordingSender: &recordingSender{}}
	agg, err := New(WithSender[widget](snd))
	require.NoError(t, err)

	agg.Destroy()
	assert.False(t, snd.closed)
}

func TestDestroyFlushesOwnedSender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacons.db")
	agg, err := New(
		WithBeaconURL[widget]("sqlite://"+path),
		WithHandlers[widget](widgetHandler()),
	)
	require.NoError(t, err)

	agg.RecordAction(ActionOptions[widget]{Description: "open board"})
	agg.BeginLoad(LoadOptions[widget]{Component: newWidget("board", nil)})
	agg.Destroy()

	store, err := transport.NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	stored, err := store.List(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, stored[0].Events, "only the finished action is sent")
}

func TestNewUnsupportedBeaconURL(t *testing.T) {
	agg, err := New(WithBeaconURL[widget]("ftp://collector"))
	assert.Nil(t, agg)
	assert.ErrorIs(t, err, transport.ErrUnsupportedScheme)
}

func TestWithSettingsBudgetsErrors(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&batch)) {
			return
		}
		mu.Lock()
		received = append(received, batch...)
		mu.Unlock()
	}))
	defer srv.Close()

	settings := config.DefaultSettings
	settings.BeaconURL = srv.URL
	settings.MaxLength = 1000
	settings.ErrorLimit = 1
	settings.KeysToIgnore = []string{"tabId"}

	agg, err := New(WithSettings[widget](settings))
	require.NoError(t, err)
	defer agg.Destroy()

	agg.RecordAction(ActionOptions[widget]{})
	agg.RecordError(strings.Repeat("x", 500), nil)
	agg.RecordError("dropped", nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.NotContains(t, received[0], "tabId")
	assert.Equal(t, "error", received[1]["eType"])
	assert.Equal(t, strings.Repeat("x", 225), received[1]["error"])
}

func TestWithSettingsQueryEncoding(t *testing.T) {
	queries := make(chan map[string][]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		queries <- r.URL.Query()
	}))
	defer srv.Close()

	settings, err := config.Decode(config.New(map[string]any{
		"beaconUrl": srv.URL,
		"encoding":  "query",
	}))
	require.NoError(t, err)

	agg, err := New(WithSettings[widget](settings))
	require.NoError(t, err)
	defer agg.Destroy()

	traceID := agg.RecordAction(ActionOptions[widget]{})
	agg.SendAllRemainingEvents()

	select {
	case q := <-queries:
		assert.Equal(t, []string{"action"}, q["eType.0"])
		assert.Equal(t, []string{traceID}, q["eId.0"])
	case <-time.After(2 * time.Second):
		t.Fatal("beacon not received")
	}
}

func TestConcurrentLoads(t *testing.T) {
	agg, rec := newTestAggregator(t)
	root := newWidget("root", nil)
	traceID := agg.RecordAction(ActionOptions[widget]{})

	const workers = 32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := newWidget("cell", root)
			agg.BeginLoad(LoadOptions[widget]{Component: w})
			meta, ok := agg.BeginDataRequest(w, "/cell", nil)
			if assert.True(t, ok) {
				agg.EndDataRequest(w, nil, meta.RequestID)
			}
			agg.EndLoad(LoadOptions[widget]{Component: w})
		}()
	}
	wg.Wait()

	assert.Zero(t, agg.PendingCount())
	assert.Len(t, rec.ofKind(event.KindLoad), workers)
	assert.Len(t, rec.ofKind(event.KindDataRequest), workers)
	for _, evt := range rec.ofKind(event.KindLoad) {
		assert.Equal(t, traceID, evt.ParentID)
	}
}

func TestWithAjaxProvidersIgnored(t *testing.T) {
	agg, rec := newTestAggregator(t, WithAjaxProviders[widget]("xhr", "fetch"))
	agg.RecordAction(ActionOptions[widget]{})
	assert.Len(t, rec.events(), 1)
}

func registryTypeOnly() registryTypeHandler { return registryTypeHandler{} }

// registryTypeHandler knows types but never hierarchies.
type registryTypeHandler struct{}

func (registryTypeHandler) ComponentType(w *widget) string        { return w.kind }
func (registryTypeHandler) ComponentHierarchy(*widget) []*widget { return nil }
func (registryTypeHandler) AppName(*widget) string                { return "" }
