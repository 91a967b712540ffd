package uitrace

import (
	"runtime"
	"sync"
	"weak"
)

// componentState is the bookkeeping the aggregator keeps per component.
// Its fields are guarded by the aggregator's lock.
type componentState struct {
	id       string
	loadID   string            // pending load event, "" when none
	requests map[string]string // request id -> pending data request event id
	loaded   bool              // completed a load this session
}

// sideTable maps components to their bookkeeping without keeping them
// alive. Entries are removed once the garbage collector reclaims the
// component. The table's own lock guards only the map, since cleanups run
// on a runtime goroutine.
type sideTable[C any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[C]]*componentState
}

func newSideTable[C any]() *sideTable[C] {
	return &sideTable[C]{entries: make(map[weak.Pointer[C]]*componentState)}
}

// lookup returns the state for cmp, or nil if cmp was never seen.
func (t *sideTable[C]) lookup(cmp *C) *componentState {
	if cmp == nil {
		return nil
	}
	key := weak.Make(cmp)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[key]
}

// ensure returns the state for cmp, creating it with a fresh id.
func (t *sideTable[C]) ensure(cmp *C, newID func() string) *componentState {
	key := weak.Make(cmp)

	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.entries[key]; ok {
		return st
	}
	st := &componentState{id: newID(), requests: make(map[string]string)}
	t.entries[key] = st
	runtime.AddCleanup(cmp, t.forget, key)
	return st
}

// reset clears in-flight and first-load bookkeeping for a new session.
// Component ids survive.
func (t *sideTable[C]) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.entries {
		st.loadID = ""
		clear(st.requests)
		st.loaded = false
	}
}

func (t *sideTable[C]) forget(key weak.Pointer[C]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *sideTable[C]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
