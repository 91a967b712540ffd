package registry

import "sync"

// Handler translates an opaque UI component into metadata.
// Every method may return the zero value to mean "not mine".
type Handler[C any] interface {
	// ComponentType returns the component's type name.
	ComponentType(cmp *C) string

	// ComponentHierarchy returns the component's ancestor chain in the
	// toolkit's natural order. The chain may include cmp itself.
	ComponentHierarchy(cmp *C) []*C

	// AppName returns the name of the application owning cmp.
	AppName(cmp *C) string
}

// HandlerFuncs adapts plain functions to the Handler interface.
// Nil functions answer "unknown".
type HandlerFuncs[C any] struct {
	TypeFunc      func(*C) string
	HierarchyFunc func(*C) []*C
	AppNameFunc   func(*C) string
}

// ComponentType implements Handler.
func (h HandlerFuncs[C]) ComponentType(cmp *C) string {
	if h.TypeFunc == nil {
		return ""
	}
	return h.TypeFunc(cmp)
}

// ComponentHierarchy implements Handler.
func (h HandlerFuncs[C]) ComponentHierarchy(cmp *C) []*C {
	if h.HierarchyFunc == nil {
		return nil
	}
	return h.HierarchyFunc(cmp)
}

// AppName implements Handler.
func (h HandlerFuncs[C]) AppName(cmp *C) string {
	if h.AppNameFunc == nil {
		return ""
	}
	return h.AppNameFunc(cmp)
}

// Registry is an ordered, thread-safe list of handlers.
type Registry[C any] struct {
	mu       sync.RWMutex
	handlers []Handler[C]
}

// New creates a registry holding the given handlers in order.
func New[C any](handlers ...Handler[C]) *Registry[C] {
	r := &Registry[C]{}
	r.RegisterMany(handlers...)
	return r
}

// Register appends a handler. Later handlers have lower priority.
func (r *Registry[C]) Register(h Handler[C]) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// RegisterMany appends several handlers, preserving their order.
func (r *Registry[C]) RegisterMany(handlers ...Handler[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			r.handlers = append(r.handlers, h)
		}
	}
}

// Len returns the number of registered handlers.
func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Type returns the first non-empty component type, or "".
func (r *Registry[C]) Type(cmp *C) string {
	return first(r, cmp, Handler[C].ComponentType, func(s string) bool { return s == "" })
}

// Hierarchy returns the first non-empty ancestor chain, or nil.
func (r *Registry[C]) Hierarchy(cmp *C) []*C {
	return first(r, cmp, Handler[C].ComponentHierarchy, func(c []*C) bool { return len(c) == 0 })
}

// AppName returns the first non-empty application name, or "".
func (r *Registry[C]) AppName(cmp *C) string {
	return first(r, cmp, Handler[C].AppName, func(s string) bool { return s == "" })
}

// snapshot returns a copy of the handler list taken under read lock.
func (r *Registry[C]) snapshot() []Handler[C] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler[C](nil), r.handlers...)
}

// first asks every handler in order and returns the first non-empty answer.
func first[C any, V any](r *Registry[C], cmp *C, ask func(Handler[C], *C) V, isEmpty func(V) bool) V {
	var zero V
	if cmp == nil {
		return zero
	}
	for _, h := range r.snapshot() {
		if v, ok := safeAsk(h, cmp, ask); ok && !isEmpty(v) {
			return v
		}
	}
	return zero
}

// safeAsk calls a handler, turning a panic into "no answer".
func safeAsk[C any, V any](h Handler[C], cmp *C, ask func(Handler[C], *C) V) (v V, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return ask(h, cmp), true
}
