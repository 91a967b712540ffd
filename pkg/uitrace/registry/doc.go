// Package registry provides the ordered handler registry uitrace uses to
// learn about opaque UI components.
//
// A Handler knows one UI toolkit. Given a component it can report the
// component's type name, its ancestor chain, and the name of the
// application it belongs to. The engine never inspects components itself.
//
// # Basic Usage
//
// Register handlers in priority order:
//
//	r := registry.New[Widget]()
//	r.Register(panelHandler)
//	r.Register(registry.HandlerFuncs[Widget]{
//	    TypeFunc: func(w *Widget) string { return w.Kind },
//	})
//
//	typ := r.Type(w)           // first non-empty answer, or ""
//	chain := r.Hierarchy(w)    // first non-empty chain, or nil
//
// # Resolution
//
// For each question the registry asks handlers in registration order and
// accepts the first non-empty answer. No answer is "unknown", never an
// error. A handler that panics is treated as having no answer.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Queries run over a
// snapshot of the handler list, so a handler may register further handlers
// without deadlocking.
package registry
