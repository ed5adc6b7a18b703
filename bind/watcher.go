package bind

import (
	"fmt"

	"github.com/delaneyj/chainparty/internal/ident"
	"github.com/delaneyj/chainparty/observe"
	"github.com/delaneyj/chainparty/pubsub"
)

// ChangeFunc receives a watcher's new final result and the one it replaced.
type ChangeFunc func(newValue, oldValue any)

// handle is whatever keeps one depth of a chain observed.
type handle interface {
	release()
}

type propertyHandle struct {
	obj   any
	prop  string
	token observe.Token
}

func (h propertyHandle) release() {
	observe.UnregisterListener(h.obj, h.prop, h.token)
}

// dependencyHandles are the watchers created for a segment's declared
// dependencies, in declaration order.
type dependencyHandles []handle

func (d dependencyHandles) release() {
	for i := len(d) - 1; i >= 0; i-- {
		d[i].release()
	}
}

// Watcher keeps the result of a Chain evaluated against a host object
// current.
//
// While bound, results[0] is the host and results[i+1] the value read at
// depth i, and listeners[i] observes depth i, so
// len(listeners) == len(results)-1. A change at depth d releases every
// listener below d and re-evaluates the chain from d+1.
type Watcher struct {
	host     any
	chain    Chain
	onChange ChangeFunc

	bound     bool
	gen       uint64
	results   []any
	listeners []handle
}

// NewWatcher parses expr and returns an unbound watcher over host. onChange
// may be nil.
func NewWatcher(host any, expr string, onChange ChangeFunc) (*Watcher, error) {
	c, err := ParseChain(expr)
	if err != nil {
		return nil, err
	}
	return NewChainWatcher(host, c, onChange), nil
}

// NewChainWatcher returns an unbound watcher for an already parsed chain.
func NewChainWatcher(host any, c Chain, onChange ChangeFunc) *Watcher {
	if len(c) == 0 {
		panic(fmt.Errorf("%w: empty chain", ErrMalformedChain))
	}
	return &Watcher{host: host, chain: c, onChange: onChange}
}

// Bind evaluates the chain and starts observing it. Binding a bound watcher
// does nothing.
func (w *Watcher) Bind() *Watcher {
	if w.bound {
		return w
	}
	w.bound = true
	defer w.unbindOnPanic()
	w.results = append(w.results[:0], w.host)
	w.listeners = w.listeners[:0]
	w.evaluate(w.host, 0)
	return w
}

// Unbind releases every listener, deepest first, and clears the cached
// results. It is safe to call repeatedly and from inside the change handler.
func (w *Watcher) Unbind() *Watcher {
	if !w.bound {
		return w
	}
	w.bound = false
	w.gen++
	for i := len(w.listeners) - 1; i >= 0; i-- {
		if h := w.listeners[i]; h != nil {
			h.release()
		}
	}
	w.listeners = nil
	w.results = nil
	return w
}

func (w *Watcher) release() { w.Unbind() }

// unbindOnPanic undoes a partial Bind before the panic continues.
func (w *Watcher) unbindOnPanic() {
	if r := recover(); r != nil {
		w.Unbind()
		panic(r)
	}
}

// Bound reports whether the watcher is bound.
func (w *Watcher) Bound() bool { return w.bound }

// Host returns the object the chain is evaluated against.
func (w *Watcher) Host() any { return w.host }

// Chain returns the watched chain.
func (w *Watcher) Chain() Chain { return w.chain }

// Result is the value at the end of the chain, or nil when the chain is
// broken by an undefined value or the watcher is unbound.
func (w *Watcher) Result() any {
	if len(w.results) != len(w.chain)+1 {
		return nil
	}
	return w.results[len(w.results)-1]
}

// Depth is the number of observed depths.
func (w *Watcher) Depth() int { return len(w.listeners) }

// Results returns a copy of the cached value at every depth, host first.
func (w *Watcher) Results() []any {
	out := make([]any, len(w.results))
	copy(out, w.results)
	return out
}

// evaluate observes depth and every depth after it, starting from object.
func (w *Watcher) evaluate(object any, depth int) {
	gen := w.gen
	for {
		w.listeners = append(w.listeners[:depth], w.listen(object, depth))
		value := w.read(object, depth)
		if !w.bound || w.gen != gen {
			// Reading re-entered handleChange or Unbind, which already
			// rebuilt or cleared everything from here on.
			return
		}
		w.results = append(w.results[:depth+1], value)
		if ident.IsNil(value) || depth+1 >= len(w.chain) {
			return
		}
		object = value
		depth++
	}
}

// handleChange is called when the value read at depth became newValue.
func (w *Watcher) handleChange(newValue, oldValue any, depth int) {
	if !w.bound || depth >= len(w.listeners) {
		return
	}
	w.gen++
	prev := w.Result()

	w.truncate(depth)
	w.results = append(w.results, newValue)
	if !ident.IsNil(newValue) && depth+1 < len(w.chain) {
		w.evaluate(newValue, depth+1)
	}
	if !w.bound {
		return
	}

	if next := w.Result(); !ident.Same(prev, next) && w.onChange != nil {
		w.onChange(next, prev)
	}
}

// truncate releases everything observed below depth, keeping the listener at
// depth and results up to the object depth is read from.
func (w *Watcher) truncate(depth int) {
	for i := len(w.listeners) - 1; i > depth; i-- {
		if h := w.listeners[i]; h != nil {
			h.release()
		}
		w.listeners[i] = nil
	}
	w.listeners = w.listeners[:depth+1]
	clear(w.results[depth+1:])
	w.results = w.results[:depth+1]
}

// refresh re-reads depth after one of its declared dependencies changed.
func (w *Watcher) refresh(depth int) {
	if !w.bound || depth >= len(w.listeners) {
		return
	}
	gen := w.gen
	old := w.results[depth+1]
	value := w.read(w.results[depth], depth)
	if !w.bound || w.gen != gen {
		return
	}
	w.handleChange(value, old, depth)
}

func (w *Watcher) read(object any, depth int) any {
	seg := w.chain[depth]
	if ident.IsNil(object) {
		return nil
	}
	if !seg.Call {
		return observe.Get(object, seg.Name)
	}
	v, err := observe.Call(object, seg.Name)
	if err != nil {
		panic(fmt.Errorf("bind: evaluating %q at depth %d: %w", w.chain, depth, err))
	}
	return v
}

// listen creates the handle observing segment depth on object.
func (w *Watcher) listen(object any, depth int) handle {
	seg := w.chain[depth]
	if ident.IsNil(object) {
		return nil
	}

	if decls := observe.DeclaredDependencies(object, seg.Name); len(decls) > 0 {
		deps := make(dependencyHandles, 0, len(decls))
		done := false
		defer func() {
			if !done {
				deps.release()
			}
		}()
		for _, decl := range decls {
			d, err := parseDependency(decl)
			if err != nil {
				panic(fmt.Errorf("bind: %T.%s declares %w", object, seg.Name, err))
			}
			if d.event == "" {
				nested := NewChainWatcher(object, d.chain, func(_, _ any) {
					w.refresh(depth)
				})
				deps = append(deps, nested.Bind())
				continue
			}
			nested := newChainEventWatcher(object, d.chain, d.event, func(pubsub.Event) {
				w.refresh(depth)
			})
			// A new publisher may already hold a different value.
			nested.onRetarget = func() { w.refresh(depth) }
			deps = append(deps, nested.Bind())
		}
		done = true
		return deps
	}

	if seg.Call {
		return nil
	}
	tok := observe.RegisterListener(object, seg.Name, w.handleChange, depth)
	return propertyHandle{obj: object, prop: seg.Name, token: tok}
}
