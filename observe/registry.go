// Package observe is the single-property change-notification primitive the
// watchers build on.
//
// Listeners live in an explicit registration table keyed by object identity
// and property name; nothing intercepts property access. Whoever mutates a
// property reports it through Set (or Registry.Notify) and the registered
// listeners run synchronously.
package observe

import "github.com/delaneyj/chainparty/internal/ident"

// Token identifies one registered listener.
type Token uint64

// Callback receives a property change. depth is the value given at
// registration, passed back untouched.
type Callback func(newValue, oldValue any, depth int)

type listener struct {
	token Token
	cb    Callback
	depth int
	dead  bool
}

type slotKey struct {
	obj  any
	prop string
}

// Registry maps (object, property) pairs to listeners. It is not safe for
// concurrent use.
type Registry struct {
	slots  map[slotKey][]*listener
	tokens Token
}

// Default is the process-wide registry used by Set, Object and the watchers.
var Default = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: map[slotKey][]*listener{}}
}

// RegisterListener adds cb for property prop of obj and returns its token.
func (r *Registry) RegisterListener(obj any, prop string, cb Callback, depth int) Token {
	r.tokens++
	k := slotKey{obj: ident.Key(obj), prop: prop}
	r.slots[k] = append(r.slots[k], &listener{token: r.tokens, cb: cb, depth: depth})
	return r.tokens
}

// UnregisterListener removes the listener identified by tok. Unknown tokens
// are ignored, so releasing twice is harmless.
func (r *Registry) UnregisterListener(obj any, prop string, tok Token) {
	k := slotKey{obj: ident.Key(obj), prop: prop}
	ls := r.slots[k]
	for i, l := range ls {
		if l.token != tok {
			continue
		}
		l.dead = true
		next := make([]*listener, 0, len(ls)-1)
		next = append(next, ls[:i]...)
		next = append(next, ls[i+1:]...)
		if len(next) == 0 {
			delete(r.slots, k)
		} else {
			r.slots[k] = next
		}
		return
	}
}

// Notify runs the listeners of obj.prop in registration order. Listeners
// unregistered by an earlier listener in the same dispatch are skipped.
func (r *Registry) Notify(obj any, prop string, newValue, oldValue any) {
	ls := r.slots[slotKey{obj: ident.Key(obj), prop: prop}]
	for _, l := range ls {
		if l.dead {
			continue
		}
		l.cb(newValue, oldValue, l.depth)
	}
}

// Listeners returns how many listeners are registered on obj.prop.
func (r *Registry) Listeners(obj any, prop string) int {
	return len(r.slots[slotKey{obj: ident.Key(obj), prop: prop}])
}

// RegisterListener registers on Default.
func RegisterListener(obj any, prop string, cb Callback, depth int) Token {
	return Default.RegisterListener(obj, prop, cb, depth)
}

// UnregisterListener unregisters from Default.
func UnregisterListener(obj any, prop string, tok Token) {
	Default.UnregisterListener(obj, prop, tok)
}

// Listeners counts listeners on Default.
func Listeners(obj any, prop string) int {
	return Default.Listeners(obj, prop)
}
