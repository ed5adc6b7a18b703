package observe

import (
	"fmt"
	"sort"

	"github.com/delaneyj/chainparty/internal/ident"
	"github.com/delaneyj/chainparty/pubsub"
)

// Object is a dynamic observable object: named properties, computed
// properties, zero-argument methods and declared dependencies, plus the
// publish/subscribe capability.
type Object struct {
	pubsub.Emitter

	props    map[string]any
	computed map[string]func() any
	methods  map[string]func() any
	deps     map[string][]string
}

// NewObject returns an Object holding a copy of props.
func NewObject(props map[string]any) *Object {
	o := &Object{
		props:    make(map[string]any, len(props)),
		computed: map[string]func() any{},
		methods:  map[string]func() any{},
		deps:     map[string][]string{},
	}
	for k, v := range props {
		o.props[k] = v
	}
	return o
}

// Get implements Getter. Computed properties are evaluated on every read.
func (o *Object) Get(name string) (any, bool) {
	if fn, ok := o.computed[name]; ok {
		return fn(), true
	}
	v, ok := o.props[name]
	return v, ok
}

// Set implements Setter and notifies Default when the value changed.
func (o *Object) Set(name string, value any) error {
	if _, ok := o.computed[name]; ok {
		return fmt.Errorf("computed property %q: %w", name, ErrNotSettable)
	}
	old := o.props[name]
	o.props[name] = value
	if !ident.Same(old, value) {
		Default.Notify(o, name, value, old)
	}
	return nil
}

// MustSet is Set for callers that know name is not computed.
func (o *Object) MustSet(name string, value any) {
	if err := o.Set(name, value); err != nil {
		panic(err)
	}
}

// Call implements Caller.
func (o *Object) Call(name string) (any, error) {
	fn, ok := o.methods[name]
	if !ok {
		return nil, fmt.Errorf("Object.%s(): %w", name, ErrNoMethod)
	}
	return fn(), nil
}

// Define adds a zero-argument method with optional dependencies.
func (o *Object) Define(name string, fn func() any, deps ...string) *Object {
	o.methods[name] = fn
	if len(deps) > 0 {
		o.deps[name] = deps
	}
	return o
}

// Compute adds a computed property read without parentheses.
func (o *Object) Compute(name string, fn func() any, deps ...string) *Object {
	o.computed[name] = fn
	if len(deps) > 0 {
		o.deps[name] = deps
	}
	return o
}

// Declare sets the dependencies of name.
func (o *Object) Declare(name string, deps ...string) *Object {
	o.deps[name] = deps
	return o
}

// DeclaredDependencies implements Declarer.
func (o *Object) DeclaredDependencies(name string) []string {
	return o.deps[name]
}

// Keys returns the plain property names in sorted order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.props))
	for k := range o.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
