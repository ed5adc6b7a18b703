package bind

import (
	"fmt"

	"github.com/delaneyj/chainparty/observe"
)

// Binding writes the result of a chain into target.property and keeps it
// there as the chain changes.
type Binding struct {
	watcher  *Watcher
	target   any
	property string
}

// NewBinding returns an unbound Binding of expr on host to target.property.
func NewBinding(host any, expr string, target any, property string) (*Binding, error) {
	b := &Binding{target: target, property: property}
	w, err := NewWatcher(host, expr, b.changed)
	if err != nil {
		return nil, err
	}
	b.watcher = w
	return b, nil
}

// Bind evaluates the chain and writes its result to the target immediately.
func (b *Binding) Bind() *Binding {
	if b.watcher.Bound() {
		return b
	}
	b.watcher.Bind()
	defer func() {
		if r := recover(); r != nil {
			b.watcher.Unbind()
			panic(r)
		}
	}()
	b.write(b.watcher.Result())
	return b
}

// Unbind stops observing. The target keeps the last value written to it.
func (b *Binding) Unbind() *Binding {
	b.watcher.Unbind()
	return b
}

// Bound reports whether the binding is bound.
func (b *Binding) Bound() bool { return b.watcher.Bound() }

// Result is the current chain result.
func (b *Binding) Result() any { return b.watcher.Result() }

// Watcher exposes the underlying chain watcher.
func (b *Binding) Watcher() *Watcher { return b.watcher }

func (b *Binding) changed(newValue, _ any) {
	b.write(newValue)
}

func (b *Binding) write(v any) {
	if err := observe.Set(b.target, b.property, v); err != nil {
		panic(fmt.Errorf("bind: writing %q: %w", b.property, err))
	}
}
