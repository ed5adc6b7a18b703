package bind

import (
	"fmt"
	"strings"

	"github.com/delaneyj/chainparty/internal/ident"
	"github.com/delaneyj/chainparty/observe"
	"github.com/valyala/quicktemplate"
)

// Binder renders a Composition against a host and writes the resulting
// string into target.property, re-rendering whenever any embedded chain
// changes.
type Binder struct {
	host     any
	comp     Composition
	target   any
	property string
	escape   bool

	watchers []*Watcher // aligned with comp, nil for literals
	bound    bool
	value    string
}

// BinderOption configures a Binder.
type BinderOption func(*Binder)

// WithEscape HTML-escapes expression results. Literal text is written as is.
func WithEscape() BinderOption {
	return func(b *Binder) { b.escape = true }
}

// NewBinder parses tpl and returns an unbound Binder.
func NewBinder(host any, tpl string, target any, property string, opts ...BinderOption) (*Binder, error) {
	comp, err := ParseComposition(tpl)
	if err != nil {
		return nil, err
	}
	return NewCompositionBinder(host, comp, target, property, opts...), nil
}

// NewCompositionBinder is NewBinder for an already parsed Composition.
func NewCompositionBinder(host any, comp Composition, target any, property string, opts ...BinderOption) *Binder {
	b := &Binder{
		host:     host,
		comp:     comp,
		target:   target,
		property: property,
		watchers: make([]*Watcher, len(comp)),
	}
	for _, opt := range opts {
		opt(b)
	}
	for i, c := range comp {
		if c.Literal() {
			continue
		}
		b.watchers[i] = NewChainWatcher(host, c.Chain, b.changed)
	}
	return b
}

// Bind binds every watcher and writes the initial rendering.
func (b *Binder) Bind() *Binder {
	if b.bound {
		return b
	}
	b.bound = true
	defer func() {
		if r := recover(); r != nil {
			b.Unbind()
			panic(r)
		}
	}()
	for _, w := range b.watchers {
		if w != nil {
			w.Bind()
		}
	}
	b.recompute()
	return b
}

// Unbind releases every watcher. The target keeps its last value.
func (b *Binder) Unbind() *Binder {
	if !b.bound {
		return b
	}
	b.bound = false
	for i := len(b.watchers) - 1; i >= 0; i-- {
		if w := b.watchers[i]; w != nil {
			w.Unbind()
		}
	}
	return b
}

// Bound reports whether the binder is bound.
func (b *Binder) Bound() bool { return b.bound }

// Value is the last rendered string.
func (b *Binder) Value() string { return b.value }

// Composition returns the parsed template.
func (b *Binder) Composition() Composition { return b.comp }

func (b *Binder) changed(_, _ any) {
	b.recompute()
}

func (b *Binder) recompute() {
	if !b.bound {
		return
	}
	b.value = b.render()
	if err := observe.Set(b.target, b.property, b.value); err != nil {
		panic(fmt.Errorf("bind: writing %q: %w", b.property, err))
	}
}

func (b *Binder) render() string {
	var sb strings.Builder
	qw := quicktemplate.AcquireWriter(&sb)
	defer quicktemplate.ReleaseWriter(qw)

	for i, c := range b.comp {
		if c.Literal() {
			qw.N().S(c.Text)
			continue
		}
		s := format(b.watchers[i].Result())
		if b.escape {
			qw.E().S(s)
		} else {
			qw.N().S(s)
		}
	}
	return sb.String()
}

func format(v any) string {
	if ident.IsNil(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
