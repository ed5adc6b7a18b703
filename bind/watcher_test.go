package bind_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/delaneyj/chainparty/bind"
	"github.com/delaneyj/chainparty/observe"
	"github.com/delaneyj/chainparty/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	newValue, oldValue any
}

func recorder(changes *[]change) bind.ChangeFunc {
	return func(newValue, oldValue any) {
		*changes = append(*changes, change{newValue, oldValue})
	}
}

func panicErr(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		e, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		err = e
	}()
	fn()
	return nil
}

func obj(props map[string]any) *observe.Object {
	return observe.NewObject(props)
}

func TestWatcherFollowsChain(t *testing.T) {
	c := obj(map[string]any{"c": 1})
	b := obj(map[string]any{"c": nil})
	b.MustSet("c", c)
	a := obj(map[string]any{"b": b})
	host := obj(map[string]any{"a": a})

	var changes []change
	w, err := bind.NewWatcher(host, "a.b.c", recorder(&changes))
	require.NoError(t, err)
	assert.False(t, w.Bound())
	assert.Nil(t, w.Result())

	w.Bind()
	defer w.Unbind()
	assert.Same(t, c, w.Result())
	assert.Equal(t, 3, w.Depth())
	assert.Len(t, w.Results(), 4)

	c2 := obj(nil)
	b.MustSet("c", c2)
	require.Len(t, changes, 1)
	assert.Same(t, c2, changes[0].newValue)
	assert.Same(t, c, changes[0].oldValue)
}

// should truncate and rebuild everything below the changed depth
func TestWatcherChainTruncationInvariant(t *testing.T) {
	oldC := obj(map[string]any{"d": "old"})
	oldB := obj(map[string]any{"c": oldC})
	a := obj(map[string]any{"b": oldB})
	host := obj(map[string]any{"a": a})

	var changes []change
	w, err := bind.NewWatcher(host, "a.b.c.d", recorder(&changes))
	require.NoError(t, err)
	w.Bind()
	defer w.Unbind()

	assert.Equal(t, "old", w.Result())
	assert.Equal(t, 1, observe.Listeners(oldB, "c"))
	assert.Equal(t, 1, observe.Listeners(oldC, "d"))

	newC := obj(map[string]any{"d": "new"})
	newB := obj(map[string]any{"c": newC})
	a.MustSet("b", newB)

	assert.Equal(t, "new", w.Result())
	assert.Equal(t, w.Depth(), len(w.Results())-1)
	assert.Equal(t, 0, observe.Listeners(oldB, "c"), "listeners beyond the changed depth are released")
	assert.Equal(t, 0, observe.Listeners(oldC, "d"))
	assert.Equal(t, 1, observe.Listeners(newB, "c"))
	assert.Equal(t, 1, observe.Listeners(newC, "d"))
	assert.Equal(t, 1, observe.Listeners(a, "b"), "the listener at the changed depth stays")
	assert.Equal(t, []change{{"new", "old"}}, changes)

	// Mutating the detached subtree no longer matters.
	oldC.MustSet("d", "ignored")
	assert.Len(t, changes, 1)

	// Breaking the chain midway keeps the invariant too.
	a.MustSet("b", nil)
	assert.Nil(t, w.Result())
	assert.Equal(t, 2, w.Depth())
	assert.Equal(t, w.Depth(), len(w.Results())-1)
	assert.Equal(t, 0, observe.Listeners(newB, "c"))
	assert.Equal(t, change{nil, "new"}, changes[1])
}

// should treat bind and unbind as idempotent
func TestWatcherIdempotentBindUnbind(t *testing.T) {
	host := obj(map[string]any{"a": obj(map[string]any{"b": 1})})
	w, err := bind.NewWatcher(host, "a.b", nil)
	require.NoError(t, err)

	w.Unbind()
	assert.False(t, w.Bound())

	w.Bind().Bind()
	assert.Equal(t, 1, observe.Listeners(host, "a"))
	assert.Equal(t, 2, w.Depth())

	w.Unbind().Unbind()
	assert.Equal(t, 0, observe.Listeners(host, "a"))
	assert.Nil(t, w.Result())
	assert.Empty(t, w.Results())
	assert.Equal(t, 0, w.Depth())

	// Rebinding after unbind works.
	w.Bind()
	assert.Equal(t, 1, w.Result())
	w.Unbind()
}

type point struct {
	X int
}

// should gate change notifications on reference identity only
func TestWatcherReferenceEqualityGating(t *testing.T) {
	p := &point{X: 1}
	host := obj(map[string]any{"p": p})
	var changes []change
	w, err := bind.NewWatcher(host, "p", recorder(&changes))
	require.NoError(t, err)
	w.Bind()
	defer w.Unbind()

	twin := &point{X: 1}
	host.MustSet("p", twin)
	require.Len(t, changes, 1, "structurally equal but distinct values still trigger")
	assert.Same(t, twin, changes[0].newValue)

	host.MustSet("p", twin)
	assert.Len(t, changes, 1, "same reference does not trigger")
}

func TestWatcherDependencyRefreshSameReference(t *testing.T) {
	current := &point{X: 1}
	host := obj(map[string]any{"tick": 0})
	host.Compute("current", func() any { return current }, "tick")

	var changes []change
	w, err := bind.NewWatcher(host, "current.X", recorder(&changes))
	require.NoError(t, err)
	w.Bind()
	defer w.Unbind()
	assert.Equal(t, 1, w.Result())
	assert.Equal(t, 0, observe.Listeners(host, "current"), "declared dependencies replace the property listener")
	assert.Equal(t, 1, observe.Listeners(host, "tick"))

	host.MustSet("tick", 1)
	assert.Empty(t, changes, "dependency fired but the value is the same reference")

	current = &point{X: 2}
	host.MustSet("tick", 2)
	require.Len(t, changes, 1)
	assert.Equal(t, change{2, 1}, changes[0])
}

// should drop the dependency watchers of a method once its object leaves the chain
func TestWatcherMethodChainBecomesUndefined(t *testing.T) {
	b := obj(map[string]any{"label": "x"})
	b.Define("method", func() any {
		v, _ := b.Get("label")
		return "method:" + v.(string)
	}, "label")
	a := obj(map[string]any{"b": b})
	host := obj(map[string]any{"a": a})

	var changes []change
	w, err := bind.NewWatcher(host, "a.b.method()", recorder(&changes))
	require.NoError(t, err)
	w.Bind()
	defer w.Unbind()

	assert.Equal(t, "method:x", w.Result())
	assert.Equal(t, 3, w.Depth())
	assert.Equal(t, 1, observe.Listeners(b, "label"))

	b.MustSet("label", "y")
	assert.Equal(t, "method:y", w.Result())
	require.Len(t, changes, 1)

	a.MustSet("b", nil)
	assert.Nil(t, w.Result())
	assert.Equal(t, 2, w.Depth())
	assert.Equal(t, 0, observe.Listeners(b, "label"))
	assert.Equal(t, change{nil, "method:y"}, changes[1])

	b.MustSet("label", "z")
	assert.Len(t, changes, 2)
}

func TestWatcherMethodWithoutDependenciesIsReadOnce(t *testing.T) {
	calls := 0
	inner := obj(nil)
	inner.Define("count", func() any {
		calls++
		return calls
	})
	host := obj(map[string]any{"inner": inner})

	w, err := bind.NewWatcher(host, "inner.count()", nil)
	require.NoError(t, err)
	w.Bind()
	defer w.Unbind()
	assert.Equal(t, 1, w.Result())
	assert.Equal(t, 2, w.Depth())

	// Re-invoked only when an earlier depth changes.
	host.MustSet("inner", inner)
	assert.Equal(t, 1, w.Result())
	other := obj(nil)
	other.Define("count", func() any { return 42 })
	host.MustSet("inner", other)
	assert.Equal(t, 42, w.Result())
}

func TestWatcherEventDependency(t *testing.T) {
	cart := obj(map[string]any{})
	items := 0
	host := obj(map[string]any{"cart": cart})
	host.Define("total", func() any { return items }, "cart@changed")

	var changes []change
	w, err := bind.NewWatcher(host, "total()", recorder(&changes))
	require.NoError(t, err)
	w.Bind()
	assert.Equal(t, 0, w.Result())
	assert.Equal(t, 1, cart.Count("changed"))

	items = 3
	cart.Publish(pubsub.Event{Name: "changed"})
	assert.Equal(t, 3, w.Result())
	assert.Equal(t, []change{{3, 0}}, changes)

	// Replacing the cart moves the subscription.
	next := obj(map[string]any{})
	items = 99
	host.MustSet("cart", next)
	assert.Equal(t, 0, cart.Count("changed"))
	assert.Equal(t, 1, next.Count("changed"))
	assert.Equal(t, 99, w.Result(), "a new cart re-reads the total")
	assert.Equal(t, []change{{3, 0}, {99, 3}}, changes)

	w.Unbind()
	assert.Equal(t, 0, next.Count("changed"))
}

func TestWatcherStructHost(t *testing.T) {
	type node struct {
		Name string
		Next *node
	}
	tail := &node{Name: "tail"}
	head := &node{Name: "head", Next: tail}

	var changes []change
	w, err := bind.NewWatcher(head, "Next.Name", recorder(&changes))
	require.NoError(t, err)
	w.Bind()
	defer w.Unbind()
	assert.Equal(t, "tail", w.Result())

	require.NoError(t, observe.Set(tail, "Name", "end"))
	assert.Equal(t, "end", w.Result())

	require.NoError(t, observe.Set(head, "Next", nil))
	assert.Nil(t, w.Result())
	assert.Equal(t, []change{{"end", "tail"}, {nil, "end"}}, changes)
}

func TestWatcherUnbindFromOwnHandler(t *testing.T) {
	inner := obj(map[string]any{"v": 1})
	host := obj(map[string]any{"inner": inner})

	var w *bind.Watcher
	calls := 0
	w, err := bind.NewWatcher(host, "inner.v", func(_, _ any) {
		calls++
		w.Unbind()
		w.Unbind()
	})
	require.NoError(t, err)
	w.Bind()

	inner.MustSet("v", 2)
	assert.Equal(t, 1, calls)
	assert.False(t, w.Bound())
	assert.Equal(t, 0, observe.Listeners(host, "inner"))
	assert.Equal(t, 0, observe.Listeners(inner, "v"))

	inner.MustSet("v", 3)
	assert.Equal(t, 1, calls)
}

func TestWatcherNilHostIsNotObserved(t *testing.T) {
	var typed *observe.Object
	for _, host := range []any{nil, typed} {
		w, err := bind.NewWatcher(host, "a.b", nil)
		require.NoError(t, err)
		w.Bind()
		assert.True(t, w.Bound())
		assert.Nil(t, w.Result())
		assert.Equal(t, 1, w.Depth())
		assert.Equal(t, 0, observe.Listeners(host, "a"))
		w.Unbind()
	}
}

func TestWatcherFailedBindReleasesListeners(t *testing.T) {
	inner := obj(nil)
	host := obj(map[string]any{"inner": inner})
	w, err := bind.NewWatcher(host, "inner.nope()", nil)
	require.NoError(t, err)

	panicErr(t, func() { w.Bind() })
	assert.False(t, w.Bound())
	assert.Equal(t, 0, w.Depth())
	assert.Equal(t, 0, observe.Listeners(host, "inner"))
}

func TestWatcherMissingMethodPanics(t *testing.T) {
	host := obj(map[string]any{"inner": obj(nil)})
	w, err := bind.NewWatcher(host, "inner.nope()", nil)
	require.NoError(t, err)

	err = panicErr(t, func() { w.Bind() })
	assert.True(t, errors.Is(err, observe.ErrNoMethod), fmt.Sprint(err))
}

func TestWatcherMalformedDependencyPanics(t *testing.T) {
	host := obj(map[string]any{"v": 1})
	host.Declare("v", "a..b")
	w, err := bind.NewWatcher(host, "v", nil)
	require.NoError(t, err)

	err = panicErr(t, func() { w.Bind() })
	assert.ErrorIs(t, err, bind.ErrMalformedChain)
}

func TestNewWatcherRejectsMalformedChain(t *testing.T) {
	_, err := bind.NewWatcher(obj(nil), "a..b", nil)
	assert.ErrorIs(t, err, bind.ErrMalformedChain)
	assert.Panics(t, func() { bind.NewChainWatcher(obj(nil), nil, nil) })
}
