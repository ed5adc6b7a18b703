package reconcile_test

import (
	"context"
	"testing"

	"github.com/delaneyj/chainparty/collection"
	"github.com/delaneyj/chainparty/pubsub"
	"github.com/delaneyj/chainparty/reconcile"
	"github.com/delaneyj/chainparty/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type row struct{ name string }

type view struct {
	row       *row
	ctx       context.Context
	owner     any
	destroyed bool
}

type ctxKey struct{}

type factory struct {
	external  bool
	produced  int
	destroyed []*view
}

func (f *factory) Produce(ctx context.Context, owner any, item *row) *view {
	f.produced++
	return &view{row: item, ctx: ctx, owner: owner}
}

func (f *factory) Destroy(v *view) {
	v.destroyed = true
	f.destroyed = append(f.destroyed, v)
}

func (f *factory) IsContextExternal(property string) bool {
	return f.external && property == reconcile.DefaultProperty
}

func setup(opts ...reconcile.Option) (*reconcile.Repeater[*row, *view], *factory, *schedule.Loop) {
	loop := &schedule.Loop{}
	f := &factory{}
	opts = append([]reconcile.Option{reconcile.WithScheduler(schedule.NewScheduler(loop.Post))}, opts...)
	r := reconcile.New[*row, *view]("owner", f, opts...)
	return r, f, loop
}

func rows(names ...string) []*row {
	out := make([]*row, len(names))
	for i, n := range names {
		out[i] = &row{n}
	}
	return out
}

func assertAligned(t require.TestingT, r *reconcile.Repeater[*row, *view], src *collection.List[*row]) {
	items := src.Items()
	views := r.Instances().Items()
	require.Len(t, views, len(items))
	for i := range items {
		assert.Same(t, items[i], views[i].row, "index %d", i)
		assert.False(t, views[i].destroyed, "index %d", i)
	}
}

func TestReorderKeepsInstances(t *testing.T) {
	r, f, loop := setup()
	abc := rows("a", "b", "c")
	r.SetItems(collection.New(abc...))
	assert.Equal(t, 0, r.Instances().Len(), "resync is deferred")
	loop.RunPending()
	before := r.Instances().Items()
	require.Len(t, before, 3)
	a, b, c := before[0], before[1], before[2]

	reordered := collection.New(abc[2], abc[0], abc[1])
	r.SetItems(reordered)
	loop.RunPending()

	assert.Equal(t, []*view{c, a, b}, r.Instances().Items())
	assert.Empty(t, f.destroyed)
	assert.Equal(t, 3, f.produced)
	assertAligned(t, r, reordered)
}

func TestResyncProducesAndDestroys(t *testing.T) {
	r, f, loop := setup()
	src := rows("a", "b", "c", "d")
	r.SetItems(collection.New(src...))
	loop.RunPending()
	old := r.Instances().Items()

	fresh := &row{"x"}
	next := collection.New(src[3], fresh, src[1])
	r.SetItems(next)
	loop.RunPending()

	assertAligned(t, r, next)
	assert.Equal(t, 5, f.produced)
	assert.ElementsMatch(t, []*view{old[0], old[2]}, f.destroyed)
	assert.Same(t, old[3], r.Instances().Items()[0])
	assert.Same(t, old[1], r.Instances().Items()[2])
}

func TestIncrementalUpdates(t *testing.T) {
	r, f, loop := setup()
	src := collection.New(rows("a", "b")...)
	r.SetItems(src)
	loop.RunPending()
	first := r.Instances().Items()

	c := &row{"c"}
	src.Add(c, false)
	assertAligned(t, r, src)
	_, err := src.Insert(&row{"z"}, 0, false)
	require.NoError(t, err)
	assertAligned(t, r, src)

	require.NoError(t, src.Move(0, 3))
	assertAligned(t, r, src)
	assert.Same(t, first[0], r.Instances().Items()[0], "move keeps instances")

	_, err = src.RemoveAt(1)
	require.NoError(t, err)
	assertAligned(t, r, src)
	require.Len(t, f.destroyed, 1)
	assert.Same(t, first[1], f.destroyed[0])

	old := r.Instances().Items()[0]
	_, err = src.Set(&row{"y"}, 0)
	require.NoError(t, err)
	assertAligned(t, r, src)
	assert.True(t, old.destroyed)

	assert.Equal(t, 0, loop.Len(), "incremental changes need no flush")
}

func TestEventsIgnoredWhileResyncPending(t *testing.T) {
	r, f, loop := setup()
	src := collection.New(rows("a")...)
	r.SetItems(src)
	src.Add(&row{"b"}, false)
	src.RemoveAt(0)
	assert.Equal(t, 0, r.Instances().Len())
	assert.Equal(t, 0, f.produced)

	loop.RunPending()
	assertAligned(t, r, src)
	assert.Equal(t, 1, f.produced)
}

func TestDestroyPrecedesRemoval(t *testing.T) {
	r, _, loop := setup()
	src := collection.New(rows("a", "b", "c")...)
	r.SetItems(src)
	loop.RunPending()

	removed := 0
	r.Instances().On(collection.KindRemove, pubsub.NewKey(), func(m collection.Mutation[*view]) {
		removed++
		assert.True(t, m.Item.destroyed)
	})
	r.Instances().On(collection.KindSet, pubsub.NewKey(), func(m collection.Mutation[*view]) {
		assert.True(t, m.Old.destroyed)
		assert.False(t, m.Item.destroyed)
	})

	src.Remove(src.Items()[1], false)
	src.Set(&row{"n"}, 0)
	r.SetItems(collection.New[*row]())
	loop.RunPending()
	assert.Equal(t, 3, removed)
}

func TestProduceContext(t *testing.T) {
	inner := context.WithValue(context.Background(), ctxKey{}, "inner")
	outer := context.WithValue(context.Background(), ctxKey{}, "outer")

	r, f, loop := setup(reconcile.WithContext(inner), reconcile.WithOuterContext(outer))
	src := collection.New(rows("a")...)
	r.SetItems(src)
	loop.RunPending()
	v := r.Instances().Items()[0]
	assert.Equal(t, "inner", v.ctx.Value(ctxKey{}))
	assert.Equal(t, "owner", v.owner)

	f.external = true
	src.Add(&row{"b"}, false)
	assert.Equal(t, "outer", r.Instances().Items()[1].ctx.Value(ctxKey{}))

	r2, f2, loop2 := setup(reconcile.WithContext(inner), reconcile.WithOuterContext(outer), reconcile.WithProperty("entry"))
	f2.external = true
	r2.SetItems(collection.New(rows("a")...))
	loop2.RunPending()
	assert.Equal(t, "inner", r2.Instances().Items()[0].ctx.Value(ctxKey{}), "only the item property is external")
}

func TestSetFactoryRecreates(t *testing.T) {
	r, f, loop := setup()
	src := collection.New(rows("a", "b")...)
	r.SetItems(src)
	loop.RunPending()
	old := r.Instances().Items()

	next := &factory{}
	r.SetFactory(next)
	assert.Len(t, f.destroyed, 2)
	assert.Equal(t, 0, r.Instances().Len())
	loop.RunPending()

	assertAligned(t, r, src)
	assert.Equal(t, 2, next.produced)
	assert.NotSame(t, old[0], r.Instances().Items()[0])
}

func TestFuncsFactory(t *testing.T) {
	loop := &schedule.Loop{}
	destroyed := 0
	r := reconcile.New[string, int](nil, reconcile.Funcs[string, int]{
		ProduceFunc: func(_ context.Context, _ any, item string) int { return len(item) },
		DestroyFunc: func(int) { destroyed++ },
	}, reconcile.WithScheduler(schedule.NewScheduler(loop.Post)))

	src := collection.New("a", "bb", "ccc")
	r.SetItems(src)
	r.Resync()
	assert.Equal(t, []int{1, 2, 3}, r.Instances().Items())

	// The posted flush finds the repeater up to date.
	loop.RunPending()
	assert.Equal(t, []int{1, 2, 3}, r.Instances().Items())

	r.Close()
	assert.Equal(t, 3, destroyed)
	assert.Nil(t, r.Items())
	src.Add("dddd", false)
	assert.Equal(t, 0, r.Instances().Len(), "closed repeaters ignore the old source")
}

func TestRepeatedReorderingsPreserveIdentity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r, f, loop := setup()
		pool := rows("a", "b", "c", "d", "e", "f", "g")

		live := map[*row]*view{}
		rounds := rapid.IntRange(1, 8).Draw(rt, "rounds")
		for round := 0; round < rounds; round++ {
			perm := rapid.Permutation(pool).Draw(rt, "perm")
			n := rapid.IntRange(0, len(pool)).Draw(rt, "n")
			next := collection.New(perm[:n]...)
			r.SetItems(next)
			loop.RunPending()

			assertAligned(rt, r, next)
			seen := map[*row]*view{}
			for _, v := range r.Instances().Items() {
				seen[v.row] = v
				if prev, ok := live[v.row]; ok && prev != v {
					rt.Fatalf("item %s was recreated while it stayed in the source", v.row.name)
				}
			}
			live = seen
		}
		if f.produced-len(f.destroyed) != r.Instances().Len() {
			rt.Fatalf("produced %d, destroyed %d, live %d", f.produced, len(f.destroyed), r.Instances().Len())
		}
	})
}
