// Package reconcile keeps a list of produced instances index-aligned with a
// source collection of data items.
//
// Instances are matched to items by the identity of the item they were
// produced from. Source mutations are applied one by one as they happen;
// wholesale changes (a new source list or a new factory) queue a resync on
// the scheduler, which reuses every instance whose item is still present.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/delaneyj/chainparty/collection"
	"github.com/delaneyj/chainparty/internal/ident"
	"github.com/delaneyj/chainparty/pubsub"
	"github.com/delaneyj/chainparty/schedule"
)

// DefaultProperty is the property instances receive their item through.
const DefaultProperty = "item"

// Repeater produces one instance per source item.
type Repeater[T, I any] struct {
	schedule.State

	owner    any
	factory  Factory[T, I]
	ctx      context.Context
	outer    context.Context
	property string
	sched    *schedule.Scheduler
	logger   *slog.Logger

	key       pubsub.Key
	items     *collection.List[T]
	instances *collection.List[I]
	// origins[i] is the item instances[i] was produced from.
	origins []T
}

// Option configures a Repeater.
type Option func(*options)

type options struct {
	ctx      context.Context
	outer    context.Context
	property string
	sched    *schedule.Scheduler
	logger   *slog.Logger
}

// WithContext sets the repeater's own context.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithOuterContext sets the context used when the factory reports the item
// property as external.
func WithOuterContext(ctx context.Context) Option {
	return func(o *options) { o.outer = ctx }
}

// WithProperty overrides DefaultProperty.
func WithProperty(name string) Option {
	return func(o *options) { o.property = name }
}

// WithScheduler queues resyncs on s instead of schedule.Default.
func WithScheduler(s *schedule.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithLogger sets the logger used for resync diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New returns a Repeater with no source.
func New[T, I any](owner any, factory Factory[T, I], opts ...Option) *Repeater[T, I] {
	o := options{
		ctx:      context.Background(),
		property: DefaultProperty,
		sched:    schedule.Default,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.outer == nil {
		o.outer = o.ctx
	}
	return &Repeater[T, I]{
		owner:     owner,
		factory:   factory,
		ctx:       o.ctx,
		outer:     o.outer,
		property:  o.property,
		sched:     o.sched,
		logger:    o.logger,
		key:       pubsub.NewKey("reconcile"),
		instances: collection.New[I](),
	}
}

// Instances is the derived list. It is owned by the repeater and must not be
// mutated by callers.
func (r *Repeater[T, I]) Instances() *collection.List[I] { return r.instances }

// Items returns the current source, or nil.
func (r *Repeater[T, I]) Items() *collection.List[T] { return r.items }

// SetItems replaces the source and queues a resync.
func (r *Repeater[T, I]) SetItems(src *collection.List[T]) {
	if src == r.items {
		return
	}
	r.unsubscribe()
	r.items = src
	if src != nil {
		src.On(collection.KindAdd, r.key, r.onAdd)
		src.On(collection.KindRemove, r.key, r.onRemove)
		src.On(collection.KindMove, r.key, r.onMove)
		src.On(collection.KindSet, r.key, r.onSet)
	}
	r.sched.RequestUpdate(r)
}

// SetFactory destroys every instance made by the previous factory and queues
// a resync with the new one.
func (r *Repeater[T, I]) SetFactory(f Factory[T, I]) {
	r.destroyAll()
	r.factory = f
	r.sched.RequestUpdate(r)
}

// Update implements schedule.Updatable.
func (r *Repeater[T, I]) Update() { r.Resync() }

// Resync aligns the instances with the source now.
func (r *Repeater[T, I]) Resync() {
	r.SetUpToDate(true)

	var items []T
	if r.items != nil {
		items = r.items.Items()
	}

	var kept, moved, produced, destroyed int
	for j, item := range items {
		if j < len(r.origins) && ident.Same(r.origins[j], item) {
			kept++
			continue
		}
		if k := r.scan(item, j+1); k >= 0 {
			r.swap(j, k)
			moved++
			continue
		}
		r.insert(item, j)
		produced++
	}
	for len(r.origins) > len(items) {
		r.destroyAt(len(r.origins) - 1)
		destroyed++
	}

	r.log().Debug("reconcile: resync",
		"items", len(items),
		"kept", kept,
		"moved", moved,
		"produced", produced,
		"destroyed", destroyed,
	)
}

// Close detaches from the source and destroys every instance.
func (r *Repeater[T, I]) Close() {
	r.unsubscribe()
	r.items = nil
	r.destroyAll()
}

func (r *Repeater[T, I]) onAdd(m collection.Mutation[T]) {
	if !r.UpToDate() {
		return
	}
	r.insert(m.Item, m.Index)
}

func (r *Repeater[T, I]) onRemove(m collection.Mutation[T]) {
	if !r.UpToDate() {
		return
	}
	r.destroyAt(m.Index)
}

func (r *Repeater[T, I]) onMove(m collection.Mutation[T]) {
	if !r.UpToDate() {
		return
	}
	origin := r.origins[m.From]
	r.origins = append(r.origins[:m.From], r.origins[m.From+1:]...)
	r.origins = insertAt(r.origins, m.To, origin)
	if err := r.instances.Move(m.From, m.To); err != nil {
		panic(err)
	}
}

func (r *Repeater[T, I]) onSet(m collection.Mutation[T]) {
	if !r.UpToDate() {
		return
	}
	old, err := r.instances.Get(m.Index)
	if err != nil {
		panic(err)
	}
	r.factory.Destroy(old)
	r.origins[m.Index] = m.Item
	if _, err := r.instances.Set(r.produce(m.Item), m.Index); err != nil {
		panic(err)
	}
}

func (r *Repeater[T, I]) scan(item T, from int) int {
	for k := from; k < len(r.origins); k++ {
		if ident.Same(r.origins[k], item) {
			return k
		}
	}
	return -1
}

func (r *Repeater[T, I]) swap(i, j int) {
	r.origins[i], r.origins[j] = r.origins[j], r.origins[i]
	if err := r.instances.Swap(i, j); err != nil {
		panic(err)
	}
}

func (r *Repeater[T, I]) insert(item T, index int) {
	inst := r.produce(item)
	if index > len(r.origins) {
		index = len(r.origins)
	}
	r.origins = insertAt(r.origins, index, item)
	if _, err := r.instances.Insert(inst, index, false); err != nil {
		panic(err)
	}
}

func (r *Repeater[T, I]) destroyAt(index int) {
	inst, err := r.instances.Get(index)
	if err != nil {
		panic(err)
	}
	r.factory.Destroy(inst)
	r.origins = append(r.origins[:index], r.origins[index+1:]...)
	if _, err := r.instances.RemoveAt(index); err != nil {
		panic(err)
	}
}

func (r *Repeater[T, I]) destroyAll() {
	for len(r.origins) > 0 {
		r.destroyAt(len(r.origins) - 1)
	}
}

func (r *Repeater[T, I]) produce(item T) I {
	ctx := r.ctx
	if r.factory.IsContextExternal(r.property) {
		ctx = r.outer
	}
	return r.factory.Produce(ctx, r.owner, item)
}

func (r *Repeater[T, I]) unsubscribe() {
	if r.items == nil {
		return
	}
	for _, k := range collection.Kinds {
		r.items.Off(k, r.key)
	}
}

func (r *Repeater[T, I]) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

func insertAt[T any](s []T, index int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[index+1:], s[index:])
	s[index] = v
	return s
}
