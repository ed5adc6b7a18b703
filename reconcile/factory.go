package reconcile

import "context"

// Factory produces and destroys the managed instances of a Repeater.
type Factory[T, I any] interface {
	// Produce creates the instance for item under ctx.
	Produce(ctx context.Context, owner any, item T) I
	// Destroy releases an instance. It is always called before the instance
	// leaves the Repeater's instance list.
	Destroy(inst I)
	// IsContextExternal reports whether instances bound to property are
	// produced under the outer context instead of the repeater's own.
	IsContextExternal(property string) bool
}

// Funcs adapts plain functions to a Factory. Nil funcs are skipped; a nil
// ProduceFunc yields zero instances.
type Funcs[T, I any] struct {
	ProduceFunc  func(ctx context.Context, owner any, item T) I
	DestroyFunc  func(inst I)
	ExternalFunc func(property string) bool
}

func (f Funcs[T, I]) Produce(ctx context.Context, owner any, item T) I {
	if f.ProduceFunc == nil {
		var zero I
		return zero
	}
	return f.ProduceFunc(ctx, owner, item)
}

func (f Funcs[T, I]) Destroy(inst I) {
	if f.DestroyFunc != nil {
		f.DestroyFunc(inst)
	}
}

func (f Funcs[T, I]) IsContextExternal(property string) bool {
	return f.ExternalFunc != nil && f.ExternalFunc(property)
}
