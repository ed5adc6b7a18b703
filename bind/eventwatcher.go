package bind

import (
	"fmt"
	"strings"

	"github.com/delaneyj/chainparty/internal/ident"
	"github.com/delaneyj/chainparty/pubsub"
)

// EventWatcher subscribes to an event on the object at the end of a chain and
// moves the subscription whenever that object is replaced. With an empty
// chain the host itself is the target.
type EventWatcher struct {
	host    any
	watcher *Watcher
	event   string
	key     pubsub.Key
	handler pubsub.Handler
	// onRetarget runs after a chain change moved the subscription.
	onRetarget func()

	bound  bool
	target any
}

// NewEventWatcher returns an unbound EventWatcher for event on the object
// expr resolves to from host. An empty expr targets host.
func NewEventWatcher(host any, expr, event string, handler pubsub.Handler) (*EventWatcher, error) {
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, fmt.Errorf("%w: empty event name", ErrMalformedChain)
	}
	var c Chain
	if strings.TrimSpace(expr) != "" {
		var err error
		if c, err = ParseChain(expr); err != nil {
			return nil, err
		}
	}
	return newChainEventWatcher(host, c, event, handler), nil
}

func newChainEventWatcher(host any, c Chain, event string, handler pubsub.Handler) *EventWatcher {
	e := &EventWatcher{
		host:    host,
		event:   event,
		key:     pubsub.NewKey(c.String(), event),
		handler: handler,
	}
	if len(c) > 0 {
		e.watcher = NewChainWatcher(host, c, func(newValue, _ any) {
			e.retarget(newValue)
			if e.bound && e.onRetarget != nil {
				e.onRetarget()
			}
		})
	}
	return e
}

// Bind subscribes to the current target. A target that is not a
// pubsub.Publisher is a contract violation and panics, leaving the watcher
// unbound.
func (e *EventWatcher) Bind() *EventWatcher {
	if e.bound {
		return e
	}
	e.bound = true
	defer func() {
		if r := recover(); r != nil {
			e.Unbind()
			panic(r)
		}
	}()
	if e.watcher == nil {
		e.retarget(e.host)
		return e
	}
	e.watcher.Bind()
	e.retarget(e.watcher.Result())
	return e
}

// Unbind drops the chain watcher and the active subscription.
func (e *EventWatcher) Unbind() *EventWatcher {
	if !e.bound {
		return e
	}
	e.bound = false
	if e.watcher != nil {
		e.watcher.Unbind()
	}
	if e.target != nil {
		_ = pubsub.Unsubscribe(e.target, e.event, e.key)
		e.target = nil
	}
	return e
}

func (e *EventWatcher) release() { e.Unbind() }

// Bound reports whether the watcher is bound.
func (e *EventWatcher) Bound() bool { return e.bound }

// Target is the object currently subscribed to, or nil.
func (e *EventWatcher) Target() any { return e.target }

// Event is the watched event name.
func (e *EventWatcher) Event() string { return e.event }

func (e *EventWatcher) retarget(next any) {
	if !e.bound {
		return
	}
	if e.target != nil {
		if ident.Same(e.target, next) {
			return
		}
		_ = pubsub.Unsubscribe(e.target, e.event, e.key)
		e.target = nil
	}
	if ident.IsNil(next) {
		return
	}
	if err := pubsub.Subscribe(next, e.event, e.key, e.dispatch); err != nil {
		panic(fmt.Errorf("bind: watching event %q: %w", e.event, err))
	}
	e.target = next
}

func (e *EventWatcher) dispatch(evt pubsub.Event) {
	if e.bound {
		e.handler(evt)
	}
}
