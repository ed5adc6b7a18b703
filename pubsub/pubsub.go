// Package pubsub is a synchronous, named-event publish/subscribe primitive.
//
// Subscriptions are addressed by an event name and a subscriber Key, so the
// same handler owner can hold one subscription per event and drop it again
// without keeping a reference to the handler.
package pubsub

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
)

// ErrNotPublisher is returned when subscribing to, or publishing on, a value
// that does not implement Publisher.
var ErrNotPublisher = errors.New("chainparty/pubsub: object is not a publisher")

// Key identifies one subscriber of one event.
type Key uint64

var keySeq atomic.Uint64

// NewKey returns a process-unique Key. The parts only make keys easier to tell
// apart when debugging; two calls with the same parts still differ.
func NewKey(parts ...string) Key {
	d := xxhash.New()
	for _, p := range parts {
		d.WriteString(p)
		d.WriteString("\x00")
	}
	d.WriteString(strconv.FormatUint(keySeq.Add(1), 10))
	return Key(d.Sum64())
}

// Event is one published occurrence.
type Event struct {
	Name    string
	Payload any
}

// Handler receives published events.
type Handler func(evt Event)

// Publisher is the publish/subscribe capability.
type Publisher interface {
	Subscribe(name string, key Key, h Handler)
	Unsubscribe(name string, key Key)
	Publish(evt Event)
}

type topicKey struct {
	name string
	key  Key
}

type subscription struct {
	key     Key
	handler Handler
	dead    bool
}

// Emitter is the default Publisher implementation. The zero value is ready to
// use. It is not safe for concurrent use.
type Emitter struct {
	topics map[string][]*subscription
	active mapset.Set[topicKey]
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) init() {
	if e.topics == nil {
		e.topics = map[string][]*subscription{}
		e.active = mapset.NewThreadUnsafeSet[topicKey]()
	}
}

// Subscribe registers h for events named name under key. Subscribing an
// existing [name, key] pair replaces its handler in place.
func (e *Emitter) Subscribe(name string, key Key, h Handler) {
	e.init()
	tk := topicKey{name: name, key: key}
	if e.active.Contains(tk) {
		for _, s := range e.topics[name] {
			if s.key == key {
				s.handler = h
				return
			}
		}
	}
	e.active.Add(tk)
	e.topics[name] = append(e.topics[name], &subscription{key: key, handler: h})
}

// Unsubscribe removes the [name, key] subscription. Unknown pairs are ignored.
func (e *Emitter) Unsubscribe(name string, key Key) {
	if e.topics == nil {
		return
	}
	tk := topicKey{name: name, key: key}
	if !e.active.Contains(tk) {
		return
	}
	e.active.Remove(tk)

	subs := e.topics[name]
	for i, s := range subs {
		if s.key != key {
			continue
		}
		s.dead = true
		// Copy so a dispatch iterating the old slice is unaffected.
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(e.topics, name)
		} else {
			e.topics[name] = next
		}
		return
	}
}

// Publish synchronously invokes every handler subscribed to evt.Name, in
// subscription order. Subscriptions removed while the event is being
// dispatched are skipped, even if their key subscribes again.
func (e *Emitter) Publish(evt Event) {
	if e.topics == nil {
		return
	}
	subs := e.topics[evt.Name]
	for _, s := range subs {
		if s.dead {
			continue
		}
		s.handler(evt)
	}
}

// Count returns the number of active subscriptions for name.
func (e *Emitter) Count(name string) int {
	if e.topics == nil {
		return 0
	}
	return len(e.topics[name])
}

// Subscribe subscribes h on obj, which must be a Publisher.
func Subscribe(obj any, name string, key Key, h Handler) error {
	p, ok := obj.(Publisher)
	if !ok {
		return fmt.Errorf("subscribe %q on %T: %w", name, obj, ErrNotPublisher)
	}
	p.Subscribe(name, key, h)
	return nil
}

// Unsubscribe removes a subscription made with Subscribe.
func Unsubscribe(obj any, name string, key Key) error {
	p, ok := obj.(Publisher)
	if !ok {
		return fmt.Errorf("unsubscribe %q on %T: %w", name, obj, ErrNotPublisher)
	}
	p.Unsubscribe(name, key)
	return nil
}

// Publish publishes evt on obj, which must be a Publisher.
func Publish(obj any, evt Event) error {
	p, ok := obj.(Publisher)
	if !ok {
		return fmt.Errorf("publish %q on %T: %w", evt.Name, obj, ErrNotPublisher)
	}
	p.Publish(evt)
	return nil
}
