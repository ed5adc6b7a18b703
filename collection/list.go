// Package collection provides an ordered, observable list.
//
// Every mutating call publishes exactly one event per element it touches,
// synchronously and after the list is already consistent, so subscribers can
// read the list from inside their handlers.
package collection

import (
	"errors"
	"fmt"

	"github.com/delaneyj/chainparty/internal/ident"
	"github.com/delaneyj/chainparty/pubsub"
)

var ErrIndexOutOfRange = errors.New("chainparty/collection: index out of range")

// Kind names a mutation event.
type Kind string

const (
	KindAdd    Kind = "add"
	KindRemove Kind = "remove"
	KindMove   Kind = "move"
	KindSet    Kind = "set"
)

// Kinds lists every event a List publishes.
var Kinds = []Kind{KindAdd, KindRemove, KindMove, KindSet}

// Mutation is the payload of every List event.
//
//	add:    Item inserted at Index
//	remove: Item removed from Index
//	move:   Item moved From -> To
//	set:    Old replaced by Item at Index
type Mutation[T any] struct {
	Kind  Kind
	Index int
	From  int
	To    int
	Item  T
	Old   T
}

// List is an ordered sequence that publishes its mutations. Elements are
// matched by identity, see ident.Same. The zero value is an empty list.
type List[T any] struct {
	pubsub.Emitter
	items []T
}

// New returns a list holding items. No events are published for them.
func New[T any](items ...T) *List[T] {
	l := &List[T]{}
	l.items = append(l.items, items...)
	return l
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return len(l.items) }

// Items returns a copy of the elements.
func (l *List[T]) Items() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Get returns the element at index.
func (l *List[T]) Get(index int) (T, error) {
	if err := l.check(index); err != nil {
		var zero T
		return zero, err
	}
	return l.items[index], nil
}

// IndexOf returns the index of the first element identical to item, or -1.
func (l *List[T]) IndexOf(item T) int {
	for i, v := range l.items {
		if ident.Same(v, item) {
			return i
		}
	}
	return -1
}

// Contains reports whether an element identical to item is present.
func (l *List[T]) Contains(item T) bool { return l.IndexOf(item) >= 0 }

// Add appends item. With unique set, nothing happens when an identical item
// is already present. It reports whether item was added.
func (l *List[T]) Add(item T, unique bool) bool {
	if unique && l.Contains(item) {
		return false
	}
	l.items = append(l.items, item)
	l.emit(Mutation[T]{Kind: KindAdd, Index: len(l.items) - 1, Item: item})
	return true
}

// Insert places item at index, shifting later elements. An index past the
// end appends.
func (l *List[T]) Insert(item T, index int, unique bool) (bool, error) {
	if index < 0 {
		return false, fmt.Errorf("insert at %d: %w", index, ErrIndexOutOfRange)
	}
	if index >= len(l.items) {
		return l.Add(item, unique), nil
	}
	if unique && l.Contains(item) {
		return false, nil
	}
	var zero T
	l.items = append(l.items, zero)
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = item
	l.emit(Mutation[T]{Kind: KindAdd, Index: index, Item: item})
	return true, nil
}

// Remove deletes the first element identical to item, or every one with all
// set, and returns how many were removed. Each removal is its own event.
func (l *List[T]) Remove(item T, all bool) int {
	removed := 0
	for i := 0; i < len(l.items); {
		if !ident.Same(l.items[i], item) {
			i++
			continue
		}
		l.removeAt(i)
		removed++
		if !all {
			break
		}
	}
	return removed
}

// RemoveAt deletes and returns the element at index.
func (l *List[T]) RemoveAt(index int) (T, error) {
	if err := l.check(index); err != nil {
		var zero T
		return zero, err
	}
	return l.removeAt(index), nil
}

func (l *List[T]) removeAt(index int) T {
	item := l.items[index]
	copy(l.items[index:], l.items[index+1:])
	var zero T
	l.items[len(l.items)-1] = zero
	l.items = l.items[:len(l.items)-1]
	l.emit(Mutation[T]{Kind: KindRemove, Index: index, Item: item})
	return item
}

// Move relocates the element at from so that it ends up at to.
func (l *List[T]) Move(from, to int) error {
	if err := l.check(from); err != nil {
		return err
	}
	if err := l.check(to); err != nil {
		return err
	}
	item := l.items[from]
	if from < to {
		copy(l.items[from:to], l.items[from+1:to+1])
	} else {
		copy(l.items[to+1:from+1], l.items[to:from])
	}
	l.items[to] = item
	l.emit(Mutation[T]{Kind: KindMove, Index: to, From: from, To: to, Item: item})
	return nil
}

// Set replaces the element at index and returns the previous one.
func (l *List[T]) Set(item T, index int) (T, error) {
	if err := l.check(index); err != nil {
		var zero T
		return zero, err
	}
	old := l.items[index]
	l.items[index] = item
	l.emit(Mutation[T]{Kind: KindSet, Index: index, Item: item, Old: old})
	return old, nil
}

// Swap exchanges two elements as two Set calls, so it publishes two set
// events.
func (l *List[T]) Swap(i, j int) error {
	if err := l.check(i); err != nil {
		return err
	}
	if err := l.check(j); err != nil {
		return err
	}
	a, b := l.items[i], l.items[j]
	if _, err := l.Set(b, i); err != nil {
		return err
	}
	_, err := l.Set(a, j)
	return err
}

// Clear removes every element, last first, one remove event each.
func (l *List[T]) Clear() {
	for len(l.items) > 0 {
		l.removeAt(len(l.items) - 1)
	}
}

// On subscribes fn to one kind of mutation under key.
func (l *List[T]) On(kind Kind, key pubsub.Key, fn func(m Mutation[T])) {
	l.Subscribe(string(kind), key, func(evt pubsub.Event) {
		fn(evt.Payload.(Mutation[T]))
	})
}

// Off removes a subscription made with On.
func (l *List[T]) Off(kind Kind, key pubsub.Key) {
	l.Unsubscribe(string(kind), key)
}

func (l *List[T]) check(index int) error {
	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("index %d of %d: %w", index, len(l.items), ErrIndexOutOfRange)
	}
	return nil
}

func (l *List[T]) emit(m Mutation[T]) {
	l.Publish(pubsub.Event{Name: string(m.Kind), Payload: m})
}
