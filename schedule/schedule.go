// Package schedule batches recomputation requests and runs them once per
// cycle.
//
// RequestUpdate marks an Updatable stale and queues it; the first request of
// a cycle posts one deferred flush to the host's task loop. The flush swaps
// the queue out before running anything, so updates requested while flushing
// land in the next cycle instead of recursing.
package schedule

import (
	"log/slog"
	"sync"
)

// Updatable is anything that can be recomputed by a flush.
type Updatable interface {
	UpToDate() bool
	SetUpToDate(upToDate bool)
	Update()
}

// State is an embeddable up-to-date flag. The zero value is up to date.
type State struct {
	stale bool
}

// UpToDate implements Updatable.
func (s *State) UpToDate() bool { return !s.stale }

// SetUpToDate implements Updatable.
func (s *State) SetUpToDate(upToDate bool) { s.stale = !upToDate }

// Scheduler is a queue of pending updates plus at most one pending flush.
type Scheduler struct {
	mu      sync.Mutex
	queue   []Updatable
	pending bool
	post    func(func())
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler returns a Scheduler that defers its flushes through post.
// post must run the function later, never synchronously.
func NewScheduler(post func(func()), opts ...Option) *Scheduler {
	s := &Scheduler{post: post}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestUpdate marks u stale and queues it for the next flush. Queuing the
// same object several times in one cycle still updates it once.
func (s *Scheduler) RequestUpdate(u Updatable) {
	u.SetUpToDate(false)

	s.mu.Lock()
	s.queue = append(s.queue, u)
	schedule := !s.pending
	s.pending = true
	s.mu.Unlock()

	if schedule {
		s.post(s.deferredFlush)
	}
}

func (s *Scheduler) deferredFlush() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
	s.Flush()
}

// Flush runs every queued update that is still stale, in first-queued order,
// and returns how many ran. It can be called directly to flush now.
func (s *Scheduler) Flush() int {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(queue) == 0 {
		return 0
	}

	updated := 0
	for _, u := range queue {
		if u.UpToDate() {
			continue
		}
		u.SetUpToDate(true)
		u.Update()
		updated++
	}
	s.log().Debug("schedule: flushed", "queued", len(queue), "updated", updated)
	return updated
}

// Pending returns how many requests are queued for the next flush.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
