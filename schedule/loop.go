package schedule

import "sync"

// Loop is a minimal host task queue: Post defers a task to the next turn and
// RunPending runs one turn.
type Loop struct {
	mu    sync.Mutex
	tasks []func()
}

// Post queues fn for the next turn.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
}

// RunPending runs the tasks posted before the call and returns how many ran.
// Tasks they post in turn wait for the next call.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

// Len returns how many tasks are waiting.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

var (
	// DefaultLoop drives Default. Hosts call RunPending once per turn.
	DefaultLoop = &Loop{}

	// Default is the process-wide scheduler.
	Default = NewScheduler(DefaultLoop.Post)
)

// RequestUpdate queues u on Default.
func RequestUpdate(u Updatable) { Default.RequestUpdate(u) }

// Flush flushes Default now.
func Flush() int { return Default.Flush() }

// RunPending runs one turn of DefaultLoop.
func RunPending() int { return DefaultLoop.RunPending() }
