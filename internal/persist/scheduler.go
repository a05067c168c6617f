package persist

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Scheduler defers a single task. Scheduling again before the task runs
// replaces it, so only the most recent task ever executes.
type Scheduler interface {
	Schedule(task func())
	// Flush runs the pending task now, if there is one.
	Flush()
	// Stop flushes and makes later Schedule calls run synchronously.
	Stop()
}

// maxWaitWindows bounds how long a steady stream of edits can hold back a
// write, in multiples of the quiet window.
const maxWaitWindows = 4

// DebounceScheduler runs the pending task once the window has passed
// without another Schedule call, and at the latest MaxWait after the first
// Schedule of a batch.
type DebounceScheduler struct {
	debounced func(func())
	maxWait   time.Duration

	mu       sync.Mutex
	pending  func()
	deadline *time.Timer
	stopped  bool
}

// NewDebounceScheduler returns a scheduler with the given quiet window.
func NewDebounceScheduler(window time.Duration) *DebounceScheduler {
	return &DebounceScheduler{
		debounced: debounce.New(window),
		maxWait:   maxWaitWindows * window,
	}
}

// MaxWait returns the longest a scheduled task waits while Schedule keeps
// being called.
func (d *DebounceScheduler) MaxWait() time.Duration { return d.maxWait }

func (d *DebounceScheduler) Schedule(task func()) {
	d.mu.Lock()
	if d.pending == nil && !d.stopped && d.maxWait > 0 {
		d.deadline = time.AfterFunc(d.maxWait, d.run)
	}
	d.pending = task
	stopped := d.stopped
	d.mu.Unlock()

	if stopped {
		d.run()
		return
	}
	d.debounced(d.run)
}

func (d *DebounceScheduler) run() {
	d.mu.Lock()
	task := d.pending
	d.pending = nil
	if d.deadline != nil {
		d.deadline.Stop()
		d.deadline = nil
	}
	d.mu.Unlock()
	if task != nil {
		task()
	}
}

func (d *DebounceScheduler) Flush() { d.run() }

func (d *DebounceScheduler) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.run()
}

// ManualScheduler only runs tasks when flushed. Tests use it to control
// exactly when deferred writes happen.
type ManualScheduler struct {
	mu        sync.Mutex
	pending   func()
	scheduled int
}

func (m *ManualScheduler) Schedule(task func()) {
	m.mu.Lock()
	m.pending = task
	m.scheduled++
	m.mu.Unlock()
}

func (m *ManualScheduler) Flush() {
	m.mu.Lock()
	task := m.pending
	m.pending = nil
	m.mu.Unlock()
	if task != nil {
		task()
	}
}

func (m *ManualScheduler) Stop() { m.Flush() }

// Pending reports whether a task is waiting.
func (m *ManualScheduler) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Scheduled returns how many times Schedule was called.
func (m *ManualScheduler) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled
}
