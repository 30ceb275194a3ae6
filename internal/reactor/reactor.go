package reactor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the reactor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reactor is a single-goroutine task loop.
//
// Tasks are run one at a time in the order they were posted. A panicking
// task is logged and the loop carries on with the next one.
//
// Thread Safety:
//   - Post, Do, AfterFunc, Every and Now are safe from any goroutine.
//   - Do must not be called from inside a task; it would wait on itself.
type Reactor struct {
	mu      sync.Mutex
	tasks   []func()
	closed  bool
	signal  chan struct{} // buffered, size 1
	stopped chan struct{}

	clock  Clock
	logger Logger

	processed atomic.Uint64
}

// New creates a reactor driven by clock.
func New(clock Clock) *Reactor {
	if clock == nil {
		clock = SystemClock()
	}
	return &Reactor{
		tasks:   make([]func(), 0, 64),
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
		clock:   clock,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the reactor.
func (r *Reactor) SetLogger(logger Logger) {
	r.logger = logger
}

// Now returns the reactor clock's current time.
func (r *Reactor) Now() time.Time {
	return r.clock.Now()
}

// Post queues fn to run on the loop goroutine.
// Returns ErrStopped once the reactor has shut down.
func (r *Reactor) Post(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStopped
	}
	r.tasks = append(r.tasks, fn)

	select {
	case r.signal <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop goroutine and waits for it to finish.
// If ctx ends first, Do returns ctx.Err() and fn is skipped if it has not started.
func (r *Reactor) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	var abandoned atomic.Bool

	err := r.Post(func() {
		defer close(done)
		if abandoned.Load() {
			return
		}
		fn()
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-r.stopped:
		select {
		case <-done:
			return nil
		default:
		}
		return ErrStopped
	case <-ctx.Done():
		abandoned.Store(true)
		// The task may have started before the flag was set.
		select {
		case <-done:
			return nil
		default:
		}
		return ctx.Err()
	}
}

// Run executes posted tasks until ctx is cancelled.
// Tasks still queued at shutdown are dropped.
func (r *Reactor) Run(ctx context.Context) error {
	r.logger.Info("reactor started")
	defer r.logger.Info("reactor stopped", "tasks_processed", r.processed.Load())

	for {
		if ctx.Err() != nil {
			r.shutdown()
			return nil
		}
		if r.RunPending() > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case <-r.signal:
		}
	}
}

// RunPending runs every task queued so far on the calling goroutine and
// returns how many ran. Run uses it internally; tests call it directly to
// step a reactor that has no loop goroutine.
func (r *Reactor) RunPending() int {
	r.mu.Lock()
	batch := r.tasks
	r.tasks = make([]func(), 0, 64)
	r.mu.Unlock()

	for _, task := range batch {
		r.runTask(task)
	}
	return len(batch)
}

// Drain runs tasks until the queue stays empty, including tasks posted by tasks.
func (r *Reactor) Drain() {
	for {
		if r.RunPending() == 0 {
			return
		}
	}
}

func (r *Reactor) runTask(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic recovered in reactor task", "error", fmt.Sprint(rec))
		}
	}()
	task()
	r.processed.Add(1)
}

func (r *Reactor) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.tasks = nil
	close(r.stopped)
}

// Canceler stops a scheduled timer.
type Canceler interface {
	Cancel()
}

// Timer is a one-shot or repeating callback delivered through the loop.
type Timer struct {
	r      *Reactor
	period time.Duration
	fn     func()

	mu        sync.Mutex
	stopper   Stopper
	cancelled atomic.Bool
}

// AfterFunc runs fn on the loop once d has elapsed.
func (r *Reactor) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{r: r, fn: fn}
	t.arm(d)
	return t
}

// Every runs fn on the loop each time period elapses, until cancelled.
// A non-positive period yields a timer that never fires.
func (r *Reactor) Every(period time.Duration, fn func()) Canceler {
	t := &Timer{r: r, period: period, fn: fn}
	if period > 0 {
		t.arm(period)
	}
	return t
}

func (t *Timer) arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled.Load() {
		return
	}
	t.stopper = t.r.clock.AfterFunc(d, t.tick)
}

// tick runs on the clock's goroutine.
func (t *Timer) tick() {
	if t.cancelled.Load() {
		return
	}
	if t.period > 0 {
		t.arm(t.period)
	}
	err := t.r.Post(func() {
		if !t.cancelled.Load() {
			t.fn()
		}
	})
	if err != nil {
		t.Cancel()
	}
}

// Cancel stops the timer. Safe to call more than once and from any goroutine.
func (t *Timer) Cancel() {
	t.cancelled.Store(true)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopper != nil {
		t.stopper.Stop()
		t.stopper = nil
	}
}

// Cancelled reports whether Cancel has been called.
func (t *Timer) Cancelled() bool {
	return t.cancelled.Load()
}
