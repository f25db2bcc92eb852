package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Loop is the single logical execution context that live queries deliver on.
//
// Any goroutine may Post; exactly one goroutine runs tasks, either Run (for
// long-lived programs) or Drain (for tests and step-wise harnesses). Tasks
// run in FIFO post order, one at a time.
//
// Thread-safety model:
//   - Post, Len, Stop: safe from any goroutine
//   - Run, Drain: at most one caller at a time
type Loop struct {
	queue   *taskQueue
	clock   *Clock
	logger  *slog.Logger
	running atomic.Bool
	ran     atomic.Int64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger. Default: slog.Default().
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(loop *Loop) {
		loop.logger = l
	}
}

// NewLoop creates a loop with an empty queue.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn. Returns false once the loop is stopped.
// Implements feed.Dispatcher.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	return l.queue.Enqueue(task{seq: l.clock.Next(), fn: fn})
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Posted returns the number of tasks accepted so far.
func (l *Loop) Posted() int64 {
	return l.clock.Current()
}

// Processed returns the number of tasks run so far.
func (l *Loop) Processed() int64 {
	return l.ran.Load()
}

// Drain runs queued tasks on the calling goroutine until the queue is empty,
// including tasks posted by the tasks themselves. Returns the number run.
func (l *Loop) Drain() int {
	n := 0
	for {
		t, ok := l.queue.TryDequeue()
		if !ok {
			return n
		}
		l.runTask(t)
		n++
	}
}

// Run processes tasks until ctx is cancelled or Stop is called.
// After Stop, tasks already queued are run before Run returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		panic("engine: Loop.Run called concurrently")
	}
	defer l.running.Store(false)

	l.logger.Debug("delivery loop starting")

	for {
		if t, ok := l.queue.TryDequeue(); ok {
			l.runTask(t)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("delivery loop stopping: context cancelled",
				"pending", l.queue.Len())
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel is closed once the queue closes.
			if l.queue.Closed() && l.queue.Len() == 0 {
				l.logger.Debug("delivery loop stopping: stopped")
				return nil
			}
		}
	}
}

// Stop rejects further posts and makes Run return once the queue is empty.
func (l *Loop) Stop() {
	l.queue.Close()
}

func (l *Loop) runTask(t task) {
	t.fn()
	l.ran.Add(1)
}
