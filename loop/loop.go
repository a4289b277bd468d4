// Package loop provides the host event loop: a FIFO task queue drained by
// one goroutine at a time.
//
// Every host-side reaction that may call into the guest (worker replies,
// timer and frame firings, input events) is posted here, so the guest only
// ever runs one callback at a time and tasks from one producer run in the
// order they were posted.
package loop

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/errors"
)

// Task is a unit of work run on the loop.
type Task func()

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for task panics.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithLimit caps the number of queued tasks. Post fails with KindOverloaded
// beyond it and PostWait blocks. 0 means unbounded.
func WithLimit(n int) Option {
	return func(l *Loop) { l.limit = n }
}

// Loop is a single-consumer task queue.
type Loop struct {
	log    *zap.Logger
	wake   chan struct{}
	freed  chan struct{} // closed and replaced whenever queue space frees up
	queue  []Task
	spare  []Task
	limit  int
	mu     sync.Mutex
	runMu  sync.Mutex
	closed bool
}

// New creates an empty loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		log:   zap.NewNop(),
		wake:  make(chan struct{}, 1),
		freed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post enqueues t. It never blocks and is safe from any goroutine.
func (l *Loop) Post(t Task) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.Closed(errors.PhaseRuntime, "event loop")
	}
	if l.limit > 0 && len(l.queue) >= l.limit {
		l.mu.Unlock()
		return errors.Overloaded(errors.PhaseRuntime, "event loop", l.limit)
	}
	l.queue = append(l.queue, t)
	l.mu.Unlock()

	l.signal()
	return nil
}

// PostWait enqueues t, waiting for queue space while the loop is at its
// limit. It fails if the loop is closed or done is closed first. It must
// not be called from a task: the loop cannot drain while it waits.
func (l *Loop) PostWait(done <-chan struct{}, t Task) error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return errors.Closed(errors.PhaseRuntime, "event loop")
		}
		if l.limit <= 0 || len(l.queue) < l.limit {
			l.queue = append(l.queue, t)
			l.mu.Unlock()
			l.signal()
			return nil
		}
		freed := l.freed
		l.mu.Unlock()

		select {
		case <-freed:
		case <-done:
			return errors.Overloaded(errors.PhaseRuntime, "event loop", l.limit)
		}
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// release wakes PostWait callers. l.mu must be held.
func (l *Loop) release() {
	close(l.freed)
	l.freed = make(chan struct{})
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs queued tasks, including ones posted while draining, until the
// queue is empty. It returns the number of tasks run.
func (l *Loop) Drain() int {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = l.spare[:0]
		if len(batch) > 0 {
			l.release()
		}
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for i, t := range batch {
			l.run(t)
			batch[i] = nil
		}
		n += len(batch)

		l.mu.Lock()
		l.spare = batch[:0]
		l.mu.Unlock()
	}
}

// Run drains the loop whenever tasks arrive until ctx is done or the loop
// is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close stops accepting tasks, drops queued ones and wakes Run.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.release()
	}
	l.queue = nil
	l.mu.Unlock()

	l.signal()
}

func (l *Loop) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("task panicked", zap.Any("panic", r))
		}
	}()
	t()
}
