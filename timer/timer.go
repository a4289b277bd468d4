// Package timer implements timeouts, intervals and animation frames for
// the guest.
//
// Timers fire on the host event loop. A fired timer is re-checked on the
// loop before its callback runs, so clearing a timer guarantees the
// callback will not run even if the clock already expired.
package timer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/handle"
	"github.com/wippyai/wasm-hostbridge/loop"
)

// DefaultMinInterval is the shortest interval SetInterval accepts.
const DefaultMinInterval = 10 * time.Millisecond

// Poster queues work on the host event loop, waiting for room when the
// queue is full.
type Poster interface {
	PostWait(done <-chan struct{}, t loop.Task) error
}

type entry struct {
	timer    *clock.Timer
	fn       func()
	interval time.Duration // 0 for one-shot timers
}

// Options configures a Scheduler.
type Options struct {
	Logger      *zap.Logger
	Clock       clock.Clock
	MinInterval time.Duration
}

// Scheduler owns the timer handle namespace.
type Scheduler struct {
	timers      *handle.Table[*entry]
	loop        Poster
	clock       clock.Clock
	log         *zap.Logger
	done        chan struct{}
	minInterval time.Duration
	mu          sync.Mutex
	closeOnce   sync.Once
}

// NewScheduler creates a scheduler posting to l.
func NewScheduler(l Poster, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	return &Scheduler{
		timers:      handle.NewTable[*entry](),
		loop:        l,
		clock:       opts.Clock,
		log:         opts.Logger.Named("timers"),
		done:        make(chan struct{}),
		minInterval: opts.MinInterval,
	}
}

// SetTimeout runs fn once after delay. Negative delays count as zero.
func (s *Scheduler) SetTimeout(delay time.Duration, fn func()) handle.Handle {
	if delay < 0 {
		delay = 0
	}
	return s.start(delay, 0, fn)
}

// SetInterval runs fn every interval until cleared. Intervals shorter than
// the minimum are raised to it.
func (s *Scheduler) SetInterval(interval time.Duration, fn func()) handle.Handle {
	if interval < s.minInterval {
		interval = s.minInterval
	}
	return s.start(interval, interval, fn)
}

func (s *Scheduler) start(delay, interval time.Duration, fn func()) handle.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.timers.Reserve()
	e := &entry{fn: fn, interval: interval}
	if !s.timers.Put(h, e) {
		return handle.Invalid
	}
	e.timer = s.clock.AfterFunc(delay, s.expire(h, e))
	return h
}

func (s *Scheduler) expire(h handle.Handle, e *entry) func() {
	return func() {
		if err := s.loop.PostWait(s.done, func() { s.fire(h, e) }); err != nil {
			s.log.Debug("timer dropped", zap.Uint32("timer", uint32(h)), zap.Error(err))
			s.mu.Lock()
			if cur, ok := s.timers.Get(h); ok && cur == e {
				s.timers.Remove(h)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) fire(h handle.Handle, e *entry) {
	s.mu.Lock()
	if cur, ok := s.timers.Get(h); !ok || cur != e {
		s.mu.Unlock()
		return
	}
	if e.interval > 0 {
		e.timer = s.clock.AfterFunc(e.interval, s.expire(h, e))
	} else {
		s.timers.Remove(h)
	}
	s.mu.Unlock()

	e.fn()
}

// Clear cancels a timer. Unknown or already-fired handles are ignored.
func (s *Scheduler) Clear(h handle.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers.Remove(h)
	if !ok {
		return false
	}
	e.timer.Stop()
	return true
}

// Len returns the number of live timers.
func (s *Scheduler) Len() int {
	return s.timers.Len()
}

// Close cancels every timer.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	for _, h := range s.timers.List(-1) {
		s.Clear(h)
	}
	s.timers.Close()
}
