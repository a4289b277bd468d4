package hostapi

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/codec"
	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/event"
	"github.com/wippyai/wasm-hostbridge/job"
	"github.com/wippyai/wasm-hostbridge/metrics"
	"github.com/wippyai/wasm-hostbridge/script"
	"github.com/wippyai/wasm-hostbridge/timer"
	"github.com/wippyai/wasm-hostbridge/worker"
)

// Host module names.
const (
	ModuleWorkers     = "api_workers"
	ModuleEvents      = "api_events"
	ModuleWindow      = "api_window"
	ModuleConsole     = "api_console"
	ModulePerformance = "api_performance"
)

// Options wires a Bridge to the components it fronts.
type Options struct {
	Logger  *zap.Logger
	Pool    *worker.Pool
	Jobs    *job.Dispatcher
	Events  *event.Registry
	Timers  *timer.Scheduler
	Frames  *timer.Frames
	Local   *script.Context
	Metrics *metrics.Metrics
	Clock   clock.Clock
}

// Bridge implements the guest-facing operations. Each method decodes its
// arguments from guest memory, calls one component, and turns any error
// into the operation's sentinel result plus a log line. No method panics
// or returns an error to the guest.
type Bridge struct {
	origin  time.Time
	clock   clock.Clock
	invoker event.Invoker
	log     *zap.Logger
	console *zap.Logger
	pool    *worker.Pool
	jobs    *job.Dispatcher
	events  *event.Registry
	timers  *timer.Scheduler
	frames  *timer.Frames
	local   *script.Context
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

// New creates a bridge.
func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Bridge{
		origin:  opts.Clock.Now(),
		clock:   opts.Clock,
		log:     opts.Logger.Named("hostapi"),
		console: opts.Logger.Named("console").With(zap.String("source", "guest")),
		pool:    opts.Pool,
		jobs:    opts.Jobs,
		events:  opts.Events,
		timers:  opts.Timers,
		frames:  opts.Frames,
		local:   opts.Local,
		metrics: opts.Metrics,
	}
}

// SetInvoker sets the guest that timer and frame callbacks call into.
func (b *Bridge) SetInvoker(inv event.Invoker) {
	b.mu.Lock()
	b.invoker = inv
	b.mu.Unlock()
}

// invoke runs a timer or frame callback. It is called on the loop.
func (b *Bridge) invoke(cb uint32) {
	b.mu.RLock()
	inv := b.invoker
	b.mu.RUnlock()
	if inv == nil {
		b.log.Warn("callback fired with no guest attached", zap.Uint32("callback", cb))
		return
	}

	start := time.Now()
	err := inv.Callback(context.Background(), cb)
	b.metrics.Callback(time.Since(start))
	if err != nil {
		b.log.Warn("guest callback failed", zap.Uint32("callback", cb), zap.Error(err))
	}
}

// fail records an error answered with a sentinel.
func (b *Bridge) fail(module, op string, err error, fields ...zap.Field) {
	kind := "unknown"
	var e *errors.Error
	if stderrors.As(err, &e) {
		kind = string(e.Kind)
	}
	b.metrics.Failure(module, op, kind)
	b.log.Warn(op+" failed", append(fields, zap.Error(err))...)
}

func (b *Bridge) call(module, op string) {
	b.metrics.Call(module, op)
}

func (b *Bridge) text(mem hostbridge.Memory, module, op string, ptr, n uint32) (string, bool) {
	s, err := codec.Decode(mem, ptr, n)
	if err != nil {
		b.fail(module, op, err, zap.Uint32("ptr", ptr), zap.Uint32("len", n))
		return "", false
	}
	return s, true
}

var noMemory = codec.NewBuffer(0)

// memory returns m's memory; a guest without memory gets an empty one, so
// every access fails out of range.
func memory(m api.Module) hostbridge.Memory {
	if m != nil {
		if mem := codec.WrapMemory(m.Memory()); mem != nil {
			return mem
		}
	}
	return noMemory
}

func bool32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func ms(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}
