package runtime

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-hostbridge/config"
	"github.com/wippyai/wasm-hostbridge/engine"
	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/event"
	"github.com/wippyai/wasm-hostbridge/hostapi"
	"github.com/wippyai/wasm-hostbridge/job"
	"github.com/wippyai/wasm-hostbridge/loop"
	"github.com/wippyai/wasm-hostbridge/metrics"
	"github.com/wippyai/wasm-hostbridge/script"
	"github.com/wippyai/wasm-hostbridge/timer"
	"github.com/wippyai/wasm-hostbridge/worker"
)

// Option customizes a Runtime beyond its Config.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	clock    clock.Clock
	document *event.Document
	loader   worker.Loader
}

// WithLogger sets the root logger. Components log under named children.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDocument sets the event-source document, overriding
// Events.Document from the config.
func WithDocument(d *event.Document) Option {
	return func(o *options) { o.document = d }
}

// WithLoader replaces the script loader used for external worker scripts.
func WithLoader(l worker.Loader) Option {
	return func(o *options) { o.loader = l }
}

var errStopped = stderrors.New("runtime stopped")

// Runtime wires the host components to one guest.
type Runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	clock   clock.Clock
	engine  *engine.Engine
	loop    *loop.Loop
	local   *script.Context
	pool    *worker.Pool
	jobs    *job.Dispatcher
	events  *event.Registry
	timers  *timer.Scheduler
	frames  *timer.Frames
	metrics *metrics.Metrics
	bridge  *hostapi.Bridge
	guest   *Instance
	mu      sync.Mutex
	closed  bool
}

// New builds every component from cfg and registers the host modules. A
// nil cfg uses config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.document == nil {
		doc, err := event.LoadDocument(cfg.Events.Document)
		if err != nil {
			return nil, err
		}
		o.document = doc
	}
	if o.loader == nil {
		o.loader = worker.NewLoader(worker.LoaderConfig{
			Root:        cfg.Workers.ScriptRoot,
			AllowRemote: cfg.Workers.AllowRemote,
			Timeout:     cfg.Workers.FetchTimeout,
			UserAgent:   cfg.Workers.UserAgent,
		})
	}

	log := o.logger
	engine.SetLogger(log.Named("engine"))

	eng, err := engine.New(ctx, &engine.Config{MemoryLimitPages: cfg.Runtime.MemoryLimitPages})
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	lp := loop.New(loop.WithLogger(log.Named("loop")), loop.WithLimit(cfg.Runtime.QueueLimit))
	local := script.NewContext(script.Options{Logger: log, Timeout: cfg.Workers.ScriptTimeout})
	pool := worker.NewPool(worker.Options{
		Logger:        log,
		Loop:          lp,
		Loader:        o.loader,
		Clock:         o.clock,
		MaxWorkers:    cfg.Workers.Max,
		InboxSize:     cfg.Workers.InboxSize,
		ScriptTimeout: cfg.Workers.ScriptTimeout,
		FetchTimeout:  cfg.Workers.FetchTimeout,
	})
	jobs := job.NewDispatcher(job.Options{Logger: log, Sender: pool, Local: local, Clock: o.clock})
	pool.SetReceiver(jobs)
	pool.Subscribe(job.AbandonOnDrop[*worker.Worker](jobs))

	events := event.NewRegistry(event.Options{Logger: log, Document: o.document, Funcs: local})
	timers := timer.NewScheduler(lp, timer.Options{Logger: log, Clock: o.clock, MinInterval: cfg.Timers.MinInterval})
	frames := timer.NewFrames()

	m := metrics.New(cfg.Metrics.Namespace)
	pool.Subscribe(metrics.Observer[*worker.Worker](m, "workers"))
	jobs.Subscribe(metrics.Observer[*job.Job](m, "jobs"))
	m.Size("workers", pool.Count)
	m.Size("jobs", jobs.Len)
	m.Size("timers", timers.Len)
	m.Size("frames", frames.Len)
	m.Size("listeners", events.Len)
	m.Size("loop", lp.Len)

	bridge := hostapi.New(hostapi.Options{
		Logger:  log,
		Pool:    pool,
		Jobs:    jobs,
		Events:  events,
		Timers:  timers,
		Frames:  frames,
		Local:   local,
		Metrics: m,
		Clock:   o.clock,
	})
	if err := bridge.Register(ctx, eng); err != nil {
		_ = eng.Close(ctx)
		lp.Close()
		return nil, err
	}

	return &Runtime{
		cfg:     cfg,
		log:     log.Named("runtime"),
		clock:   o.clock,
		engine:  eng,
		loop:    lp,
		local:   local,
		pool:    pool,
		jobs:    jobs,
		events:  events,
		timers:  timers,
		frames:  frames,
		metrics: m,
		bridge:  bridge,
	}, nil
}

// LoadWASM compiles and instantiates a core wasm guest. Every function the
// guest imports must be provided by a host module, otherwise a
// MissingImportsError lists them. A runtime holds one guest at a time.
func (r *Runtime) LoadWASM(ctx context.Context, wasm []byte) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Closed(errors.PhaseLoad, "runtime")
	}
	if r.guest != nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "a guest is already loaded")
	}

	mod, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}
	g, err := r.engine.Instantiate(ctx, mod, "guest")
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	r.events.SetInvoker(g)
	r.bridge.SetInvoker(g)
	r.guest = &Instance{runtime: r, guest: g, module: mod}
	r.log.Info("guest loaded", zap.Strings("exports", mod.Exports()))
	return r.guest, nil
}

func (r *Runtime) detach(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.guest != inst {
		return
	}
	r.guest = nil
	r.events.SetInvoker(nil)
	r.bridge.SetInvoker(nil)
}

// Instance returns the loaded guest, or nil.
func (r *Runtime) Instance() *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guest
}

// DispatchEvent queues e for delivery on the loop.
func (r *Runtime) DispatchEvent(ctx context.Context, e event.Event) error {
	return r.loop.Post(func() {
		r.metrics.Event(e.Name)
		n, err := r.events.Dispatch(ctx, e)
		if err != nil {
			r.log.Warn("event dispatch failed", zap.String("event", e.Name), zap.String("target", e.Target), zap.Error(err))
			return
		}
		r.log.Debug("event dispatched", zap.String("event", e.Name), zap.Int("listeners", n))
	})
}

// Tick runs queued loop tasks, then one animation frame, then any tasks the
// frame queued. It is for embedders that drive the runtime from their own
// thread instead of calling Run.
func (r *Runtime) Tick(ctx context.Context) error {
	r.loop.Drain()
	err := r.frame(ctx)
	r.loop.Drain()
	return err
}

// frame runs pending animation frame callbacks, then the configured tick
// export if the guest has it. It must run on the loop.
func (r *Runtime) frame(ctx context.Context) error {
	r.frames.Run()

	export := r.cfg.Runtime.TickExport
	if export == "" {
		return nil
	}
	inst := r.Instance()
	if inst == nil || !inst.Has(export) {
		return nil
	}
	_, err := inst.Call(ctx, export)
	return err
}

// Run drives the loop, the frame ticker and the metrics endpoint until ctx
// is cancelled or the runtime is closed.
func (r *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := r.loop.Run(gctx); err != nil {
			return err
		}
		return errStopped
	})

	if interval := r.cfg.Runtime.FrameInterval(); interval > 0 {
		g.Go(func() error {
			return r.tickFrames(gctx, interval)
		})
	}

	if addr := r.cfg.Metrics.Listen; addr != "" {
		g.Go(func() error {
			return r.serveMetrics(gctx, addr)
		})
	}

	err := g.Wait()
	if err == nil || stderrors.Is(err, errStopped) || stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runtime) tickFrames(ctx context.Context, interval time.Duration) error {
	ticker := r.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := r.loop.Post(func() {
				if err := r.frame(ctx); err != nil {
					r.log.Warn("frame failed", zap.Error(err))
				}
			})
			if errors.HasKind(err, errors.KindClosed) {
				return errStopped
			}
			if err != nil {
				r.log.Debug("frame skipped", zap.Error(err))
			}
		}
	}
}

func (r *Runtime) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Runtime.CloseTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	r.log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "metrics listener")
	}
	return nil
}

// Close stops every worker, cancels timers and frames, closes the guest and
// the engine. It is safe to call more than once.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	inst := r.guest
	r.mu.Unlock()

	if timeout := r.cfg.Runtime.CloseTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var errs []error
	r.timers.Close()
	r.frames.Close()
	if err := r.pool.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	r.jobs.Close()
	r.events.Clear()
	r.loop.Close()
	if inst != nil {
		if err := inst.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.engine.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	r.log.Debug("runtime closed")
	return stderrors.Join(errs...)
}

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Workers returns the worker pool.
func (r *Runtime) Workers() *worker.Pool { return r.pool }

// Jobs returns the job dispatcher.
func (r *Runtime) Jobs() *job.Dispatcher { return r.jobs }

// Events returns the callback registry.
func (r *Runtime) Events() *event.Registry { return r.events }

// Timers returns the timer scheduler.
func (r *Runtime) Timers() *timer.Scheduler { return r.timers }

// Frames returns the animation frame queue.
func (r *Runtime) Frames() *timer.Frames { return r.frames }

// Metrics returns the runtime's collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Local returns the host's local script context.
func (r *Runtime) Local() *script.Context { return r.local }

// Post queues fn on the loop.
func (r *Runtime) Post(fn func()) error { return r.loop.Post(fn) }
