package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/handle"
	"github.com/wippyai/wasm-hostbridge/loop"
	"github.com/wippyai/wasm-hostbridge/protocol"
	"github.com/wippyai/wasm-hostbridge/script"
)

// Receiver consumes messages sent by workers. It is called on the loop, in
// the order each worker sent them.
type Receiver interface {
	Receive(from handle.Handle, m protocol.Message)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(from handle.Handle, m protocol.Message)

// Receive calls f(from, m).
func (f ReceiverFunc) Receive(from handle.Handle, m protocol.Message) { f(from, m) }

// Options configures a Pool.
type Options struct {
	Logger        *zap.Logger
	Loop          *loop.Loop
	Loader        Loader
	Clock         clock.Clock
	MaxWorkers    int           // 0 means unlimited
	InboxSize     int           // queued messages per worker
	ScriptTimeout time.Duration // per handler invocation; 0 disables
	FetchTimeout  time.Duration // external script load
}

// Info describes a live worker.
type Info struct {
	Started time.Time
	Source  string
	ID      uuid.UUID
	Handle  handle.Handle
	Kind    SourceKind
}

// Worker is one running script scope and its goroutine.
type Worker struct {
	started time.Time
	scope   *script.Scope
	log     *zap.Logger
	inbox   chan []byte
	done    chan struct{}
	source  Source
	once    sync.Once
	id      uuid.UUID
	handle  handle.Handle
	stopped atomic.Bool
}

// Handle returns the worker's handle.
func (w *Worker) Handle() handle.Handle { return w.handle }

func (w *Worker) terminate() {
	w.once.Do(func() {
		w.stopped.Store(true)
		close(w.done)
		w.scope.Interrupt()
	})
}

// Pool owns every worker. Records are created by Spawn and removed by Stop,
// StopAll, Close or the script calling close().
type Pool struct {
	workers  *handle.Table[*Worker]
	loop     *loop.Loop
	loader   Loader
	clock    clock.Clock
	log      *zap.Logger
	receiver Receiver
	opts     Options
	wg       sync.WaitGroup
	recvMu   sync.RWMutex
	spawnMu  sync.Mutex
	closed   atomic.Bool
}

// NewPool creates an empty pool. opts.Loop is required.
func NewPool(opts Options) *Pool {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Loader == nil {
		opts.Loader = NewLoader(LoaderConfig{Timeout: opts.FetchTimeout})
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Pool{
		workers: handle.NewTable[*Worker](),
		loop:    opts.Loop,
		loader:  opts.Loader,
		clock:   opts.Clock,
		log:     opts.Logger.Named("workers"),
		opts:    opts,
	}
}

// SetReceiver sets where worker messages go. Messages arriving while no
// receiver is set are dropped.
func (p *Pool) SetReceiver(r Receiver) {
	p.recvMu.Lock()
	p.receiver = r
	p.recvMu.Unlock()
}

// Subscribe observes worker creation and removal.
func (p *Pool) Subscribe(o handle.Observer[*Worker]) {
	p.workers.Subscribe(o)
}

// Spawn starts a worker running src and returns its handle. The script is
// loaded and compiled before Spawn returns, so a missing or malformed
// script fails here; exceptions thrown by its top-level body are logged
// and the worker stays active.
func (p *Pool) Spawn(ctx context.Context, src Source) (handle.Handle, error) {
	if p.closed.Load() {
		return handle.Invalid, errors.SpawnFailure("pool closed", nil)
	}

	text := src.Text
	if src.Kind == SourceExternal {
		lctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
		loaded, err := p.loader.Load(lctx, src.Ref)
		cancel()
		if err != nil {
			return handle.Invalid, errors.SpawnFailure("load "+src.Ref, err)
		}
		text = loaded
	}

	prg, err := script.Compile(src.Name(), text)
	if err != nil {
		return handle.Invalid, errors.SpawnFailure("compile "+src.Name(), err)
	}

	p.spawnMu.Lock()
	defer p.spawnMu.Unlock()
	if p.closed.Load() {
		return handle.Invalid, errors.SpawnFailure("pool closed", nil)
	}
	if p.opts.MaxWorkers > 0 && p.workers.Len() >= p.opts.MaxWorkers {
		return handle.Invalid, errors.SpawnFailure("worker limit reached", errors.Overloaded(errors.PhaseSpawn, "worker pool", p.opts.MaxWorkers))
	}

	h := p.workers.Reserve()
	w := &Worker{
		handle:  h,
		id:      uuid.New(),
		source:  src,
		started: p.clock.Now(),
		inbox:   make(chan []byte, p.opts.InboxSize),
		done:    make(chan struct{}),
	}
	w.log = p.log.With(zap.Uint32("worker", uint32(h)), zap.String("id", w.id.String()))
	w.scope = script.NewScope(script.Options{Logger: w.log, Timeout: p.opts.ScriptTimeout}, func(m protocol.Message) {
		p.outbound(w, m)
	})

	if !p.workers.Put(h, w) {
		return handle.Invalid, errors.SpawnFailure("pool closed", nil)
	}

	p.wg.Add(1)
	go p.run(w, prg)

	w.log.Info("worker spawned", zap.Stringer("source", src.Kind), zap.String("script", src.Name()))
	return h, nil
}

// IsActive reports whether h names a live worker.
func (p *Pool) IsActive(h handle.Handle) bool {
	return p.workers.Contains(h)
}

// Stop terminates a worker and removes its record. Unknown handles are
// ignored.
func (p *Pool) Stop(h handle.Handle) {
	w, ok := p.workers.Remove(h)
	if !ok {
		return
	}
	w.terminate()
	w.log.Info("worker stopped")
}

// StopAll stops every live worker.
func (p *Pool) StopAll() {
	for _, h := range p.workers.List(-1) {
		p.Stop(h)
	}
}

// Count returns the number of live workers.
func (p *Pool) Count() int {
	return p.workers.Len()
}

// List returns up to limit live handles in spawn order.
func (p *Pool) List(limit int) []handle.Handle {
	return p.workers.List(limit)
}

// Info describes a live worker.
func (p *Pool) Info(h handle.Handle) (Info, bool) {
	w, ok := p.workers.Get(h)
	if !ok {
		return Info{}, false
	}
	return Info{
		Handle:  w.handle,
		ID:      w.id,
		Kind:    w.source.Kind,
		Source:  w.source.Name(),
		Started: w.started,
	}, true
}

// Send queues a message for a worker without blocking. The message is
// copied; the worker never sees host memory.
func (p *Pool) Send(h handle.Handle, m protocol.Message) error {
	w, ok := p.workers.Get(h)
	if !ok {
		return errors.NotFound(errors.PhaseEval, "worker", uint32(h))
	}
	data, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case w.inbox <- data:
		return nil
	case <-w.done:
		return errors.NotFound(errors.PhaseEval, "worker", uint32(h))
	default:
		return errors.Overloaded(errors.PhaseEval, "worker inbox", cap(w.inbox))
	}
}

// Close stops all workers, refuses new spawns and waits for worker
// goroutines to exit or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.spawnMu.Lock()
	p.closed.Store(true)
	p.spawnMu.Unlock()
	p.StopAll()
	p.workers.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(w *Worker, prg *script.Program) {
	defer p.wg.Done()

	if err := w.scope.Run(prg); err != nil && !w.stopped.Load() {
		w.log.Warn("worker error", zap.String("error", script.ErrorText(err)))
	}

	for !w.scope.Closed() {
		select {
		case <-w.done:
			return
		case data := <-w.inbox:
			m, err := protocol.Unmarshal(data)
			if err != nil {
				w.log.Warn("dropping malformed message", zap.Error(err))
				continue
			}
			if m.Kind == protocol.KindUnknown {
				continue
			}
			if err := w.scope.Deliver(m); err != nil {
				if w.stopped.Load() {
					return
				}
				w.log.Warn("worker error", zap.String("error", script.ErrorText(err)))
			}
		}
	}

	// close() from the script: stop after the messages it already sent.
	h := w.handle
	if err := p.loop.PostWait(w.done, func() { p.stopIfCurrent(h, w) }); err != nil {
		p.stopIfCurrent(h, w)
	}
}

func (p *Pool) stopIfCurrent(h handle.Handle, w *Worker) {
	if cur, ok := p.workers.Get(h); ok && cur == w {
		w.log.Debug("worker closed itself")
		p.Stop(h)
	}
}

// outbound runs on the worker goroutine. The message is serialized there and
// decoded again on the loop, so the receiver gets a copy. While the loop is
// full the worker blocks here until it drains or the worker is stopped.
func (p *Pool) outbound(w *Worker, m protocol.Message) {
	if w.stopped.Load() {
		return
	}
	if m.Kind == protocol.KindUnknown {
		w.log.Debug("ignoring message with unknown kind")
		return
	}
	data, err := protocol.Marshal(m)
	if err != nil {
		w.log.Warn("dropping unencodable message", zap.Error(err))
		return
	}
	h := w.handle
	err = p.loop.PostWait(w.done, func() {
		if cur, ok := p.workers.Get(h); !ok || cur != w {
			return
		}
		msg, err := protocol.Unmarshal(data)
		if err != nil {
			p.log.Warn("dropping malformed message", zap.Uint32("worker", uint32(h)), zap.Error(err))
			return
		}
		p.recvMu.RLock()
		r := p.receiver
		p.recvMu.RUnlock()
		if r != nil {
			r.Receive(h, msg)
		}
	})
	if err != nil && !w.stopped.Load() {
		w.log.Warn("dropping outbound message", zap.Error(err))
	}
}
