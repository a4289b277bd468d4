package hostapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-hostbridge/codec"
	"github.com/wippyai/wasm-hostbridge/event"
	"github.com/wippyai/wasm-hostbridge/job"
	"github.com/wippyai/wasm-hostbridge/loop"
	"github.com/wippyai/wasm-hostbridge/metrics"
	"github.com/wippyai/wasm-hostbridge/script"
	"github.com/wippyai/wasm-hostbridge/timer"
	"github.com/wippyai/wasm-hostbridge/worker"
)

const echoScript = "self.onmessage = e => postMessage({kind:'eval_result', jobId:e.data.jobId, result: eval(e.data.code)})"

type recordingInvoker struct {
	mu        sync.Mutex
	callbacks []uint32
	mouse     []event.MouseRecord
}

func (r *recordingInvoker) Callback(_ context.Context, cb uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
	return nil
}

func (r *recordingInvoker) Mouse(_ context.Context, cb uint32, m event.MouseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
	r.mouse = append(r.mouse, m)
	return nil
}

func (r *recordingInvoker) Pointer(_ context.Context, cb uint32, _ event.PointerRecord) error {
	return r.Callback(context.Background(), cb)
}

func (r *recordingInvoker) got() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.callbacks...)
}

type harness struct {
	t      *testing.T
	b      *Bridge
	mem    *codec.Buffer
	loop   *loop.Loop
	pool   *worker.Pool
	jobs   *job.Dispatcher
	events *event.Registry
	timers *timer.Scheduler
	frames *timer.Frames
	local  *script.Context
	clock  *clock.Mock
	inv    *recordingInvoker
	logs   *observer.ObservedLogs
	next   uint32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRoot(t, t.TempDir())
}

// newHarnessWithRoot builds a harness whose workers load scripts from root.
func newHarnessWithRoot(t *testing.T, root string) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	mock := clock.NewMock()
	lp := loop.New(loop.WithLogger(log))
	local := script.NewContext(script.Options{Logger: log})
	pool := worker.NewPool(worker.Options{
		Logger: log,
		Loop:   lp,
		Loader: worker.NewLoader(worker.LoaderConfig{Root: root}),
	})
	jobs := job.NewDispatcher(job.Options{Logger: log, Sender: pool, Local: local})
	pool.SetReceiver(jobs)
	pool.Subscribe(job.AbandonOnDrop[*worker.Worker](jobs))

	inv := &recordingInvoker{}
	events := event.NewRegistry(event.Options{Logger: log, Invoker: inv, Funcs: local})
	timers := timer.NewScheduler(lp, timer.Options{Logger: log, Clock: mock})
	frames := timer.NewFrames()

	b := New(Options{
		Logger:  log,
		Pool:    pool,
		Jobs:    jobs,
		Events:  events,
		Timers:  timers,
		Frames:  frames,
		Local:   local,
		Metrics: metrics.New("test"),
		Clock:   mock,
	})
	b.SetInvoker(inv)

	t.Cleanup(func() {
		_ = pool.Close(context.Background())
		timers.Close()
		frames.Close()
		lp.Close()
	})

	return &harness{
		t: t, b: b, mem: codec.NewBuffer(4096), loop: lp, pool: pool, jobs: jobs,
		events: events, timers: timers, frames: frames, local: local, clock: mock,
		inv: inv, logs: logs, next: 8,
	}
}

// put writes s into guest memory and returns its (ptr, len).
func (h *harness) put(s string) (uint32, uint32) {
	h.t.Helper()
	ptr := h.next
	require.NoError(h.t, h.mem.Write(ptr, []byte(s)))
	h.next += uint32(len(s)) + 8
	return ptr, uint32(len(s))
}

// alloc reserves n bytes of guest memory.
func (h *harness) alloc(n uint32) uint32 {
	ptr := h.next
	h.next += n + 8
	return ptr
}

func (h *harness) read(ptr uint32, n int32) string {
	h.t.Helper()
	data, err := h.mem.Read(ptr, uint32(n))
	require.NoError(h.t, err)
	return string(data)
}

func (h *harness) spawn(script string) uint32 {
	h.t.Helper()
	ptr, n := h.put(script)
	return h.b.WorkerSpawn(context.Background(), h.mem, ptr, n)
}

func (h *harness) eval(worker uint32, code string) uint32 {
	h.t.Helper()
	ptr, n := h.put(code)
	return h.b.WorkerEval(h.mem, worker, ptr, n)
}

// settle drains the loop until cond holds.
func (h *harness) settle(cond func() bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.loop.Drain()
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func (h *harness) warned(msg string) bool {
	return h.logs.FilterMessage(msg).FilterLevelExact(zapcore.WarnLevel).Len() > 0
}
