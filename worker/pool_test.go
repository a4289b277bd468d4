package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/handle"
	"github.com/wippyai/wasm-hostbridge/loop"
	"github.com/wippyai/wasm-hostbridge/protocol"
)

const echoScript = "self.onmessage = e => postMessage({kind:'eval_result', jobId:e.data.jobId, result: eval(e.data.code)})"

type received struct {
	from handle.Handle
	msg  protocol.Message
}

type recorder struct {
	mu  sync.Mutex
	got []received
}

func (r *recorder) Receive(from handle.Handle, m protocol.Message) {
	r.mu.Lock()
	r.got = append(r.got, received{from, m})
	r.mu.Unlock()
}

func (r *recorder) snapshot() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.got...)
}

func newTestPool(t *testing.T, opts Options) (*Pool, *recorder) {
	t.Helper()
	lp := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = lp.Run(ctx) }()

	opts.Loop = lp
	p := NewPool(opts)
	rec := &recorder{}
	p.SetReceiver(rec)
	t.Cleanup(func() {
		_ = p.Close(context.Background())
		cancel()
	})
	return p, rec
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		payload string
		kind    SourceKind
	}{
		{echoScript, SourceInline},
		{"function worker() {}", SourceInline},
		{"  function f(){}", SourceInline},
		{"workers/echo.js", SourceExternal},
		{"https://example.com/w.js", SourceExternal},
		{"onmessage = e => 1", SourceExternal},
	}
	for _, tt := range tests {
		src := ParseSource(tt.payload)
		assert.Equal(t, tt.kind, src.Kind, "payload %q", tt.payload)
	}
	assert.Equal(t, "workers/echo.js", ParseSource(" workers/echo.js\n").Ref)
}

func TestPool_SpawnAndEval(t *testing.T) {
	p, rec := newTestPool(t, Options{})

	h, err := p.Spawn(context.Background(), Inline(echoScript))
	require.NoError(t, err)
	assert.Equal(t, handle.Handle(1), h)
	assert.True(t, p.IsActive(h))

	require.NoError(t, p.Send(h, protocol.Eval(1, "21*2")))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	got := rec.snapshot()[0]
	assert.Equal(t, h, got.from)
	assert.Equal(t, protocol.EvalResult(1, "42"), got.msg)
}

func TestPool_FIFOPerWorker(t *testing.T) {
	p, rec := newTestPool(t, Options{})
	h, err := p.Spawn(context.Background(), Inline(echoScript))
	require.NoError(t, err)

	for i := uint32(1); i <= 50; i++ {
		require.NoError(t, p.Send(h, protocol.Eval(i, "1")))
	}
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 50 }, 2*time.Second, 5*time.Millisecond)
	for i, r := range rec.snapshot() {
		assert.Equal(t, uint32(i+1), r.msg.JobID)
	}
}

func TestPool_FullLoopKeepsResults(t *testing.T) {
	lp := loop.New(loop.WithLimit(4))
	p := NewPool(Options{Loop: lp})
	rec := &recorder{}
	p.SetReceiver(rec)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	h, err := p.Spawn(context.Background(), Inline(`self.onmessage = e => {
		for (let i = 0; i < 10; i++) postMessage({kind: 'message_response', text: 'tick ' + i})
		postMessage({kind: 'eval_result', jobId: e.data.jobId, result: eval(e.data.code)})
	}`))
	require.NoError(t, err)
	require.NoError(t, p.Send(h, protocol.Eval(1, "6*7")))

	require.Eventually(t, func() bool {
		lp.Drain()
		return len(rec.snapshot()) == 11
	}, 2*time.Second, time.Millisecond)

	got := rec.snapshot()
	last := got[len(got)-1].msg
	assert.Equal(t, protocol.KindEvalResult, last.Kind)
	assert.Equal(t, "42", last.Result)
	assert.Equal(t, "tick 9", got[9].msg.Text, "order is kept under backpressure")
	assert.True(t, p.IsActive(h))
}

func TestPool_StopReleasesBlockedWorker(t *testing.T) {
	lp := loop.New(loop.WithLimit(1))
	p := NewPool(Options{Loop: lp})
	p.SetReceiver(&recorder{})

	h, err := p.Spawn(context.Background(), Inline(
		"self.onmessage = e => { for (let i = 0; i < 5; i++) postMessage({kind: 'message_response', text: 'x'}) }"))
	require.NoError(t, err)
	require.NoError(t, p.Send(h, protocol.Text("go")))
	require.Eventually(t, func() bool { return lp.Len() == 1 }, time.Second, time.Millisecond)

	p.Stop(h)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, p.Close(ctx), "a stopped worker stops waiting for the loop")
}

func TestPool_UniqueHandles(t *testing.T) {
	p, _ := newTestPool(t, Options{})
	seen := map[handle.Handle]bool{}
	for i := 0; i < 5; i++ {
		h, err := p.Spawn(context.Background(), Inline(echoScript))
		require.NoError(t, err)
		require.NotEqual(t, handle.Invalid, h)
		require.False(t, seen[h])
		seen[h] = true
	}
	assert.Equal(t, 5, p.Count())
}

func TestPool_ListTruncates(t *testing.T) {
	p, _ := newTestPool(t, Options{})
	var hs []handle.Handle
	for i := 0; i < 3; i++ {
		h, err := p.Spawn(context.Background(), Inline(echoScript))
		require.NoError(t, err)
		hs = append(hs, h)
	}
	assert.Equal(t, hs[:2], p.List(2))
	assert.Equal(t, hs, p.List(10))
}

func TestPool_Stop(t *testing.T) {
	p, rec := newTestPool(t, Options{})

	var dropped []handle.Handle
	p.Subscribe(handle.ObserverFunc[*Worker](func(e handle.Event[*Worker]) {
		if e.Type == handle.EventDropped {
			dropped = append(dropped, e.Handle)
		}
	}))

	h, err := p.Spawn(context.Background(), Inline("self.onmessage = e => { for(;;){} }"))
	require.NoError(t, err)
	require.NoError(t, p.Send(h, protocol.Eval(1, "x")))

	p.Stop(h)
	assert.False(t, p.IsActive(h))
	assert.Equal(t, []handle.Handle{h}, dropped)

	p.Stop(h)
	assert.Len(t, dropped, 1, "stop is idempotent")

	err = p.Send(h, protocol.Eval(2, "1"))
	assert.True(t, errors.HasKind(err, errors.KindNotFound))
	assert.Empty(t, rec.snapshot())
}

func TestPool_StopAll(t *testing.T) {
	p, _ := newTestPool(t, Options{})
	for i := 0; i < 3; i++ {
		_, err := p.Spawn(context.Background(), Inline(echoScript))
		require.NoError(t, err)
	}
	p.StopAll()
	assert.Equal(t, 0, p.Count())
	assert.Empty(t, p.List(-1))
}

func TestPool_SpawnFailures(t *testing.T) {
	p, _ := newTestPool(t, Options{MaxWorkers: 1, Loader: NewLoader(LoaderConfig{Root: t.TempDir()})})

	_, err := p.Spawn(context.Background(), Inline("function ("))
	assert.True(t, errors.HasKind(err, errors.KindSpawnFailure), "compile: %v", err)

	_, err = p.Spawn(context.Background(), External("missing.js"))
	assert.True(t, errors.HasKind(err, errors.KindSpawnFailure), "load: %v", err)
	assert.True(t, errors.HasKind(err, errors.KindNotFound), "load cause: %v", err)

	h, err := p.Spawn(context.Background(), Inline(echoScript))
	require.NoError(t, err)
	assert.Equal(t, handle.Handle(1), h, "failed spawns consume no handle")

	_, err = p.Spawn(context.Background(), Inline(echoScript))
	assert.True(t, errors.HasKind(err, errors.KindOverloaded), "limit: %v", err)
	assert.Equal(t, 1, p.Count())
}

func TestPool_TopLevelErrorKeepsWorker(t *testing.T) {
	p, _ := newTestPool(t, Options{})
	h, err := p.Spawn(context.Background(), Inline("self.onmessage = null; throw new Error('init')"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, p.IsActive(h))
}

func TestPool_SelfClose(t *testing.T) {
	p, rec := newTestPool(t, Options{})
	h, err := p.Spawn(context.Background(), Inline(
		"self.onmessage = e => { postMessage({kind:'message_response', text:'bye'}); close() }"))
	require.NoError(t, err)

	require.NoError(t, p.Send(h, protocol.Text("x")))
	require.Eventually(t, func() bool { return !p.IsActive(h) }, 2*time.Second, 5*time.Millisecond)

	got := rec.snapshot()
	require.Len(t, got, 1, "messages sent before close() are delivered")
	assert.Equal(t, "bye", got[0].msg.Text)
}

func TestPool_Info(t *testing.T) {
	p, _ := newTestPool(t, Options{})
	h, err := p.Spawn(context.Background(), Inline(echoScript))
	require.NoError(t, err)

	info, ok := p.Info(h)
	require.True(t, ok)
	assert.Equal(t, h, info.Handle)
	assert.Equal(t, SourceInline, info.Kind)
	assert.NotEqual(t, [16]byte{}, [16]byte(info.ID))

	_, ok = p.Info(99)
	assert.False(t, ok)
}

func TestPool_Closed(t *testing.T) {
	lp := loop.New()
	p := NewPool(Options{Loop: lp})
	_, err := p.Spawn(context.Background(), Inline(echoScript))
	require.NoError(t, err)

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 0, p.Count())

	_, err = p.Spawn(context.Background(), Inline(echoScript))
	assert.True(t, errors.HasKind(err, errors.KindSpawnFailure))
}

func TestLoader_File(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "w"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "w", "echo.js"), []byte(echoScript), 0o644))

	l := NewLoader(LoaderConfig{Root: root})
	got, err := l.Load(context.Background(), "w/echo.js")
	require.NoError(t, err)
	assert.Equal(t, echoScript, got)

	got, err = l.Load(context.Background(), "file://w/echo.js")
	require.NoError(t, err)
	assert.Equal(t, echoScript, got)

	_, err = l.Load(context.Background(), "../etc/passwd")
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput), "escape: %v", err)

	_, err = l.Load(context.Background(), "")
	assert.Error(t, err)
}

func TestLoader_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/echo.js" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(echoScript))
	}))
	defer srv.Close()

	denied := NewLoader(LoaderConfig{})
	_, err := denied.Load(context.Background(), srv.URL+"/echo.js")
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))

	l := NewLoader(LoaderConfig{AllowRemote: true, Timeout: time.Second})
	got, err := l.Load(context.Background(), srv.URL+"/echo.js")
	require.NoError(t, err)
	assert.Equal(t, echoScript, got)

	_, err = l.Load(context.Background(), srv.URL+"/nope.js")
	assert.True(t, errors.HasKind(err, errors.KindNotFound), "got %v", err)
}

func TestPool_SpawnRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(echoScript))
	}))
	defer srv.Close()

	p, rec := newTestPool(t, Options{Loader: NewLoader(LoaderConfig{AllowRemote: true})})
	h, err := p.Spawn(context.Background(), ParseSource(srv.URL+"/echo.js"))
	require.NoError(t, err)

	require.NoError(t, p.Send(h, protocol.Eval(3, "'a'+1")))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "a1", rec.snapshot()[0].msg.Result)
}
