package engine

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/event"
	"github.com/wippyai/wasm-hostbridge/internal/wasmtest"
)

func newEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func TestNew(t *testing.T) {
	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{CloseOnContextDone: true}, "close on done"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t, tc.cfg)
			if e.Runtime() == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Compile(context.Background(), []byte("not wasm"))
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !errors.HasKind(err, errors.KindInvalidInput) {
		t.Errorf("unexpected error kind: %v", err)
	}
}

func TestModule_ImportsAndExports(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.Compile(ctx, wasmtest.Probe)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer m.Close(ctx)

	imports := m.Imports()
	if len(imports) != 1 || imports[0] != "api_workers.worker_list_len" {
		t.Errorf("Imports = %v", imports)
	}
	exports := m.Exports()
	if len(exports) != 1 || exports[0] != "probe" {
		t.Errorf("Exports = %v", exports)
	}
}

func TestInstantiate_MissingImports(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	m, err := e.Compile(ctx, wasmtest.Probe)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	_, err = e.Instantiate(ctx, m, "guest")
	var missing *errors.MissingImportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("expected MissingImportsError, got %v", err)
	}
	if len(missing.Imports) != 1 || missing.Imports[0].Function != "worker_list_len" {
		t.Errorf("Imports = %+v", missing.Imports)
	}

	// a module with the right name but not the function is still missing
	if err := e.Register(ctx, NewHostModule("api_workers").
		Func("worker_count", func() uint32 { return 0 })); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := e.CheckImports(m); err == nil {
		t.Error("CheckImports should still fail")
	}
}

func TestRegister_HostFunction(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	calls := 0
	host := NewHostModule("api_workers").
		Func("worker_list_len", func(ctx context.Context, m api.Module) uint32 {
			calls++
			return 3
		})
	if err := e.Register(ctx, host); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := host.Names(); len(got) != 1 || got[0] != "worker_list_len" {
		t.Errorf("Names = %v", got)
	}

	m, err := e.Compile(ctx, wasmtest.Probe)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g, err := e.Instantiate(ctx, m, "guest")
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	res, err := g.Call(ctx, "probe")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(res) != 1 || api.DecodeU32(res[0]) != 3 {
		t.Errorf("probe = %v, want [3]", res)
	}
	if calls != 1 {
		t.Errorf("host function called %d times", calls)
	}
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	if err := e.Register(ctx, NewHostModule("api_console")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := e.Register(ctx, NewHostModule("api_console"))
	if !errors.HasKind(err, errors.KindDuplicate) {
		t.Errorf("second Register = %v, want duplicate", err)
	}

	err = e.Register(ctx, NewHostModule("api_bad").Func("bad", func(s string) {}))
	if !errors.HasKind(err, errors.KindRegistration) {
		t.Errorf("unsupported signature = %v, want registration error", err)
	}
}

func instantiateCallbacks(t *testing.T) *Guest {
	t.Helper()
	ctx := context.Background()
	e := newEngine(t, nil)
	m, err := e.Compile(ctx, wasmtest.Callbacks)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g, err := e.Instantiate(ctx, m, "")
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return g
}

func global(t *testing.T, g *Guest, name string) uint32 {
	t.Helper()
	gl := g.Module().ExportedGlobal(name)
	if gl == nil {
		t.Fatalf("global %q not exported", name)
	}
	return api.DecodeU32(gl.Get())
}

func TestGuest_Callbacks(t *testing.T) {
	ctx := context.Background()
	g := instantiateCallbacks(t)

	if g.Memory() == nil || g.Memory().Size() != 65536 {
		t.Fatal("guest memory not wrapped")
	}
	if !g.Has(ExportCallback) || g.Has(ExportCallbackPointer) {
		t.Error("Has reports wrong exports")
	}

	if err := g.Callback(ctx, 7); err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if got := global(t, g, "last"); got != 7 {
		t.Errorf("last = %d, want 7", got)
	}

	rec := event.MouseRecord{X: 1.5, Y: 2.5, Button: 0, Buttons: 1, Kind: event.KindMouseDown, Timestamp: 12}
	if err := g.Mouse(ctx, 9, rec); err != nil {
		t.Fatalf("Mouse: %v", err)
	}
	if got := global(t, g, "last"); got != 9 {
		t.Errorf("last = %d, want 9", got)
	}
	if got := global(t, g, "kind"); got != uint32(event.KindMouseDown) {
		t.Errorf("kind = %d, want %d", got, event.KindMouseDown)
	}

	err := g.Pointer(ctx, 1, event.PointerRecord{})
	if !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("Pointer without export = %v, want not found", err)
	}
}

func TestGuest_Close(t *testing.T) {
	ctx := context.Background()
	g := instantiateCallbacks(t)

	if _, err := g.Call(ctx, "main"); err != nil {
		t.Fatalf("main: %v", err)
	}
	if got := global(t, g, "started"); got != 1 {
		t.Errorf("started = %d", got)
	}

	if err := g.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := g.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := g.Callback(ctx, 1); !errors.HasKind(err, errors.KindClosed) {
		t.Errorf("Callback after close = %v", err)
	}
}

func TestGuest_ReentrantHostCall(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	var cb *Guest
	var inner error
	host := NewHostModule("api_workers").
		Func("worker_list_len", func(ctx context.Context) uint32 {
			// calls back into the guest while probe is running
			_, inner = cb.Call(ctx, "probe_noop")
			return 1
		})
	if err := e.Register(ctx, host); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m, err := e.Compile(ctx, wasmtest.Probe)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g, err := e.Instantiate(ctx, m, "")
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	cb = g

	if _, err := g.Call(ctx, "probe"); err != nil {
		t.Fatalf("probe: %v", err)
	}
	// the nested call must not deadlock; the export does not exist
	if !errors.HasKind(inner, errors.KindNotFound) {
		t.Errorf("nested call = %v, want not found", inner)
	}
}

func TestLogger(t *testing.T) {
	if Logger() == nil {
		t.Fatal("Logger() must never be nil")
	}
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger() must never be nil after SetLogger(nil)")
	}
}
