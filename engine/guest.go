package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/codec"
	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/event"
)

// Guest exports the bridge calls back into.
const (
	ExportCallback        = "wasm_callback"         // (i32 cb)
	ExportCallbackMouse   = "wasm_callback_mouse"   // (i32 cb, i32 button, i32 buttons, f64 x, f64 y, i32 kind, f64 ts)
	ExportCallbackPointer = "wasm_callback_pointer" // (i32 cb, i32 id, f64 x, f64 y, f64 pressure, i32 tiltX, i32 tiltY, i32 twist, i32 kind, f64 ts)
)

type guestKey struct{}

// Guest is an instantiated compute module.
//
// The guest is single threaded: calls from different goroutines are
// serialized. A host function running inside a guest call may call back
// into the same guest with the context it was given.
type Guest struct {
	mod    api.Module
	mem    hostbridge.Memory
	funcs  map[string]api.Function
	closed bool
	mu     sync.Mutex
}

func newGuest(mod api.Module) *Guest {
	return &Guest{
		mod:   mod,
		mem:   codec.WrapMemory(mod.Memory()),
		funcs: make(map[string]api.Function),
	}
}

// Module returns the wazero module.
func (g *Guest) Module() api.Module { return g.mod }

// Memory returns the guest's exported memory, or nil if it has none.
func (g *Guest) Memory() hostbridge.Memory { return g.mem }

// Has reports whether the guest exports a function called name.
func (g *Guest) Has(name string) bool {
	return g.mod.ExportedFunction(name) != nil
}

// Call invokes an exported function with raw wasm values.
func (g *Guest) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if ctx.Value(guestKey{}) == g {
		return g.call(ctx, name, params)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.call(context.WithValue(ctx, guestKey{}, g), name, params)
}

func (g *Guest) call(ctx context.Context, name string, params []uint64) ([]uint64, error) {
	if g.closed {
		return nil, errors.Closed(errors.PhaseRuntime, "guest")
	}
	fn, ok := g.funcs[name]
	if !ok {
		fn = g.mod.ExportedFunction(name)
		if fn == nil {
			return nil, errors.NotFoundName(errors.PhaseRuntime, "export", name)
		}
		g.funcs[name] = fn
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Callback calls wasm_callback(cb).
func (g *Guest) Callback(ctx context.Context, cb uint32) error {
	_, err := g.Call(ctx, ExportCallback, api.EncodeU32(cb))
	return err
}

// Mouse calls wasm_callback_mouse with r.
func (g *Guest) Mouse(ctx context.Context, cb uint32, r event.MouseRecord) error {
	_, err := g.Call(ctx, ExportCallbackMouse,
		api.EncodeU32(cb),
		api.EncodeI32(r.Button),
		api.EncodeI32(r.Buttons),
		api.EncodeF64(r.X),
		api.EncodeF64(r.Y),
		api.EncodeI32(int32(r.Kind)),
		api.EncodeF64(r.Timestamp),
	)
	return err
}

// Pointer calls wasm_callback_pointer with r.
func (g *Guest) Pointer(ctx context.Context, cb uint32, r event.PointerRecord) error {
	_, err := g.Call(ctx, ExportCallbackPointer,
		api.EncodeU32(cb),
		api.EncodeI32(r.PointerID),
		api.EncodeF64(r.X),
		api.EncodeF64(r.Y),
		api.EncodeF64(r.Pressure),
		api.EncodeI32(r.TiltX),
		api.EncodeI32(r.TiltY),
		api.EncodeI32(r.Twist),
		api.EncodeI32(int32(r.Kind)),
		api.EncodeF64(r.Timestamp),
	)
	return err
}

// Close closes the guest module. Later calls fail with a closed error.
func (g *Guest) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.funcs = nil
	return g.mod.Close(ctx)
}

var _ event.Invoker = (*Guest)(nil)
