package runtime

import (
	"context"
	"sync"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/engine"
	"github.com/wippyai/wasm-hostbridge/errors"
)

// Entry points tried by Main, in order.
var entryPoints = []string{"main", "_start"}

// Instance is the loaded guest.
type Instance struct {
	runtime *Runtime
	guest   *engine.Guest
	module  *engine.Module
	once    sync.Once
	err     error
}

// Call invokes an exported function with raw wasm values. Calls are
// serialized with timer, frame and event callbacks.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	return i.guest.Call(ctx, name, params...)
}

// Main runs the guest's entry point: name if given, otherwise main or
// _start, whichever the guest exports first.
func (i *Instance) Main(ctx context.Context, name ...string) error {
	candidates := entryPoints
	if len(name) > 0 && name[0] != "" {
		candidates = name[:1]
	}
	for _, n := range candidates {
		if i.guest.Has(n) {
			_, err := i.guest.Call(ctx, n)
			return err
		}
	}
	return errors.NotFoundName(errors.PhaseRuntime, "entry point", candidates[0])
}

// Has reports whether the guest exports a function called name.
func (i *Instance) Has(name string) bool {
	return i.guest.Has(name)
}

// Exports lists the guest's exported names.
func (i *Instance) Exports() []string {
	return i.module.Exports()
}

// Memory returns the guest's exported memory, or nil.
func (i *Instance) Memory() hostbridge.Memory {
	return i.guest.Memory()
}

// Guest returns the engine-level guest.
func (i *Instance) Guest() *engine.Guest {
	return i.guest
}

// Close detaches the guest from the runtime and releases it. Pending timer
// and event callbacks are dropped with a warning from then on.
func (i *Instance) Close(ctx context.Context) error {
	i.once.Do(func() {
		i.runtime.detach(i)
		i.err = i.guest.Close(ctx)
		if err := i.module.Close(ctx); err != nil && i.err == nil {
			i.err = err
		}
	})
	return i.err
}
