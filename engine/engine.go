package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CloseOnContextDone makes running guest code observe context
	// cancellation, at some cost in call overhead.
	CloseOnContextDone bool
}

// Engine owns a wazero runtime and the host modules instantiated in it.
type Engine struct {
	runtime wazero.Runtime
	hosts   map[string]*HostModule
	mu      sync.Mutex
}

// New creates an engine. A nil cfg uses wazero defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		hosts:   make(map[string]*HostModule),
	}, nil
}

// Runtime exposes the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Register instantiates h so guests can import its functions. Each module
// name can be registered once.
func (e *Engine) Register(ctx context.Context, h *HostModule) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.hosts[h.name]; exists {
		return errors.New(errors.PhaseHost, errors.KindDuplicate).
			Path(h.name).
			Detail("host module already registered").
			Build()
	}

	// WithFunc reflects on the handler and panics on unsupported signatures.
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(errors.PhaseHost, errors.KindRegistration, fmt.Errorf("%v", r), "build host module "+h.name)
		}
	}()

	builder := e.runtime.NewHostModuleBuilder(h.name)
	for _, f := range h.funcs {
		builder.NewFunctionBuilder().WithFunc(f.fn).Export(f.name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindRegistration, err, "instantiate host module "+h.name)
	}

	e.hosts[h.name] = h
	Logger().Debug("registered host module",
		zap.String("module", h.name),
		zap.Int("functions", len(h.funcs)))
	return nil
}

// Module is a compiled guest that has not been instantiated.
type Module struct {
	compiled wazero.CompiledModule
}

// Compile validates and compiles a core wasm binary.
func (e *Engine) Compile(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile guest", err)
	}
	return &Module{compiled: compiled}, nil
}

// Imports lists the module's function imports as "module.function".
func (m *Module) Imports() []string {
	defs := m.compiled.ImportedFunctions()
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		mod, name, _ := def.Import()
		out = append(out, mod+"."+name)
	}
	return out
}

// Exports lists the module's exported function names.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	out := make([]string, 0, len(defs))
	for name := range defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// CheckImports reports every function import that no instantiated module in
// the runtime provides.
func (e *Engine) CheckImports(m *Module) error {
	var missing []string
	for _, def := range m.compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		host := e.runtime.Module(mod)
		if host == nil || host.ExportedFunction(name) == nil {
			missing = append(missing, mod+"."+name)
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	return nil
}

// Instantiate checks imports and starts the guest. The module's start
// function runs here; exported entry points run only when called.
func (e *Engine) Instantiate(ctx context.Context, m *Module, name string) (*Guest, error) {
	if err := e.CheckImports(m); err != nil {
		return nil, err
	}

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions() // _start is an entry point, not an initializer

	mod, err := e.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return newGuest(mod), nil
}

// Close shuts the runtime down, closing every guest and host module.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
