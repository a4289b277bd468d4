package engine

// HostModule collects the host functions of one import namespace.
//
// Handlers follow wazero's reflective form: an optional context.Context and
// api.Module, then parameters and results of type uint32, int32, uint64,
// int64, float32 or float64.
//
//	engine.NewHostModule("api_console").
//		Func("console_log", func(ctx context.Context, m api.Module, ptr, n uint32) {...})
type HostModule struct {
	name  string
	funcs []hostFunc
}

type hostFunc struct {
	fn   any
	name string
}

// NewHostModule starts an empty module named name.
func NewHostModule(name string) *HostModule {
	return &HostModule{name: name}
}

// Func adds an exported function.
func (h *HostModule) Func(name string, fn any) *HostModule {
	h.funcs = append(h.funcs, hostFunc{name: name, fn: fn})
	return h
}

// Name returns the import namespace.
func (h *HostModule) Name() string { return h.name }

// Names lists the functions in registration order.
func (h *HostModule) Names() []string {
	out := make([]string, len(h.funcs))
	for i, f := range h.funcs {
		out[i] = f.name
	}
	return out
}
