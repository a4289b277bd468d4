package script

import (
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/errors"
)

// Options configures a runtime.
type Options struct {
	Logger  *zap.Logger
	Timeout time.Duration // per evaluation; 0 disables
}

// Context is the host's synchronous script runtime. It is safe for
// concurrent use; evaluations are serialized.
type Context struct {
	vm      *goja.Runtime
	log     *zap.Logger
	timeout time.Duration
	mu      sync.Mutex
}

// NewContext creates a local runtime with console bound to the logger.
func NewContext(opts Options) *Context {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	vm := goja.New()
	removeUnsafeGlobals(vm)
	installConsole(vm, log.With(zap.String("source", "local")))
	_ = vm.Set("window", vm.GlobalObject())
	_ = vm.Set("self", vm.GlobalObject())
	return &Context{vm: vm, log: log, timeout: opts.Timeout}
}

// Eval runs code and returns its completion value as text. A thrown
// exception or timeout is returned as a KindScript error.
func (c *Context) Eval(code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out string
	err := withTimeout(c.vm, c.timeout, func() error {
		v, err := c.vm.RunString(code)
		if err != nil {
			return err
		}
		out = Stringify(v)
		return nil
	})
	if err != nil {
		return "", errors.Script(errors.PhaseEval, err)
	}
	return out, nil
}

// EvalResult runs code and always yields text: the completion value, or
// ErrorPrefix + message when evaluation throws.
func (c *Context) EvalResult(code string) string {
	out, err := c.Eval(code)
	if err != nil {
		return ErrorText(err)
	}
	return out
}

// CallGlobal calls the global function name with no arguments.
func (c *Context) CallGlobal(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn, ok := goja.AssertFunction(c.vm.Get(name))
	if !ok {
		return errors.NotFoundName(errors.PhaseEvent, "function", name)
	}
	err := withTimeout(c.vm, c.timeout, func() error {
		_, err := fn(goja.Undefined())
		return err
	})
	if err != nil {
		return errors.Script(errors.PhaseEvent, err)
	}
	return nil
}

// HasGlobal reports whether name is bound to a callable global.
func (c *Context) HasGlobal(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := goja.AssertFunction(c.vm.Get(name))
	return ok
}

// withTimeout runs fn, interrupting the runtime if it takes longer than d.
func withTimeout(vm *goja.Runtime, d time.Duration, fn func() error) error {
	if d <= 0 {
		return fn()
	}
	timer := time.AfterFunc(d, func() {
		vm.Interrupt("execution timeout exceeded")
	})
	err := fn()
	if !timer.Stop() {
		// Fired after or during fn; drop the pending interrupt flag.
		vm.ClearInterrupt()
	}
	return err
}
