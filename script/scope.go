package script

import (
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/protocol"
)

// Program is a compiled worker script.
type Program = goja.Program

// Compile parses src without running it.
func Compile(name, src string) (*Program, error) {
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSpawn, errors.KindScript, err, "compile "+name)
	}
	return prg, nil
}

// Scope is the global scope of one worker. Only Interrupt may be called
// from a goroutine other than the one driving the scope.
type Scope struct {
	vm        *goja.Runtime
	log       *zap.Logger
	post      func(protocol.Message)
	listeners []goja.Callable
	timeout   time.Duration
	closed    atomic.Bool
}

// NewScope creates a worker scope. post receives every message the script
// sends with postMessage.
func NewScope(opts Options, post func(protocol.Message)) *Scope {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scope{
		vm:      goja.New(),
		log:     log,
		post:    post,
		timeout: opts.Timeout,
	}
	removeUnsafeGlobals(s.vm)
	installConsole(s.vm, log.With(zap.String("source", "worker")))

	global := s.vm.GlobalObject()
	_ = s.vm.Set("self", global)
	_ = s.vm.Set("postMessage", s.postMessage)
	_ = s.vm.Set("close", func() { s.closed.Store(true) })
	_ = s.vm.Set("addEventListener", func(typ string, fn goja.Value) {
		if cb, ok := goja.AssertFunction(fn); ok && typ == "message" {
			s.listeners = append(s.listeners, cb)
		}
	})
	return s
}

// Run executes the top-level body of a compiled script.
func (s *Scope) Run(prg *Program) error {
	err := withTimeout(s.vm, s.timeout, func() error {
		_, err := s.vm.RunProgram(prg)
		return err
	})
	if err != nil {
		return errors.Script(errors.PhaseSpawn, err)
	}
	return nil
}

// Deliver dispatches a message to onmessage and every message listener as
// an event whose data holds the message fields.
func (s *Scope) Deliver(m protocol.Message) error {
	handlers := s.listeners
	if fn, ok := goja.AssertFunction(s.vm.Get("onmessage")); ok {
		handlers = append([]goja.Callable{fn}, handlers...)
	}
	if len(handlers) == 0 {
		return nil
	}

	event := s.vm.NewObject()
	_ = event.Set("type", "message")
	_ = event.Set("data", m.Fields())

	return withTimeout(s.vm, s.timeout, func() error {
		for _, fn := range handlers {
			if _, err := fn(goja.Undefined(), event); err != nil {
				return errors.Script(errors.PhaseEval, err)
			}
		}
		return nil
	})
}

// Closed reports whether the script called close().
func (s *Scope) Closed() bool {
	return s.closed.Load()
}

// Interrupt aborts the running handler and makes later runs fail.
func (s *Scope) Interrupt() {
	s.vm.Interrupt("worker terminated")
}

// postMessage copies a script object into a protocol message. Objects
// without a known kind become KindUnknown and are dropped by the host.
func (s *Scope) postMessage(call goja.FunctionCall) goja.Value {
	obj, ok := call.Argument(0).(*goja.Object)
	if !ok {
		s.post(protocol.Message{Kind: protocol.KindUnknown})
		return goja.Undefined()
	}

	m := protocol.Message{Kind: protocol.ParseKind(Stringify(obj.Get("kind")))}
	switch m.Kind {
	case protocol.KindEvalResult:
		m.JobID = jobID(obj)
		m.Result = Stringify(obj.Get("result"))
	case protocol.KindEval:
		m.JobID = jobID(obj)
		m.Code = Stringify(obj.Get("code"))
	case protocol.KindMessage, protocol.KindMessageResponse:
		m.Text = Stringify(obj.Get("text"))
	case protocol.KindUnknown:
	}
	s.post(m)
	return goja.Undefined()
}

func jobID(obj *goja.Object) uint32 {
	v := obj.Get("jobId")
	if v == nil {
		return 0
	}
	return uint32(v.ToInteger())
}
