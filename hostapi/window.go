package hostapi

import (
	"go.uber.org/zap"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/errors"
	"github.com/wippyai/wasm-hostbridge/handle"
)

// SetTimeout calls wasm_callback(cb) once after delay milliseconds and
// returns the timer handle, or 0.
func (b *Bridge) SetTimeout(cb, delay uint32) uint32 {
	const op = "window_set_timeout"
	b.call(ModuleWindow, op)
	return b.timerResult(op, b.timers.SetTimeout(ms(delay), func() { b.invoke(cb) }))
}

// SetInterval calls wasm_callback(cb) every interval milliseconds until
// cleared.
func (b *Bridge) SetInterval(cb, interval uint32) uint32 {
	const op = "window_set_interval"
	b.call(ModuleWindow, op)
	return b.timerResult(op, b.timers.SetInterval(ms(interval), func() { b.invoke(cb) }))
}

// ClearTimeout cancels a timeout or interval. Clearing twice is harmless.
func (b *Bridge) ClearTimeout(h uint32) {
	b.call(ModuleWindow, "window_clear_timeout")
	b.timers.Clear(handle.Handle(h))
}

// RequestAnimationFrame calls wasm_callback(cb) on the next frame and
// returns the request handle, or 0.
func (b *Bridge) RequestAnimationFrame(cb uint32) uint32 {
	const op = "window_request_animation_frame"
	b.call(ModuleWindow, op)
	h := b.frames.Request(func() { b.invoke(cb) })
	if !h.Valid() {
		b.fail(ModuleWindow, op, errors.Closed(errors.PhaseTimer, "frames"))
	}
	return uint32(h)
}

// CancelAnimationFrame cancels a pending frame request.
func (b *Bridge) CancelAnimationFrame(h uint32) {
	b.call(ModuleWindow, "window_cancel_animation_frame")
	b.frames.Cancel(handle.Handle(h))
}

// Eval runs the code at (ptr, n) in the local script context. Exceptions
// are logged.
func (b *Bridge) Eval(mem hostbridge.Memory, ptr, n uint32) {
	const op = "window_eval"
	b.call(ModuleWindow, op)

	code, ok := b.text(mem, ModuleWindow, op, ptr, n)
	if !ok {
		return
	}
	b.evalLocal(op, code)
}

// EvalTimeout runs the code at (ptr, n) in the local context after delay
// milliseconds. The handle is cleared with window_clear_timeout.
func (b *Bridge) EvalTimeout(mem hostbridge.Memory, ptr, n, delay uint32) uint32 {
	const op = "window_eval_timeout"
	b.call(ModuleWindow, op)

	code, ok := b.text(mem, ModuleWindow, op, ptr, n)
	if !ok {
		return 0
	}
	return b.timerResult(op, b.timers.SetTimeout(ms(delay), func() { b.evalLocal(op, code) }))
}

// EvalInterval runs the code at (ptr, n) every interval milliseconds.
func (b *Bridge) EvalInterval(mem hostbridge.Memory, ptr, n, interval uint32) uint32 {
	const op = "window_eval_interval"
	b.call(ModuleWindow, op)

	code, ok := b.text(mem, ModuleWindow, op, ptr, n)
	if !ok {
		return 0
	}
	return b.timerResult(op, b.timers.SetInterval(ms(interval), func() { b.evalLocal(op, code) }))
}

func (b *Bridge) evalLocal(op, code string) {
	if _, err := b.local.Eval(code); err != nil {
		b.fail(ModuleWindow, op, err)
	}
}

func (b *Bridge) timerResult(op string, h handle.Handle) uint32 {
	if !h.Valid() {
		b.fail(ModuleWindow, op, errors.Closed(errors.PhaseTimer, "timers"))
		return 0
	}
	b.log.Debug("timer set", zap.String("op", op), zap.Uint32("timer", uint32(h)))
	return uint32(h)
}
