package hostapi

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-hostbridge/engine"
	"github.com/wippyai/wasm-hostbridge/event"
)

// Modules returns the bridge's host modules. Strings are (ptr, len) pairs
// in guest memory; handles and booleans are i32.
func (b *Bridge) Modules() []*engine.HostModule {
	return []*engine.HostModule{
		b.workersModule(),
		b.eventsModule(),
		b.windowModule(),
		b.consoleModule(),
		b.performanceModule(),
	}
}

// Register instantiates every host module in e.
func (b *Bridge) Register(ctx context.Context, e *engine.Engine) error {
	for _, m := range b.Modules() {
		if err := e.Register(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) workersModule() *engine.HostModule {
	return engine.NewHostModule(ModuleWorkers).
		Func("worker_spawn", func(ctx context.Context, m api.Module, ptr, n uint32) uint32 {
			return b.WorkerSpawn(ctx, memory(m), ptr, n)
		}).
		Func("worker_is_active", func(h uint32) uint32 {
			return b.WorkerIsActive(h)
		}).
		Func("worker_stop", func(h uint32) {
			b.WorkerStop(h)
		}).
		Func("worker_stop_all", func() {
			b.WorkerStopAll()
		}).
		Func("worker_list_len", func() uint32 {
			return b.WorkerListLen()
		}).
		Func("worker_list", func(ctx context.Context, m api.Module, ptr, capacity uint32) uint32 {
			return b.WorkerList(memory(m), ptr, capacity)
		}).
		Func("worker_send_message", func(ctx context.Context, m api.Module, h, ptr, n uint32) {
			b.WorkerSendMessage(memory(m), h, ptr, n)
		}).
		Func("worker_eval", func(ctx context.Context, m api.Module, h, ptr, n uint32) uint32 {
			return b.WorkerEval(memory(m), h, ptr, n)
		}).
		Func("worker_poll", func(ctx context.Context, m api.Module, job, ptr, capacity uint32) int32 {
			return b.WorkerPoll(memory(m), job, ptr, capacity)
		}).
		Func("worker_poll_status", func(job uint32) int32 {
			return b.WorkerPollStatus(job)
		}).
		Func("worker_poll_len", func(job uint32) int32 {
			return b.WorkerPollLen(job)
		}).
		Func("worker_cancel_eval", func(job uint32) {
			b.WorkerCancelEval(job)
		})
}

func (b *Bridge) eventsModule() *engine.HostModule {
	listener := func(v event.Variant) func(context.Context, api.Module, uint32, uint32, uint32, uint32, uint32) {
		return func(ctx context.Context, m api.Module, selPtr, selLen, namePtr, nameLen, cb uint32) {
			b.AddListener(memory(m), v, selPtr, selLen, namePtr, nameLen, cb)
		}
	}
	return engine.NewHostModule(ModuleEvents).
		Func("event_addListener", listener(event.VariantGeneric)).
		Func("event_addListenerMouse", listener(event.VariantMouse)).
		Func("event_addListenerPointer", listener(event.VariantPointer)).
		Func("event_removeListener", func(ctx context.Context, m api.Module, selPtr, selLen, namePtr, nameLen, cb uint32) {
			b.RemoveListener(memory(m), selPtr, selLen, namePtr, nameLen, cb)
		}).
		Func("event_addListenerJs", func(ctx context.Context, m api.Module, selPtr, selLen, namePtr, nameLen, fnPtr, fnLen uint32) {
			b.AddListenerJs(memory(m), selPtr, selLen, namePtr, nameLen, fnPtr, fnLen)
		}).
		Func("event_removeListenerJs", func(ctx context.Context, m api.Module, selPtr, selLen, namePtr, nameLen, fnPtr, fnLen uint32) {
			b.RemoveListenerJs(memory(m), selPtr, selLen, namePtr, nameLen, fnPtr, fnLen)
		})
}

func (b *Bridge) windowModule() *engine.HostModule {
	return engine.NewHostModule(ModuleWindow).
		Func("window_set_timeout", func(cb, delay uint32) uint32 {
			return b.SetTimeout(cb, delay)
		}).
		Func("window_set_interval", func(cb, interval uint32) uint32 {
			return b.SetInterval(cb, interval)
		}).
		Func("window_clear_timeout", func(h uint32) {
			b.ClearTimeout(h)
		}).
		Func("window_request_animation_frame", func(cb uint32) uint32 {
			return b.RequestAnimationFrame(cb)
		}).
		Func("window_cancel_animation_frame", func(h uint32) {
			b.CancelAnimationFrame(h)
		}).
		Func("window_eval", func(ctx context.Context, m api.Module, ptr, n uint32) {
			b.Eval(memory(m), ptr, n)
		}).
		Func("window_eval_timeout", func(ctx context.Context, m api.Module, ptr, n, delay uint32) uint32 {
			return b.EvalTimeout(memory(m), ptr, n, delay)
		}).
		Func("window_eval_interval", func(ctx context.Context, m api.Module, ptr, n, interval uint32) uint32 {
			return b.EvalInterval(memory(m), ptr, n, interval)
		})
}

func (b *Bridge) consoleModule() *engine.HostModule {
	mod := engine.NewHostModule(ModuleConsole)
	for _, c := range consoleLevels {
		op, level := c.name, c.level
		mod.Func(op, func(ctx context.Context, m api.Module, ptr, n uint32) {
			b.Console(memory(m), op, level, ptr, n)
		})
	}
	return mod
}

func (b *Bridge) performanceModule() *engine.HostModule {
	return engine.NewHostModule(ModulePerformance).
		Func("now", func() float64 {
			return b.Now()
		}).
		Func("timeOrigin", func() float64 {
			return b.TimeOrigin()
		}).
		Func("eventCounts", func(ctx context.Context, m api.Module, ptr, n uint32) uint32 {
			return b.EventCounts(memory(m), ptr, n)
		}).
		Func("activeTimers", func() uint32 {
			return b.ActiveTimers()
		})
}
