package hostapi

import (
	"go.uber.org/zap"

	hostbridge "github.com/wippyai/wasm-hostbridge"
	"github.com/wippyai/wasm-hostbridge/event"
)

// target decodes a (selector, event name) pair.
func (b *Bridge) target(mem hostbridge.Memory, op string, selPtr, selLen, namePtr, nameLen uint32) (sel, name string, ok bool) {
	if sel, ok = b.text(mem, ModuleEvents, op, selPtr, selLen); !ok {
		return "", "", false
	}
	if name, ok = b.text(mem, ModuleEvents, op, namePtr, nameLen); !ok {
		return "", "", false
	}
	return sel, name, true
}

func addListenerOp(v event.Variant) string {
	switch v {
	case event.VariantMouse:
		return "event_addListenerMouse"
	case event.VariantPointer:
		return "event_addListenerPointer"
	case event.VariantGeneric:
	}
	return "event_addListener"
}

// AddListener binds callback cb to the event name on the element matched
// by selector. The variant picks which guest export the event calls.
func (b *Bridge) AddListener(mem hostbridge.Memory, v event.Variant, selPtr, selLen, namePtr, nameLen, cb uint32) {
	op := addListenerOp(v)
	b.call(ModuleEvents, op)

	sel, name, ok := b.target(mem, op, selPtr, selLen, namePtr, nameLen)
	if !ok {
		return
	}
	if err := b.events.Register(sel, name, cb, v); err != nil {
		b.fail(ModuleEvents, op, err, zap.Uint32("callback", cb))
	}
}

// RemoveListener removes callback cb from (selector, name).
func (b *Bridge) RemoveListener(mem hostbridge.Memory, selPtr, selLen, namePtr, nameLen, cb uint32) {
	const op = "event_removeListener"
	b.call(ModuleEvents, op)

	sel, name, ok := b.target(mem, op, selPtr, selLen, namePtr, nameLen)
	if !ok {
		return
	}
	if err := b.events.Unregister(sel, name, cb); err != nil {
		b.fail(ModuleEvents, op, err, zap.Uint32("callback", cb))
	}
}

// AddListenerJs binds the named function of the local script context.
func (b *Bridge) AddListenerJs(mem hostbridge.Memory, selPtr, selLen, namePtr, nameLen, fnPtr, fnLen uint32) {
	const op = "event_addListenerJs"
	b.call(ModuleEvents, op)

	sel, name, ok := b.target(mem, op, selPtr, selLen, namePtr, nameLen)
	if !ok {
		return
	}
	fn, ok := b.text(mem, ModuleEvents, op, fnPtr, fnLen)
	if !ok {
		return
	}
	if err := b.events.RegisterFunc(sel, name, fn); err != nil {
		b.fail(ModuleEvents, op, err, zap.String("function", fn))
	}
}

// RemoveListenerJs removes a binding made by AddListenerJs.
func (b *Bridge) RemoveListenerJs(mem hostbridge.Memory, selPtr, selLen, namePtr, nameLen, fnPtr, fnLen uint32) {
	const op = "event_removeListenerJs"
	b.call(ModuleEvents, op)

	sel, name, ok := b.target(mem, op, selPtr, selLen, namePtr, nameLen)
	if !ok {
		return
	}
	fn, ok := b.text(mem, ModuleEvents, op, fnPtr, fnLen)
	if !ok {
		return
	}
	if err := b.events.UnregisterFunc(sel, name, fn); err != nil {
		b.fail(ModuleEvents, op, err, zap.String("function", fn))
	}
}
