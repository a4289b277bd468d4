package hostapi

import (
	hostbridge "github.com/wippyai/wasm-hostbridge"
)

// Now returns milliseconds since the bridge started, with sub-millisecond
// precision.
func (b *Bridge) Now() float64 {
	b.call(ModulePerformance, "now")
	return float64(b.clock.Now().Sub(b.origin).Nanoseconds()) / 1e6
}

// TimeOrigin returns the bridge start time in Unix milliseconds.
func (b *Bridge) TimeOrigin() float64 {
	b.call(ModulePerformance, "timeOrigin")
	return float64(b.origin.UnixNano()) / 1e6
}

// EventCounts returns how many events named by (ptr, n) were dispatched.
func (b *Bridge) EventCounts(mem hostbridge.Memory, ptr, n uint32) uint32 {
	const op = "eventCounts"
	b.call(ModulePerformance, op)
	name, ok := b.text(mem, ModulePerformance, op, ptr, n)
	if !ok {
		return 0
	}
	return uint32(b.events.Counts(name))
}

// ActiveTimers returns how many timers and frame requests are pending.
func (b *Bridge) ActiveTimers() uint32 {
	b.call(ModulePerformance, "activeTimers")
	return uint32(b.timers.Len() + b.frames.Len())
}
