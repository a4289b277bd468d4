package timer

import (
	"github.com/wippyai/wasm-hostbridge/handle"
)

// Frames holds animation frame requests until the next frame runs.
type Frames struct {
	pending *handle.Table[func()]
}

// NewFrames creates an empty frame queue.
func NewFrames() *Frames {
	return &Frames{pending: handle.NewTable[func()]()}
}

// Request schedules fn for the next frame.
func (f *Frames) Request(fn func()) handle.Handle {
	return f.pending.Insert(fn)
}

// Cancel drops a request that has not run yet.
func (f *Frames) Cancel(h handle.Handle) bool {
	_, ok := f.pending.Remove(h)
	return ok
}

// Run runs the requests pending when it was called, oldest first.
// Requests made while running wait for the next frame, and a request
// cancelled by an earlier callback is skipped.
func (f *Frames) Run() int {
	n := 0
	for _, h := range f.pending.List(-1) {
		fn, ok := f.pending.Remove(h)
		if !ok {
			continue
		}
		fn()
		n++
	}
	return n
}

// Len returns the number of pending requests.
func (f *Frames) Len() int {
	return f.pending.Len()
}

// Close drops every pending request.
func (f *Frames) Close() {
	f.pending.Close()
}
