package handle

import "sync/atomic"

// Allocator issues monotonically increasing handles starting at 1.
// A handle is never issued twice unless the 32-bit space wraps, in which
// case 0 is skipped.
type Allocator struct {
	next atomic.Uint32
}

// Next returns a fresh non-zero handle.
func (a *Allocator) Next() Handle {
	for {
		h := Handle(a.next.Add(1))
		if h != Invalid {
			return h
		}
	}
}

// Last returns the most recently issued handle, or Invalid if none.
func (a *Allocator) Last() Handle {
	return Handle(a.next.Load())
}
