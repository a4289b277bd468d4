// Package handle issues and tracks the opaque integer handles the guest uses
// to address host-side records.
//
// Every namespace (workers, jobs, timers, animation frames) owns a Table
// with its own Allocator. Handles start at 1, increase monotonically and are
// never reused, so a stale handle from the guest can only miss:
//
//	workers := handle.NewTable[*Worker]()
//	h := workers.Insert(w)      // 1, 2, 3, ...
//	w, ok := workers.Get(h)
//	workers.Remove(h)           // h is gone for good
//
// # Observers
//
// Components that must react to another component's records (abandoning a
// worker's jobs, updating gauges) subscribe to its table:
//
//	workers.Subscribe(handle.ObserverFunc[*Worker](func(e handle.Event[*Worker]) {
//	    if e.Type == handle.EventDropped {
//	        jobs.Abandon(e.Handle)
//	    }
//	}))
package handle
