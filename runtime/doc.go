// Package runtime provides the high-level API: one guest, its host modules
// and the loop that feeds it asynchronous results.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, config.Default(), runtime.WithLogger(log))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	inst, err := rt.LoadWASM(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := inst.Main(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Deliver worker results, timers, frames and events until cancelled
//	if err := rt.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Loading Guests
//
// LoadWASM takes a core module. Imports are checked before instantiation;
// a guest importing a function no host module provides fails with
// *errors.MissingImportsError naming every gap. The start section runs
// during instantiation. main and _start are not run automatically; call
// Instance.Main.
//
// # Driving the Loop
//
// Run owns the loop goroutine, a frame ticker at Runtime.FrameRate and, if
// configured, the /metrics listener. Embedders with their own main loop
// call Tick instead, once per frame:
//
//	for running {
//	    if err := rt.Tick(ctx); err != nil {
//	        log.Println(err)
//	    }
//	}
//
// # Events
//
// DispatchEvent queues a host event. It is delivered on the loop to every
// listener on the target or one of its ancestors:
//
//	rt.DispatchEvent(ctx, event.Event{Target: "#canvas", Name: "mousedown", X: 10, Y: 20})
//
// # Thread Safety
//
// Runtime methods are safe for concurrent use. Guest code runs one call at
// a time; Instance.Call blocks while a callback is running.
//
// # Resource Management
//
// Close stops workers, cancels timers and frames and releases the guest.
// Results of jobs still pending at Close are discarded.
package runtime
