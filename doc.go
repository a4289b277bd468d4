// Package hostbridge lets a synchronous WebAssembly guest drive asynchronous
// host capabilities: script workers, timers, animation frames and DOM-style
// events.
//
// The guest cannot block, spawn threads or receive arbitrary callbacks. It
// talks to the host through imported functions that take and return fixed
// width integers, with strings passed as (offset, length) pairs into its
// linear memory. Long running work is handed to workers and collected later
// by polling; host events reach the guest only through exported callback
// functions addressed by an opaque handle.
//
// # Architecture Overview
//
//	hostbridge/      Root package with the Memory interface
//	├── runtime/     High-level API: load a guest, drive the event loop
//	├── engine/      wazero integration, guest loading, import checks
//	├── hostapi/     Host modules exposed to the guest (api_workers, ...)
//	├── worker/      Worker pool: spawn, stop, list, script sources
//	├── job/         Job dispatcher and at-most-once result store
//	├── event/       Callback registry and event-source document
//	├── timer/       Timeouts, intervals and animation frames
//	├── script/      goja evaluation for workers and the local context
//	├── protocol/    Host/worker messages and their CBOR encoding
//	├── loop/        Single-goroutine host event loop
//	├── codec/       UTF-8 transfer through guest memory
//	├── handle/      Handle allocation and typed handle tables
//	├── metrics/     Prometheus collectors
//	├── config/      TOML and environment configuration
//	├── errors/      Structured error types
//	└── cmd/run/     CLI runner with an interactive dashboard
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, config.Default())
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
//	_ = rt.Run(ctx) // delivers worker results, timers, frames and events
//
// # Guest Contract
//
// Handles are non-zero 32-bit integers; 0 means failure or absence. Worker,
// job, timer and frame handles live in separate namespaces and are never
// reused. Callback handles are chosen by the guest and passed back verbatim
// to its exported wasm_callback, wasm_callback_mouse and
// wasm_callback_pointer functions.
//
// worker_poll returns the number of bytes written, 0 while the job is
// pending, -1 for an unknown (or abandoned) job, and the negated required
// size (at least 2) when the guest's buffer is too small. A short buffer
// leaves the result in place so the guest can retry.
package hostbridge
