// Package engine hosts compute modules on wazero.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine     - Owns a wazero runtime and the host modules registered in it
//	Module     - A compiled guest, not yet instantiated
//	Guest      - A running guest with serialized export calls
//
// # Instantiation Flow
//
//  1. Engine.Register() instantiates each HostModule (api_workers, ...)
//  2. Engine.Compile() validates the guest binary
//  3. Engine.Instantiate() checks every function import against the
//     registered modules and fails with errors.MissingImportsError listing
//     the unresolved ones, grouped by module
//  4. Guest.Call() and the typed callback helpers invoke exports
//
// # Guest Callbacks
//
// Guest implements event.Invoker. The bridge pushes into the guest only
// through three exports, all addressed by a guest-chosen callback handle:
//
//	Export                  Parameters
//	───────────────────────────────────────────────────────────────────
//	wasm_callback           i32 cb
//	wasm_callback_mouse     i32 cb, i32 button, i32 buttons, f64 x, f64 y,
//	                        i32 kind, f64 timestamp
//	wasm_callback_pointer   i32 cb, i32 pointerId, f64 x, f64 y,
//	                        f64 pressure, i32 tiltX, i32 tiltY, i32 twist,
//	                        i32 kind, f64 timestamp
//
// # Thread Safety
//
// Engine is safe for concurrent use. Guest serializes calls with a mutex;
// a host function may call back into the guest that invoked it by passing
// along its context, which bypasses the lock instead of deadlocking.
//
// Most users should use the runtime package for a simpler API.
package engine
