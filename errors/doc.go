// Package errors provides structured error types for the host bridge.
//
// Errors are categorized by Phase (which component raised it) and Kind
// (error category). The bridge recovers every one of them locally: Go APIs
// return them, and the guest boundary turns them into sentinel return values
// (0, negative lengths, status codes) plus a log line.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSpawn, errors.KindSpawnFailure).
//		Path("api_workers", "worker_spawn").
//		Detail("script %q: %v", ref, cause).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhasePoll, "job", 7)
//	err := errors.CapacityExceeded(errors.PhaseCodec, 12, 4)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
