// Package script evaluates script text with goja.
//
// Two kinds of runtime exist. A Context is the host's own synchronous
// runtime, used for jobs submitted without a worker and for named listener
// functions. A Scope is the global scope of one worker: it exposes self,
// onmessage, postMessage and console, and is driven by exactly one
// goroutine.
//
// Values leave a runtime as text, converted the way String(v) would convert
// them, and exceptions become "Error: <message>".
package script
