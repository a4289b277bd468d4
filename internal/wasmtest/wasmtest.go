// Package wasmtest assembles tiny core wasm guests for tests.
package wasmtest

const (
	i32 = 0x7f
	f64 = 0x7c

	secType     = 0x01
	secImport   = 0x02
	secFunction = 0x03
	secMemory   = 0x05
	secGlobal   = 0x06
	secExport   = 0x07
	secCode     = 0x0a

	kindFunc   = 0x00
	kindMemory = 0x02
	kindGlobal = 0x03

	opLocalGet  = 0x20
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Add    = 0x6a
	opI32Const  = 0x41
	opCall      = 0x10
	opEnd       = 0x0b
)

// Every length below is small enough for one-byte LEB128.

func str(s string) []byte { return append([]byte{byte(len(s))}, s...) }

func vec(items ...[]byte) []byte {
	out := []byte{byte(len(items))}
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, body []byte) []byte {
	return append([]byte{id, byte(len(body))}, body...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func funcType(params []byte, results ...byte) []byte {
	return cat([]byte{0x60}, vec(bytesOf(params)...), vec(bytesOf(results)...))
}

func bytesOf(b []byte) [][]byte {
	out := make([][]byte, len(b))
	for i := range b {
		out[i] = []byte{b[i]}
	}
	return out
}

func export(name string, kind, index byte) []byte {
	return cat(str(name), []byte{kind, index})
}

func importFunc(module, name string, typ byte) []byte {
	return cat(str(module), str(name), []byte{kindFunc, typ})
}

func body(code ...byte) []byte {
	b := cat([]byte{0x00}, code, []byte{opEnd}) // no locals
	return cat([]byte{byte(len(b))}, b)
}

func module(sections ...[]byte) []byte {
	return cat([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, cat(sections...))
}

var oneMemory = section(secMemory, vec([]byte{0x00, 0x01}))

func mutableI32() []byte { return []byte{i32, 0x01, opI32Const, 0x00, opEnd} }

// Memory exports one page of memory as "memory".
var Memory = module(
	oneMemory,
	section(secExport, vec(export("memory", kindMemory, 0))),
)

// Callbacks has no imports and exports:
//
//	memory
//	wasm_callback(cb)                          last = cb
//	wasm_callback_mouse(cb, _, _, _, _, k, _)  last = cb; kind = k
//	main()                                     started = 1
//	last, kind, started                        mutable i32 globals
var Callbacks = module(
	section(secType, vec(
		funcType([]byte{i32}),
		funcType([]byte{i32, i32, i32, f64, f64, i32, f64}),
		funcType(nil),
	)),
	section(secFunction, vec([]byte{0}, []byte{1}, []byte{2})),
	oneMemory,
	section(secGlobal, vec(mutableI32(), mutableI32(), mutableI32())),
	section(secExport, vec(
		export("memory", kindMemory, 0),
		export("wasm_callback", kindFunc, 0),
		export("wasm_callback_mouse", kindFunc, 1),
		export("main", kindFunc, 2),
		export("last", kindGlobal, 0),
		export("kind", kindGlobal, 1),
		export("started", kindGlobal, 2),
	)),
	section(secCode, vec(
		body(opLocalGet, 0, opGlobalSet, 0),
		body(opLocalGet, 0, opGlobalSet, 0, opLocalGet, 5, opGlobalSet, 1),
		body(opI32Const, 1, opGlobalSet, 2),
	)),
)

// Probe imports api_workers.worker_list_len and exports probe() returning
// its result.
var Probe = module(
	section(secType, vec(funcType(nil, i32))),
	section(secImport, vec(importFunc("api_workers", "worker_list_len", 0))),
	section(secFunction, vec([]byte{0})),
	oneMemory,
	section(secExport, vec(
		export("memory", kindMemory, 0),
		export("probe", kindFunc, 1),
	)),
	section(secCode, vec(body(opCall, 0))),
)

// Workers imports worker_spawn, worker_eval and worker_poll from
// api_workers and re-exports them as spawn(ptr, len), eval(worker, ptr,
// len) and poll(job, ptr, cap).
var Workers = module(
	section(secType, vec(
		funcType([]byte{i32, i32}, i32),
		funcType([]byte{i32, i32, i32}, i32),
	)),
	section(secImport, vec(
		importFunc("api_workers", "worker_spawn", 0),
		importFunc("api_workers", "worker_eval", 1),
		importFunc("api_workers", "worker_poll", 1),
	)),
	section(secFunction, vec([]byte{0}, []byte{1}, []byte{1})),
	oneMemory,
	section(secExport, vec(
		export("memory", kindMemory, 0),
		export("spawn", kindFunc, 3),
		export("eval", kindFunc, 4),
		export("poll", kindFunc, 5),
	)),
	section(secCode, vec(
		body(opLocalGet, 0, opLocalGet, 1, opCall, 0),
		body(opLocalGet, 0, opLocalGet, 1, opLocalGet, 2, opCall, 1),
		body(opLocalGet, 0, opLocalGet, 1, opLocalGet, 2, opCall, 2),
	)),
)

// Ticker exports memory, wasm_callback(cb) setting last, and tick()
// incrementing ticks.
var Ticker = module(
	section(secType, vec(funcType([]byte{i32}), funcType(nil))),
	section(secFunction, vec([]byte{0}, []byte{1})),
	oneMemory,
	section(secGlobal, vec(mutableI32(), mutableI32())),
	section(secExport, vec(
		export("memory", kindMemory, 0),
		export("wasm_callback", kindFunc, 0),
		export("tick", kindFunc, 1),
		export("last", kindGlobal, 0),
		export("ticks", kindGlobal, 1),
	)),
	section(secCode, vec(
		body(opLocalGet, 0, opGlobalSet, 0),
		body(opGlobalGet, 1, opI32Const, 1, opI32Add, opGlobalSet, 1),
	)),
)

// Unresolved imports api_workers.worker_teleport and api_gpu.draw, which no
// host provides.
var Unresolved = module(
	section(secType, vec(funcType(nil))),
	section(secImport, vec(
		importFunc("api_workers", "worker_teleport", 0),
		importFunc("api_gpu", "draw", 0),
	)),
)
