// Package wasm runs SPITS job binaries compiled to WebAssembly on wazero.
//
// A guest exports the usual spits_* symbols with wasm32 types: addresses
// are i32, buffer lengths i64 and statuses i32. Function pointers do not
// exist in that world, so a guest imports the push callback and the host
// runner instead of receiving them as arguments:
//
//	(import "env" "spits_push" (func (param i32 i64 i32)))
//	(import "env" "spits_run"  (func (param i32 i32 i32 i64 i32 i32) (result i32)))
//
// The exports per symbol shape are:
//
//	new-info  (argc i32, argv i32, info i32, infolen i64) -> handle i32
//	new       (argc i32, argv i32) -> handle i32
//	pull      (handle i32, ctx i32) -> status i32
//	run       (handle i32, task i32, tasklen i64, ctx i32) -> status i32
//	commit    (handle i32, result i32, resultlen i64) -> status i32
//	finalize  (handle i32)
//	main      (argc i32, argv i32) -> status i32
//
// Load rejects a guest whose well-known exports have other signatures.
//
// # Memory
//
// The guest must export its memory and an allocator. cabi_realloc is used
// when present, otherwise malloc or alloc; cabi_free or free release
// buffers after the call. Every Attach instantiates a fresh guest, so each
// adapter owns its linear memory and its globals.
//
// Calls honour context cancellation: the guest is closed when the context
// passed to a call is done.
//
// Guests built with a WASI toolchain get wasi_snapshot_preview1; reactors
// have their _initialize export run on instantiation.
package wasm
