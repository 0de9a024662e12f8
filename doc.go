// Package spits defines the boundary contract between a host and a SPITS job
// binary.
//
// A job binary is a separately compiled module implementing three cooperating
// roles: a job manager that produces tasks, a worker that turns one task into
// a partial result, and a committer that folds partial results into the final
// result of the job. A binary may instead, or additionally, export a single
// combined entry point (spits_main) that wraps the host's own runner.
//
// # Architecture Overview
//
//	spits/          Boundary types: Raw, RawArgv, Handle, Context, Sink, Library
//	├── jobbinary/  Role adapters driving a Library (JobManager, Worker, Committer, Dispatcher)
//	├── native/     Shared libraries loaded with dlopen (cgo)
//	├── wasm/       WebAssembly job binaries run on wazero
//	├── inproc/     Job binaries written in Go, registered by name
//	├── stream/     SPITZ binary payload streams
//	├── runner/     Local reference runner playing the external scheduler
//	├── config/     YAML job configuration
//	├── errors/     Structured error types
//	└── cmd/spits/  Command line front end
//
// # Boundary Model
//
// Every backend exposes the same three pieces:
//
//	Library  a loaded binary; resolves exported symbols by name
//	Unit     one execution context inside a library, owned by one adapter
//	Arena    per-call marshaling scope for buffers and argument vectors
//
// Buffers cross the boundary as Raw (pointer, length) pairs. The zero Raw,
// a null pointer with length zero, is the only representation of an absent
// buffer; nil and empty host slices both map to it.
//
// Results never come back as return values. The module hands them to the
// host through a push callback that the backend routes to the Sink of the
// current call, together with an opaque Context the host must replay
// unchanged on the next related call.
//
// # Quick Start
//
//	lib, err := native.Open("./libjob.so")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bin, err := jobbinary.Open(lib)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bin.Close(ctx)
//
//	jm, err := bin.NewJobManager(ctx, argv, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer jm.Finalize(ctx)
//
//	cont := spits.Context{}
//	for {
//	    res, err := jm.NextTask(ctx, cont)
//	    if err != nil || res.Absent() {
//	        break
//	    }
//	    cont = res.Context
//	}
package spits
