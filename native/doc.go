// Package native loads SPITS job binaries built as shared objects.
//
// The binary is opened with dlopen and its spits_* exports are called with
// the C calling convention:
//
//	typedef void (*spits_push)(const void *data, long long size, void *ctx);
//	typedef int (*spits_runner)(int argc, char **argv, void *jobinfo,
//	    long long jobinfosz, void **data, long long *size);
//
// Push and runner pointers handed to the module are C shims. They find the
// Go call they belong to through a thread-local slot that is set for the
// duration of each call, so concurrent units on different threads never see
// each other's pushes.
//
// Buffers and argument vectors are copied into C heap memory that is freed
// when the call returns. The image itself is never unloaded: modules may
// keep pointers into it for the life of the process.
//
// Without cgo, Open returns an unsupported error.
package native
