// Package inproc runs job binaries written in Go behind the same boundary
// contract as shared libraries and WebAssembly modules.
//
// A Go job binary is an Exports symbol table; nil fields are symbols the
// binary does not export. FromFactory builds one from role objects the way
// the SPITZ C++ wrapper does from a factory class:
//
//	inproc.Register("pi", inproc.FromFactory(piFactory{}))
//
//	lib, _ := inproc.Open("pi")
//	bin, _ := jobbinary.Open(lib)
//
// Buffers and argument vectors still cross as (pointer, length) pairs: the
// pointers are region numbers in the unit, and handles are indices into the
// library's handle table, so host code cannot tell this backend from the
// native one.
package inproc
