package spits

import (
	"context"
	"fmt"
)

// Symbols exported by job binaries.
const (
	SymJobManagerNew      = "spits_job_manager_new"
	SymJobManagerNextTask = "spits_job_manager_next_task"
	SymJobManagerFinalize = "spits_job_manager_finalize"

	SymWorkerNew      = "spits_worker_new"
	SymWorkerRun      = "spits_worker_run"
	SymWorkerFinalize = "spits_worker_finalize"

	SymCommitterNew       = "spits_committer_new"
	SymCommitterCommitPit = "spits_committer_commit_pit"
	SymCommitterCommitJob = "spits_committer_commit_job"
	SymCommitterFinalize  = "spits_committer_finalize"

	SymMain = "spits_main"
)

// Shape is the calling convention of an exported symbol.
type Shape uint8

const (
	ShapeUnknown Shape = iota
	// ShapeNewInfo: (argc, argv, info_ptr, info_len) -> handle
	ShapeNewInfo
	// ShapeNew: (argc, argv) -> handle
	ShapeNew
	// ShapePull: (handle, push, ctx) -> status
	ShapePull
	// ShapeRun: (handle, buf_ptr, buf_len, push, ctx) -> status
	ShapeRun
	// ShapeCommit: (handle, buf_ptr, buf_len) -> status
	ShapeCommit
	// ShapeFinalize: (handle) -> void
	ShapeFinalize
	// ShapeMain: (argc, argv, runner) -> status
	ShapeMain
)

var shapeNames = [...]string{
	ShapeUnknown:  "unknown",
	ShapeNewInfo:  "new-info",
	ShapeNew:      "new",
	ShapePull:     "pull",
	ShapeRun:      "run",
	ShapeCommit:   "commit",
	ShapeFinalize: "finalize",
	ShapeMain:     "main",
}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

var symbolShapes = map[string]Shape{
	SymJobManagerNew:      ShapeNewInfo,
	SymJobManagerNextTask: ShapePull,
	SymJobManagerFinalize: ShapeFinalize,
	SymWorkerNew:          ShapeNew,
	SymWorkerRun:          ShapeRun,
	SymWorkerFinalize:     ShapeFinalize,
	SymCommitterNew:       ShapeNewInfo,
	SymCommitterCommitPit: ShapeCommit,
	SymCommitterCommitJob: ShapePull,
	SymCommitterFinalize:  ShapeFinalize,
	SymMain:               ShapeMain,
}

// ShapeOf returns the calling convention of a well-known symbol.
func ShapeOf(name string) (Shape, bool) {
	s, ok := symbolShapes[name]
	return s, ok
}

// Symbols returns every well-known symbol name.
func Symbols() []string {
	return []string{
		SymJobManagerNew, SymJobManagerNextTask, SymJobManagerFinalize,
		SymWorkerNew, SymWorkerRun, SymWorkerFinalize,
		SymCommitterNew, SymCommitterCommitPit, SymCommitterCommitJob, SymCommitterFinalize,
		SymMain,
	}
}

// Status is a module-defined outcome code. The binding never interprets it.
type Status int32

// Handle is the per-instance user data returned by a *_new symbol.
// The host stores and replays it; it never dereferences it.
type Handle struct {
	addr uint64
}

// HandleOf wraps a boundary address. Intended for backends.
func HandleOf(addr uint64) Handle { return Handle{addr: addr} }

// Addr returns the boundary address. Intended for backends.
func (h Handle) Addr() uint64 { return h.addr }

// IsNil reports whether the module returned a null handle.
func (h Handle) IsNil() bool { return h.addr == 0 }

func (h Handle) String() string { return fmt.Sprintf("handle(%#x)", h.addr) }

// Context is the opaque continuation value a module hands back through a
// push callback. The zero Context is unset.
type Context struct {
	addr uint64
	set  bool
}

// ContextOf wraps a boundary address as a set context. Intended for backends.
func ContextOf(addr uint64) Context { return Context{addr: addr, set: true} }

// IsSet reports whether the context was produced by a push.
func (c Context) IsSet() bool { return c.set }

// Addr returns the boundary address, zero when unset. Intended for backends.
func (c Context) Addr() uint64 { return c.addr }

func (c Context) String() string {
	if !c.set {
		return "context(unset)"
	}
	return fmt.Sprintf("context(%#x)", c.addr)
}

// Raw is a buffer on the boundary side: a pointer and the exact number of
// bytes behind it. The zero Raw is the canonical absent buffer.
type Raw struct {
	Ptr uint64
	Len int64
}

// Absent reports whether r carries no payload. A null pointer or a
// non-positive length both mean absent.
func (r Raw) Absent() bool { return r.Ptr == 0 || r.Len <= 0 }

// RawArgv is an argument vector on the boundary side: a count and a pointer
// to an array of pointers to NUL-terminated strings.
type RawArgv struct {
	Count int32
	Ptr   uint64
}

// Own copies a borrowed boundary view into host memory. Empty views become
// nil so that absent buffers compare equal regardless of their origin.
func Own(view []byte) []byte {
	if len(view) == 0 {
		return nil
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out
}

// Sink receives a buffer pushed by a module during a call. view is borrowed
// and only valid until Push returns.
type Sink interface {
	Push(view []byte, ctx Context)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(view []byte, ctx Context)

func (f SinkFunc) Push(view []byte, ctx Context) { f(view, ctx) }

// Runner is the host side of spits_main: the module calls it synchronously
// with its argument vector and optional job info and it returns a status and
// an optional result buffer.
type Runner func(ctx context.Context, argv []string, jobinfo []byte) (Status, []byte, error)

// Frame carries the arguments of one symbol invocation. Backends read the
// fields that the symbol's Shape uses and ignore the rest.
type Frame struct {
	Sink    Sink
	Runner  Runner
	Argv    RawArgv
	Buf     Raw
	Handle  Handle
	Context Context
}

// Symbol is an export resolved from a Library.
type Symbol interface {
	Name() string
	Shape() Shape
}

// Library is a loaded job binary. It is safe to share between adapters.
type Library interface {
	// Path is the resolved location the binary was loaded from.
	Path() string
	// Lookup resolves an export. ok is false when the binary does not
	// export name; that is not an error.
	Lookup(name string) (sym Symbol, ok bool)
	// Attach creates an execution unit owned by a single adapter.
	Attach(ctx context.Context) (Unit, error)
	Close(ctx context.Context) error
}

// Unit is one execution context inside a Library. It is not safe for
// concurrent use.
type Unit interface {
	// NewArena opens a marshaling scope for one call.
	NewArena() Arena
	// View returns a borrowed view of a boundary buffer.
	View(r Raw) ([]byte, error)
	// ViewArgv decodes a boundary argument vector.
	ViewArgv(a RawArgv) ([]string, error)
	// Invoke calls sym. For *_new shapes the result is the handle address,
	// for finalize it is zero, otherwise it is the module status.
	Invoke(ctx context.Context, sym Symbol, f *Frame) (int64, error)
	Close(ctx context.Context) error
}

// Arena owns boundary copies made for one call. Release frees them; it must
// be called after the call returns and never before.
type Arena interface {
	// Bytes is the to-boundary direction of the byte marshaler.
	Bytes(b []byte) (Raw, error)
	// Argv encodes an argument vector.
	Argv(args []string) (RawArgv, error)
	Release()
}
