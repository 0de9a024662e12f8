//go:build cgo

package native

/*
#include <stdint.h>
#include <stdlib.h>
#include "spits_native.h"
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"runtime/cgo"
	"strings"
	"sync"
	"unsafe"

	"go.uber.org/multierr"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

type unit struct {
	lib *Library
}

func (u *unit) NewArena() spits.Arena {
	return &arena{}
}

// View aliases module memory. The length is trusted; there is no way to
// check it against the allocation.
func (u *unit) View(r spits.Raw) ([]byte, error) {
	if r.Absent() {
		return nil, nil
	}
	return unsafe.Slice((*byte)(C.spits_ptr(C.uintptr_t(r.Ptr))), r.Len), nil
}

func (u *unit) ViewArgv(a spits.RawArgv) ([]string, error) {
	if a.Count == 0 {
		return nil, nil
	}
	if a.Count < 0 {
		return nil, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("negative argument count %d", a.Count))
	}
	if a.Ptr == 0 {
		return nil, errors.InvalidInput(errors.PhaseMarshal, "null argument vector")
	}

	table := unsafe.Slice((**C.char)(C.spits_ptr(C.uintptr_t(a.Ptr))), a.Count)
	args := make([]string, len(table))
	for i, p := range table {
		if p == nil {
			return nil, errors.InvalidInput(errors.PhaseMarshal, "null argument pointer")
		}
		args[i] = C.GoString(p)
	}
	return args, nil
}

// Invoke calls the symbol through the trampoline for its shape. The OS
// thread stays locked so that the thread-local call slot the shims read is
// the one the trampoline set.
func (u *unit) Invoke(ctx context.Context, sym spits.Symbol, f *spits.Frame) (int64, error) {
	s, ok := sym.(*symbol)
	if !ok || s == nil {
		return 0, errors.InvalidInput(errors.PhaseCall, fmt.Sprintf("symbol %s does not belong to %s", sym.Name(), u.lib.path))
	}
	// native code cannot be interrupted once entered
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c := &call{ctx: ctx, frame: f, unit: u, arena: &arena{}}
	defer c.arena.Release()

	h := cgo.NewHandle(c)
	defer h.Delete()
	handle := C.uintptr_t(h)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	switch s.shape {
	case spits.ShapePull, spits.ShapeRun, spits.ShapeCommit, spits.ShapeMain:
		outstanding.add(c)
	}

	var (
		user   = C.uintptr_t(f.Handle.Addr())
		cont   = C.uintptr_t(f.Context.Addr())
		argc   = C.int(f.Argv.Count)
		argv   = C.uintptr_t(f.Argv.Ptr)
		buf    = C.uintptr_t(f.Buf.Ptr)
		bufLen = C.longlong(f.Buf.Len)
		rc     int64
	)
	switch s.shape {
	case spits.ShapeNewInfo:
		rc = int64(C.spits_call_new_info(s.addr, argc, argv, buf, bufLen))
	case spits.ShapeNew:
		rc = int64(C.spits_call_new(s.addr, argc, argv))
	case spits.ShapePull:
		rc = int64(C.spits_call_pull(s.addr, handle, user, cont))
	case spits.ShapeRun:
		rc = int64(C.spits_call_run(s.addr, handle, user, buf, bufLen, cont))
	case spits.ShapeCommit:
		rc = int64(C.spits_call_commit(s.addr, handle, user, buf, bufLen))
	case spits.ShapeFinalize:
		C.spits_call_finalize(s.addr, user)
	case spits.ShapeMain:
		rc = int64(C.spits_call_main(s.addr, handle, argc, argv))
	default:
		return 0, errors.Unsupported(errors.PhaseCall, fmt.Sprintf("%s has shape %s", s.name, s.shape))
	}
	outstanding.remove(c)
	return rc, c.error()
}

func (u *unit) Close(context.Context) error { return nil }

// arena holds C heap blocks made for one call.
type arena struct {
	blocks []unsafe.Pointer
}

func (a *arena) Bytes(b []byte) (spits.Raw, error) {
	if len(b) == 0 {
		return spits.Raw{}, nil
	}
	p := C.CBytes(b)
	a.blocks = append(a.blocks, p)
	return spits.Raw{Ptr: uint64(uintptr(p)), Len: int64(len(b))}, nil
}

func (a *arena) Argv(args []string) (spits.RawArgv, error) {
	if len(args) == 0 {
		return spits.RawArgv{}, nil
	}
	for i, arg := range args {
		if strings.IndexByte(arg, 0) >= 0 {
			return spits.RawArgv{}, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("argument %d contains NUL", i))
		}
	}

	// NULL-terminated like a real argv
	p := C.calloc(C.size_t(len(args)+1), C.size_t(unsafe.Sizeof(uintptr(0))))
	if p == nil {
		return spits.RawArgv{}, errors.AllocationFailed(errors.PhaseMarshal, (len(args)+1)*int(unsafe.Sizeof(uintptr(0))))
	}
	a.blocks = append(a.blocks, p)

	table := unsafe.Slice((**C.char)(p), len(args))
	for i, arg := range args {
		cstr := C.CString(arg)
		a.blocks = append(a.blocks, unsafe.Pointer(cstr))
		table[i] = cstr
	}
	return spits.RawArgv{Count: int32(len(args)), Ptr: uint64(uintptr(p))}, nil
}

// Release frees in reverse allocation order.
func (a *arena) Release() {
	for i := len(a.blocks) - 1; i >= 0; i-- {
		C.free(a.blocks[i])
	}
	a.blocks = nil
}

// call is the state of one native invocation, reachable from the exported
// callbacks through its cgo handle.
type call struct {
	ctx   context.Context
	frame *spits.Frame
	unit  *unit

	// routed counts callbacks delivered from module threads.
	routed sync.WaitGroup

	// mu guards arena, err and the sink. Module threads may call back
	// concurrently with the calling thread.
	mu    sync.Mutex
	arena *arena
	err   error
}

func (c *call) fail(err error) {
	c.mu.Lock()
	c.err = multierr.Append(c.err, err)
	c.mu.Unlock()
}

func (c *call) error() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *call) push(view []byte, ctx spits.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame.Sink == nil {
		c.err = multierr.Append(c.err, errors.InvalidInput(errors.PhaseCall, "push during a call that takes no result"))
		return
	}
	c.frame.Sink.Push(view, ctx)
}

// keep adds a C block to the call's arena.
func (c *call) keep(p unsafe.Pointer) {
	c.mu.Lock()
	c.arena.blocks = append(c.arena.blocks, p)
	c.mu.Unlock()
}

// registry tracks the native calls in flight in this process.
type registry struct {
	mu    sync.Mutex
	calls map[*call]struct{}
}

var outstanding = &registry{calls: make(map[*call]struct{})}

func (r *registry) add(c *call) {
	r.mu.Lock()
	r.calls[c] = struct{}{}
	r.mu.Unlock()
}

// remove returns once every callback routed to c has been delivered.
func (r *registry) remove(c *call) {
	r.mu.Lock()
	delete(r.calls, c)
	r.mu.Unlock()
	c.routed.Wait()
}

// route attributes a callback made on a thread without a call slot. It
// goes to the one outstanding call that accepts it. With several
// candidates the callback cannot be attributed and every candidate fails.
// A routed call must be released with c.routed.Done.
func (r *registry) route(what string, accepts func(*call) bool) *call {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*call
	for c := range r.calls {
		if accepts(c) {
			candidates = append(candidates, c)
		}
	}
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		c := candidates[0]
		c.routed.Add(1)
		return c
	}

	err := errors.InvalidInput(errors.PhaseCall,
		fmt.Sprintf("%s from a module thread cannot be attributed: %d calls outstanding", what, len(candidates)))
	for _, c := range candidates {
		c.fail(err)
	}
	return nil
}
