//go:build cgo

package native

/*
#include <stdint.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// callbackCall finds the call a callback belongs to: the one in the
// thread's slot, or else the outstanding call that accepts it. The
// returned release func must be called once the callback is done.
func callbackCall(h C.uintptr_t, what string, accepts func(*call) bool) (*call, func()) {
	if h != 0 {
		if c, ok := cgo.Handle(h).Value().(*call); ok {
			return c, func() {}
		}
	}
	c := outstanding.route(what, accepts)
	if c == nil {
		return nil, nil
	}
	Logger().Debug(what+" from a module thread", zap.String("library", c.unit.lib.path))
	return c, c.routed.Done
}

//export spitsGoPush
func spitsGoPush(h C.uintptr_t, data unsafe.Pointer, size C.longlong, ctx unsafe.Pointer) {
	c, release := callbackCall(h, "push", func(c *call) bool { return c.frame.Sink != nil })
	if c == nil {
		Logger().Error("push not attributed to a call, payload dropped", zap.Int64("bytes", int64(size)))
		return
	}
	defer release()

	var view []byte
	if data != nil && size > 0 {
		view = unsafe.Slice((*byte)(data), int(size))
	}
	c.push(view, spits.ContextOf(uint64(uintptr(ctx))))
}

// spitsGoRun is the runner handed to spits_main. The result stays in C
// memory owned by the call until spits_main returns.
//
//export spitsGoRun
func spitsGoRun(h C.uintptr_t, argc C.int, argv **C.char, jobinfo unsafe.Pointer, jobinfosz C.longlong, data *unsafe.Pointer, size *C.longlong) C.int {
	c, release := callbackCall(h, "runner call", func(c *call) bool { return c.frame.Runner != nil })
	if c == nil {
		Logger().Error("runner call not attributed to spits_main")
		return -1
	}
	defer release()
	if c.frame.Runner == nil {
		c.fail(errors.InvalidInput(errors.PhaseCall, "spits_main called the runner but none was given"))
		return -1
	}

	args, err := c.unit.ViewArgv(spits.RawArgv{
		Count: int32(argc),
		Ptr:   uint64(uintptr(unsafe.Pointer(argv))),
	})
	if err != nil {
		c.fail(err)
		return -1
	}
	var info []byte
	if jobinfo != nil && jobinfosz > 0 {
		info = unsafe.Slice((*byte)(jobinfo), int(jobinfosz))
	}

	status, out, err := c.frame.Runner(c.ctx, args, spits.Own(info))
	if err != nil {
		c.fail(err)
	}

	var (
		ptr unsafe.Pointer
		n   int64
	)
	if len(out) > 0 {
		ptr = C.CBytes(out)
		c.keep(ptr)
		n = int64(len(out))
	}
	if data != nil {
		*data = ptr
	}
	if size != nil {
		*size = C.longlong(n)
	}

	Logger().Debug("runner returned to module",
		zap.Int32("status", int32(status)),
		zap.Int("bytes", len(out)))
	return C.int(status)
}
