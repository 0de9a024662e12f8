package jobbinary

import (
	"context"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// Result is the outcome of a call that may push a buffer.
type Result struct {
	// Data is the pushed buffer, copied into host memory. nil when absent.
	Data []byte
	// Context is the continuation pushed with Data. Unset when absent.
	Context spits.Context
	// Status is the module's return value, unchanged.
	Status spits.Status
	// Pushed reports whether the module invoked push at all. A push of an
	// empty buffer sets Pushed with nil Data.
	Pushed bool
}

// Absent reports whether the call produced no payload.
func (r Result) Absent() bool { return len(r.Data) == 0 }

// capture is the per-call sink shared by every role. It copies the first
// pushed buffer out of boundary memory before returning to the module.
type capture struct {
	data   []byte
	ctx    spits.Context
	pushes int
}

func (c *capture) Push(view []byte, ctx spits.Context) {
	c.pushes++
	if c.pushes > 1 {
		return
	}
	c.data = spits.Own(view)
	// a push always sets the continuation, null pointer included
	c.ctx = spits.ContextOf(ctx.Addr())
}

func (c *capture) result(status int64) Result {
	return Result{
		Data:    c.data,
		Context: c.ctx,
		Status:  spits.Status(int32(status)),
		Pushed:  c.pushes > 0,
	}
}

type lifecycle int32

const (
	stateConstructed lifecycle = iota
	stateFinalized
)

func (s lifecycle) String() string {
	if s == stateFinalized {
		return "finalized"
	}
	return "constructed"
}

// instance is the state shared by the three role adapters.
type instance struct {
	unit     spits.Unit
	finalize spits.Symbol
	role     string
	path     string
	handle   spits.Handle
	state    lifecycle
	busy     atomic.Bool
}

// enter marks the instance busy. state is only touched between enter and
// leave, so the CAS orders every access to it.
func (in *instance) enter(op string) error {
	if !in.busy.CompareAndSwap(false, true) {
		return errors.Busy(in.role)
	}
	if in.state == stateFinalized {
		in.busy.Store(false)
		return errors.State(in.role, op, in.state.String())
	}
	return nil
}

func (in *instance) leave() {
	in.busy.Store(false)
}

// pull invokes a symbol that answers through push. frame.Handle and
// frame.Sink are filled here.
func (in *instance) pull(ctx context.Context, sym spits.Symbol, frame *spits.Frame) (Result, error) {
	c := &capture{}
	frame.Handle = in.handle
	frame.Sink = c

	rc, err := in.unit.Invoke(ctx, sym, frame)
	if err != nil {
		return Result{}, err
	}

	res := c.result(rc)
	if c.pushes > 1 {
		Logger().Warn("module pushed more than once",
			zap.String("path", in.path),
			zap.String("symbol", sym.Name()),
			zap.Int("pushes", c.pushes))
		return res, errors.MultiplePush(sym.Name(), c.pushes)
	}
	return res, nil
}

// close runs the optional finalize hook once and releases the unit.
func (in *instance) close(ctx context.Context) error {
	if err := in.enter("finalize"); err != nil {
		return err
	}
	defer in.leave()

	in.state = stateFinalized

	var err error
	if in.finalize != nil {
		_, err = in.unit.Invoke(ctx, in.finalize, &spits.Frame{Handle: in.handle})
		Logger().Debug("instance finalized",
			zap.String("role", in.role),
			zap.String("symbol", in.finalize.Name()))
	}
	return multierr.Append(err, in.unit.Close(ctx))
}
