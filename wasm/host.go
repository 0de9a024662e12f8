package wasm

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// call is the state of one guest invocation, visible to the host
// functions the guest calls back into.
type call struct {
	frame *spits.Frame
	unit  *unit
	arena *arena
	err   error
}

func (c *call) fail(err error) {
	c.err = multierr.Append(c.err, err)
}

type callKey struct{}

func withCall(ctx context.Context, c *call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

func activeCall(ctx context.Context) *call {
	c, _ := ctx.Value(callKey{}).(*call)
	return c
}

func instantiateHost(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostPush),
			[]api.ValueType{i32, i64, i32}, nil).
		Export(HostPush).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostRun),
			[]api.ValueType{i32, i32, i32, i64, i32, i32}, []api.ValueType{i32}).
		Export(HostRun).
		Instantiate(ctx)
	return err
}

// hostPush routes a guest push to the sink of the active call. The view is
// borrowed from guest memory; the sink copies it.
func hostPush(ctx context.Context, _ api.Module, stack []uint64) {
	c := activeCall(ctx)
	if c == nil {
		Logger().Warn("push outside of a call")
		return
	}
	if c.frame.Sink == nil {
		c.fail(errors.InvalidInput(errors.PhaseCall, "push during a call that takes no result"))
		return
	}

	raw := spits.Raw{
		Ptr: uint64(api.DecodeU32(stack[0])),
		Len: int64(stack[1]),
	}
	view, err := c.unit.View(raw)
	if err != nil {
		c.fail(err)
		return
	}
	c.frame.Sink.Push(view, spits.ContextOf(uint64(api.DecodeU32(stack[2]))))
}

// hostRun calls the host runner from inside spits_main. The runner's
// result is copied into guest memory that stays valid until spits_main
// returns.
func hostRun(ctx context.Context, mod api.Module, stack []uint64) {
	c := activeCall(ctx)
	if c == nil || c.frame.Runner == nil {
		if c != nil {
			c.fail(errors.InvalidInput(errors.PhaseCall, "spits_main called the runner but none was given"))
		}
		stack[0] = api.EncodeI32(-1)
		return
	}

	argv, err := c.unit.ViewArgv(spits.RawArgv{
		Count: api.DecodeI32(stack[0]),
		Ptr:   uint64(api.DecodeU32(stack[1])),
	})
	if err != nil {
		c.fail(err)
		stack[0] = api.EncodeI32(-1)
		return
	}
	info, err := c.unit.View(spits.Raw{
		Ptr: uint64(api.DecodeU32(stack[2])),
		Len: int64(stack[3]),
	})
	if err != nil {
		c.fail(err)
		stack[0] = api.EncodeI32(-1)
		return
	}
	dataOut := api.DecodeU32(stack[4])
	sizeOut := api.DecodeU32(stack[5])

	status, data, err := c.frame.Runner(ctx, argv, spits.Own(info))
	if err != nil {
		c.fail(err)
	}

	raw, err := c.arena.Bytes(data)
	if err != nil {
		c.fail(err)
		raw = spits.Raw{}
	}
	mem := mod.Memory()
	if dataOut != 0 && !mem.WriteUint32Le(dataOut, uint32(raw.Ptr)) {
		c.fail(errors.OutOfBounds(errors.PhaseMarshal, uint64(dataOut), 4, uint64(mem.Size())))
	}
	if sizeOut != 0 && !mem.WriteUint64Le(sizeOut, uint64(raw.Len)) {
		c.fail(errors.OutOfBounds(errors.PhaseMarshal, uint64(sizeOut), 8, uint64(mem.Size())))
	}

	Logger().Debug("runner returned to guest",
		zap.Int32("status", int32(status)),
		zap.Int("bytes", len(data)))
	stack[0] = api.EncodeI32(int32(status))
}
