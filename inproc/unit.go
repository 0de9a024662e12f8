package inproc

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// unit simulates boundary memory with numbered regions so that buffers and
// argument vectors cross as (pointer, length) pairs like they do for native
// and wasm binaries.
type unit struct {
	lib     *Library
	regions map[uint64]any
	next    uint64
}

func (u *unit) alloc(v any) uint64 {
	u.next++
	u.regions[u.next] = v
	return u.next
}

func (u *unit) NewArena() spits.Arena {
	return &arena{unit: u}
}

func (u *unit) View(r spits.Raw) ([]byte, error) {
	if r.Absent() {
		return nil, nil
	}
	buf, ok := u.regions[r.Ptr].([]byte)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("no buffer at %#x", r.Ptr))
	}
	if r.Len > int64(len(buf)) {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, r.Ptr, r.Len, uint64(len(buf)))
	}
	return buf[:r.Len], nil
}

func (u *unit) ViewArgv(a spits.RawArgv) ([]string, error) {
	if a.Count == 0 {
		return nil, nil
	}
	argv, ok := u.regions[a.Ptr].([]string)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("no argument vector at %#x", a.Ptr))
	}
	if int(a.Count) > len(argv) {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, a.Ptr, int64(a.Count), uint64(len(argv)))
	}
	return argv[:a.Count], nil
}

func (u *unit) Close(ctx context.Context) error {
	u.regions = nil
	return nil
}

// Invoke dispatches to the exported Go function. A panic inside the job
// binary is reported as a trap.
func (u *unit) Invoke(ctx context.Context, sym spits.Symbol, f *spits.Frame) (rc int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			rc = 0
			err = errors.Trap(sym.Name(), fmt.Errorf("panic: %v", r))
		}
	}()

	ex := &u.lib.exports
	if !ex.has(sym.Name()) {
		return 0, errors.MissingSymbol(u.lib.Path(), sym.Name())
	}

	push := func(data []byte, c spits.Context) {
		if f.Sink != nil {
			f.Sink.Push(data, c)
		}
	}

	switch sym.Name() {
	case spits.SymJobManagerNew, spits.SymCommitterNew, spits.SymWorkerNew:
		argv, err := u.ViewArgv(f.Argv)
		if err != nil {
			return 0, err
		}
		var state any
		switch sym.Name() {
		case spits.SymJobManagerNew:
			info, err := u.View(f.Buf)
			if err != nil {
				return 0, err
			}
			state = ex.JobManagerNew(argv, info)
		case spits.SymCommitterNew:
			info, err := u.View(f.Buf)
			if err != nil {
				return 0, err
			}
			state = ex.CommitterNew(argv, info)
		default:
			state = ex.WorkerNew(argv)
		}
		return int64(u.lib.handles.insert(state)), nil

	case spits.SymJobManagerNextTask, spits.SymCommitterCommitJob:
		state, err := u.state(sym, f.Handle)
		if err != nil {
			return 0, err
		}
		if sym.Name() == spits.SymJobManagerNextTask {
			return int64(ex.JobManagerNextTask(state, push, f.Context)), nil
		}
		return int64(ex.CommitterCommitJob(state, push, f.Context)), nil

	case spits.SymWorkerRun:
		state, err := u.state(sym, f.Handle)
		if err != nil {
			return 0, err
		}
		task, err := u.View(f.Buf)
		if err != nil {
			return 0, err
		}
		return int64(ex.WorkerRun(state, task, push, f.Context)), nil

	case spits.SymCommitterCommitPit:
		state, err := u.state(sym, f.Handle)
		if err != nil {
			return 0, err
		}
		result, err := u.View(f.Buf)
		if err != nil {
			return 0, err
		}
		return int64(ex.CommitterCommitPit(state, result)), nil

	case spits.SymJobManagerFinalize, spits.SymWorkerFinalize, spits.SymCommitterFinalize:
		state, ok := u.lib.handles.remove(f.Handle.Addr())
		if !ok {
			return 0, unknownHandle(sym, f.Handle)
		}
		switch sym.Name() {
		case spits.SymJobManagerFinalize:
			ex.JobManagerFinalize(state)
		case spits.SymWorkerFinalize:
			ex.WorkerFinalize(state)
		default:
			ex.CommitterFinalize(state)
		}
		return 0, nil

	case spits.SymMain:
		return u.main(ctx, f)
	}

	return 0, errors.Unsupported(errors.PhaseCall, "symbol "+sym.Name())
}

func (u *unit) state(sym spits.Symbol, h spits.Handle) (any, error) {
	state, ok := u.lib.handles.get(h.Addr())
	if !ok {
		return nil, unknownHandle(sym, h)
	}
	return state, nil
}

func (u *unit) main(ctx context.Context, f *spits.Frame) (int64, error) {
	argv, err := u.ViewArgv(f.Argv)
	if err != nil {
		return 0, err
	}

	var runErr error
	run := func(argv []string, jobinfo []byte) (spits.Status, []byte) {
		if f.Runner == nil {
			runErr = multierr.Append(runErr, errors.InvalidInput(errors.PhaseCall, "spits_main called the runner but none was given"))
			return -1, nil
		}
		status, data, err := f.Runner(ctx, argv, spits.Own(jobinfo))
		if err != nil {
			runErr = multierr.Append(runErr, err)
		}
		return status, data
	}

	status := u.lib.exports.Main(argv, run)
	return int64(status), runErr
}

func unknownHandle(sym spits.Symbol, h spits.Handle) error {
	return errors.New(errors.PhaseCall, errors.KindInvalidInput).
		Symbol(sym.Name()).
		Value(h.Addr()).
		Detail("unknown %s", h).
		Build()
}

// arena keeps copies in unit regions until Release.
type arena struct {
	unit *unit
	ids  []uint64
}

func (a *arena) Bytes(b []byte) (spits.Raw, error) {
	if len(b) == 0 {
		return spits.Raw{}, nil
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	id := a.unit.alloc(buf)
	a.ids = append(a.ids, id)
	return spits.Raw{Ptr: id, Len: int64(len(buf))}, nil
}

func (a *arena) Argv(args []string) (spits.RawArgv, error) {
	if len(args) == 0 {
		return spits.RawArgv{}, nil
	}
	argv := make([]string, len(args))
	for i, arg := range args {
		if strings.IndexByte(arg, 0) >= 0 {
			return spits.RawArgv{}, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("argument %d contains NUL", i))
		}
		argv[i] = strings.Clone(arg)
	}
	id := a.unit.alloc(argv)
	a.ids = append(a.ids, id)
	return spits.RawArgv{Count: int32(len(argv)), Ptr: id}, nil
}

func (a *arena) Release() {
	if a.unit.regions == nil {
		return
	}
	for _, id := range a.ids {
		delete(a.unit.regions, id)
	}
	a.ids = nil
}
