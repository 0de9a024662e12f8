package wasm

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// unit is one guest instance with its memory and allocator.
type unit struct {
	lib     *Library
	mod     api.Module
	mem     api.Memory
	allocFn api.Function
	freeFn  api.Function
	funcs   map[string]api.Function

	isSimpleAlloc bool
	freeParams    int
}

func newUnit(l *Library, mod api.Module) (*unit, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Library(l.path).
			Detail("guest exports no memory").
			Build()
	}

	u := &unit{
		lib:   l,
		mod:   mod,
		mem:   mem,
		funcs: make(map[string]api.Function),
	}

	// Cache allocator - try cabi_realloc first, then the libc names
	defs := mod.ExportedFunctionDefinitions()
	allocDef := defs[CabiRealloc]
	if allocDef == nil {
		allocDef = defs[malloc]
	}
	if allocDef == nil {
		allocDef = defs[simpleAlloc]
	}
	if allocDef != nil {
		u.allocFn = mod.ExportedFunction(allocDef.Name())
		u.isSimpleAlloc = len(allocDef.ParamTypes()) < 4
	}

	for _, name := range []string{CabiFree, simpleFree} {
		if def := defs[name]; def != nil {
			u.freeFn = mod.ExportedFunction(name)
			u.freeParams = len(def.ParamTypes())
			break
		}
	}
	return u, nil
}

func (u *unit) function(name string) (api.Function, error) {
	if fn, ok := u.funcs[name]; ok {
		return fn, nil
	}
	fn := u.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingSymbol(u.lib.path, name)
	}
	u.funcs[name] = fn
	return fn, nil
}

func (u *unit) NewArena() spits.Arena {
	return &arena{unit: u}
}

func (u *unit) View(r spits.Raw) ([]byte, error) {
	if r.Absent() {
		return nil, nil
	}
	if r.Ptr > math.MaxUint32 || r.Len > math.MaxUint32 {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, r.Ptr, r.Len, uint64(u.mem.Size()))
	}
	view, ok := u.mem.Read(uint32(r.Ptr), uint32(r.Len))
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, r.Ptr, r.Len, uint64(u.mem.Size()))
	}
	return view, nil
}

func (u *unit) ViewArgv(a spits.RawArgv) ([]string, error) {
	if a.Count == 0 {
		return nil, nil
	}
	if a.Count < 0 {
		return nil, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("negative argument count %d", a.Count))
	}
	if a.Ptr == 0 || a.Ptr > math.MaxUint32 {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, a.Ptr, int64(a.Count)*4, uint64(u.mem.Size()))
	}

	table, ok := u.mem.Read(uint32(a.Ptr), uint32(a.Count)*4)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, a.Ptr, int64(a.Count)*4, uint64(u.mem.Size()))
	}

	args := make([]string, a.Count)
	for i := range args {
		s, err := u.cstring(binary.LittleEndian.Uint32(table[i*4:]))
		if err != nil {
			return nil, err
		}
		args[i] = s
	}
	return args, nil
}

// cstring copies the NUL-terminated string at ptr.
func (u *unit) cstring(ptr uint32) (string, error) {
	if ptr == 0 {
		return "", errors.InvalidInput(errors.PhaseMarshal, "null argument pointer")
	}
	size := u.mem.Size()
	if ptr >= size {
		return "", errors.OutOfBounds(errors.PhaseMarshal, uint64(ptr), 1, uint64(size))
	}
	rest, _ := u.mem.Read(ptr, size-ptr)
	n := bytes.IndexByte(rest, 0)
	if n < 0 {
		return "", errors.OutOfBounds(errors.PhaseMarshal, uint64(ptr), int64(len(rest)), uint64(size))
	}
	return string(rest[:n]), nil
}

// Invoke calls the guest export. The frame is reachable from the host
// functions through the call context.
func (u *unit) Invoke(ctx context.Context, sym spits.Symbol, f *spits.Frame) (int64, error) {
	fn, err := u.function(sym.Name())
	if err != nil {
		return 0, err
	}

	handle := api.EncodeU32(uint32(f.Handle.Addr()))
	cont := api.EncodeU32(uint32(f.Context.Addr()))
	argc := api.EncodeI32(f.Argv.Count)
	argv := api.EncodeU32(uint32(f.Argv.Ptr))
	buf := api.EncodeU32(uint32(f.Buf.Ptr))
	bufLen := api.EncodeI64(f.Buf.Len)

	var params []uint64
	switch sym.Shape() {
	case spits.ShapeNewInfo:
		params = []uint64{argc, argv, buf, bufLen}
	case spits.ShapeNew, spits.ShapeMain:
		params = []uint64{argc, argv}
	case spits.ShapePull:
		params = []uint64{handle, cont}
	case spits.ShapeRun:
		params = []uint64{handle, buf, bufLen, cont}
	case spits.ShapeCommit:
		params = []uint64{handle, buf, bufLen}
	case spits.ShapeFinalize:
		params = []uint64{handle}
	default:
		return 0, errors.Unsupported(errors.PhaseCall, fmt.Sprintf("%s has shape %s", sym.Name(), sym.Shape()))
	}

	c := &call{frame: f, unit: u, arena: &arena{unit: u}}
	defer c.arena.Release()

	results, err := fn.Call(withCall(ctx, c), params...)
	if err != nil {
		Logger().Debug("guest call failed",
			zap.String("symbol", sym.Name()),
			zap.Error(err))
		return 0, multierr.Append(errors.Trap(sym.Name(), err), c.err)
	}
	if len(results) == 0 {
		return 0, c.err
	}

	switch sym.Shape() {
	case spits.ShapeNewInfo, spits.ShapeNew:
		return int64(api.DecodeU32(results[0])), c.err
	default:
		return int64(api.DecodeI32(results[0])), c.err
	}
}

func (u *unit) Close(ctx context.Context) error {
	u.funcs = nil
	return u.mod.Close(ctx)
}

// alloc calls the guest allocator. Allocator calls never carry the
// caller's deadline so that a cancelled call can still be cleaned up.
func (u *unit) alloc(size, align uint32) (uint32, error) {
	if u.allocFn == nil {
		return 0, errors.Unsupported(errors.PhaseMarshal, "guest exports no allocator")
	}

	ctx := context.Background()
	var results []uint64
	var err error
	if u.isSimpleAlloc {
		results, err = u.allocFn.Call(ctx, uint64(size))
	} else {
		results, err = u.allocFn.Call(ctx, 0, 0, uint64(align), uint64(size))
	}
	if err != nil {
		return 0, errors.Wrap(errors.PhaseMarshal, errors.KindAllocation, err, "guest allocator trapped")
	}
	ptr := api.DecodeU32(results[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, int(size))
	}
	return ptr, nil
}

func (u *unit) release(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}

	ctx := context.Background()
	var err error
	switch {
	case u.freeFn != nil && u.freeParams >= 3:
		_, err = u.freeFn.Call(ctx, uint64(ptr), uint64(size), uint64(align))
	case u.freeFn != nil && u.freeParams == 2:
		_, err = u.freeFn.Call(ctx, uint64(ptr), uint64(size))
	case u.freeFn != nil:
		_, err = u.freeFn.Call(ctx, uint64(ptr))
	case u.allocFn != nil && !u.isSimpleAlloc:
		// realloc to zero frees
		_, err = u.allocFn.Call(ctx, uint64(ptr), uint64(size), uint64(align), 0)
	default:
		return
	}
	if err != nil {
		Logger().Warn("failed to free guest memory",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

type block struct {
	ptr, size, align uint32
}

// arena holds guest allocations made for one call.
type arena struct {
	unit   *unit
	blocks []block
}

func (a *arena) alloc(size, align uint32) (uint32, error) {
	ptr, err := a.unit.alloc(size, align)
	if err != nil {
		return 0, err
	}
	a.blocks = append(a.blocks, block{ptr: ptr, size: size, align: align})
	return ptr, nil
}

func (a *arena) write(ptr uint32, data []byte) error {
	if !a.unit.mem.Write(ptr, data) {
		return errors.OutOfBounds(errors.PhaseMarshal, uint64(ptr), int64(len(data)), uint64(a.unit.mem.Size()))
	}
	return nil
}

func (a *arena) Bytes(b []byte) (spits.Raw, error) {
	if len(b) == 0 {
		return spits.Raw{}, nil
	}
	if uint64(len(b)) > math.MaxUint32 {
		return spits.Raw{}, errors.AllocationFailed(errors.PhaseMarshal, len(b))
	}

	ptr, err := a.alloc(uint32(len(b)), 1)
	if err != nil {
		return spits.Raw{}, err
	}
	if err := a.write(ptr, b); err != nil {
		return spits.Raw{}, err
	}
	return spits.Raw{Ptr: uint64(ptr), Len: int64(len(b))}, nil
}

func (a *arena) Argv(args []string) (spits.RawArgv, error) {
	if len(args) == 0 {
		return spits.RawArgv{}, nil
	}

	table := make([]byte, 4*len(args))
	for i, arg := range args {
		if strings.IndexByte(arg, 0) >= 0 {
			return spits.RawArgv{}, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("argument %d contains NUL", i))
		}
		cstr := make([]byte, len(arg)+1)
		copy(cstr, arg)

		ptr, err := a.alloc(uint32(len(cstr)), 1)
		if err != nil {
			return spits.RawArgv{}, err
		}
		if err := a.write(ptr, cstr); err != nil {
			return spits.RawArgv{}, err
		}
		binary.LittleEndian.PutUint32(table[i*4:], ptr)
	}

	ptr, err := a.alloc(uint32(len(table)), 4)
	if err != nil {
		return spits.RawArgv{}, err
	}
	if err := a.write(ptr, table); err != nil {
		return spits.RawArgv{}, err
	}
	return spits.RawArgv{Count: int32(len(args)), Ptr: uint64(ptr)}, nil
}

// Release frees in reverse allocation order.
func (a *arena) Release() {
	for i := len(a.blocks) - 1; i >= 0; i-- {
		b := a.blocks[i]
		a.unit.release(b.ptr, b.size, b.align)
	}
	a.blocks = nil
}
