package jobbinary

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// Capabilities records which optional hooks a binary exports. A nil symbol
// means the hook is absent.
type Capabilities struct {
	JobManagerFinalize spits.Symbol
	WorkerFinalize     spits.Symbol
	CommitterFinalize  spits.Symbol
	Main               spits.Symbol
}

// HasMain reports whether the binary exports spits_main.
func (c Capabilities) HasMain() bool { return c.Main != nil }

// Optional lists the optional hooks and whether each is present, in
// declaration order.
func (c Capabilities) Optional() []Export {
	return []Export{
		{Name: spits.SymJobManagerFinalize, Present: c.JobManagerFinalize != nil},
		{Name: spits.SymWorkerFinalize, Present: c.WorkerFinalize != nil},
		{Name: spits.SymCommitterFinalize, Present: c.CommitterFinalize != nil},
		{Name: spits.SymMain, Present: c.Main != nil},
	}
}

// Export describes one well-known symbol of a binary.
type Export struct {
	Name     string
	Shape    spits.Shape
	Present  bool
	Required bool
}

var optionalSymbols = map[string]bool{
	spits.SymJobManagerFinalize: true,
	spits.SymWorkerFinalize:     true,
	spits.SymCommitterFinalize:  true,
	spits.SymMain:               true,
}

// Binary is the module handle: a loaded library plus its capability
// descriptor. It is safe to share between adapters.
type Binary struct {
	lib  spits.Library
	caps Capabilities
}

// Open wraps lib and probes its optional hooks.
func Open(lib spits.Library) (*Binary, error) {
	if lib == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil library")
	}

	b := &Binary{lib: lib}
	b.caps.JobManagerFinalize = b.probe(spits.SymJobManagerFinalize)
	b.caps.WorkerFinalize = b.probe(spits.SymWorkerFinalize)
	b.caps.CommitterFinalize = b.probe(spits.SymCommitterFinalize)
	b.caps.Main = b.probe(spits.SymMain)

	Logger().Debug("job binary opened",
		zap.String("path", lib.Path()),
		zap.Bool("main", b.caps.Main != nil))
	return b, nil
}

func (b *Binary) probe(name string) spits.Symbol {
	sym, ok := b.lib.Lookup(name)
	if !ok {
		return nil
	}
	return sym
}

// Path returns the resolved path of the binary.
func (b *Binary) Path() string { return b.lib.Path() }

// Library returns the underlying backend library.
func (b *Binary) Library() spits.Library { return b.lib }

// Capabilities returns the descriptor built by Open.
func (b *Binary) Capabilities() Capabilities { return b.caps }

// Exports resolves every well-known symbol. It is meant for inspection
// tools; adapters never call it.
func (b *Binary) Exports() []Export {
	names := spits.Symbols()
	out := make([]Export, 0, len(names))
	for _, name := range names {
		shape, _ := spits.ShapeOf(name)
		_, ok := b.lib.Lookup(name)
		out = append(out, Export{
			Name:     name,
			Shape:    shape,
			Present:  ok,
			Required: !optionalSymbols[name],
		})
	}
	return out
}

// Close releases backend resources. Role instances must be finalized first.
func (b *Binary) Close(ctx context.Context) error {
	return b.lib.Close(ctx)
}

func (b *Binary) require(name string) (spits.Symbol, error) {
	sym, ok := b.lib.Lookup(name)
	if !ok {
		Logger().Warn("required symbol missing",
			zap.String("path", b.lib.Path()),
			zap.String("symbol", name))
		return nil, errors.MissingSymbol(b.lib.Path(), name)
	}
	return sym, nil
}

// construct attaches a unit and runs a *_new symbol on it. The unit is
// closed again when construction fails.
func (b *Binary) construct(ctx context.Context, sym spits.Symbol, argv []string, jobinfo []byte) (spits.Unit, spits.Handle, error) {
	unit, err := b.lib.Attach(ctx)
	if err != nil {
		return nil, spits.Handle{}, err
	}

	handle, err := construct(ctx, unit, sym, argv, jobinfo)
	if err != nil {
		_ = unit.Close(ctx)
		return nil, spits.Handle{}, err
	}
	return unit, handle, nil
}

func construct(ctx context.Context, unit spits.Unit, sym spits.Symbol, argv []string, jobinfo []byte) (spits.Handle, error) {
	arena := unit.NewArena()
	defer arena.Release()

	rargv, err := arena.Argv(argv)
	if err != nil {
		return spits.Handle{}, err
	}

	frame := &spits.Frame{Argv: rargv}
	if sym.Shape() == spits.ShapeNewInfo {
		frame.Buf, err = arena.Bytes(jobinfo)
		if err != nil {
			return spits.Handle{}, err
		}
	}

	addr, err := unit.Invoke(ctx, sym, frame)
	if err != nil {
		return spits.Handle{}, err
	}

	Logger().Debug("instance constructed",
		zap.String("symbol", sym.Name()),
		zap.Int("argc", len(argv)),
		zap.Int("jobinfo_bytes", len(jobinfo)),
		zap.Uint64("handle", uint64(addr)))
	return spits.HandleOf(uint64(addr)), nil
}
