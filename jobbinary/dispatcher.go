package jobbinary

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/spits"
)

// Dispatcher routes a run through the combined spits_main entry point.
type Dispatcher struct {
	bin *Binary
}

// Dispatcher returns the entry-point dispatcher of b.
func (b *Binary) Dispatcher() *Dispatcher {
	return &Dispatcher{bin: b}
}

// Main calls spits_main with argv and lets the module invoke run. When the
// binary does not export spits_main, run is called directly with no job
// info. Role symbols are never resolved here.
func (d *Dispatcher) Main(ctx context.Context, argv []string, run spits.Runner) (spits.Status, error) {
	sym := d.bin.caps.Main
	if sym == nil {
		Logger().Debug("spits_main absent, running directly",
			zap.String("path", d.bin.Path()))
		status, _, err := run(ctx, argv, nil)
		return status, err
	}

	unit, err := d.bin.lib.Attach(ctx)
	if err != nil {
		return 0, err
	}
	defer unit.Close(ctx)

	arena := unit.NewArena()
	defer arena.Release()

	rargv, err := arena.Argv(argv)
	if err != nil {
		return 0, err
	}

	rc, err := unit.Invoke(ctx, sym, &spits.Frame{Argv: rargv, Runner: run})
	return spits.Status(int32(rc)), err
}
