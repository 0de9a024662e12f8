package jobbinary

import (
	"context"

	"github.com/wippyai/spits"
)

// Worker drives the task-executing role.
type Worker struct {
	run spits.Symbol
	instance
}

// NewWorker resolves the worker symbols and constructs an instance.
func (b *Binary) NewWorker(ctx context.Context, argv []string) (*Worker, error) {
	newSym, err := b.require(spits.SymWorkerNew)
	if err != nil {
		return nil, err
	}
	run, err := b.require(spits.SymWorkerRun)
	if err != nil {
		return nil, err
	}

	unit, handle, err := b.construct(ctx, newSym, argv, nil)
	if err != nil {
		return nil, err
	}

	return &Worker{
		run: run,
		instance: instance{
			unit:     unit,
			finalize: b.caps.WorkerFinalize,
			role:     "worker",
			path:     b.Path(),
			handle:   handle,
		},
	}, nil
}

// Handle returns the user data handle of this instance.
func (w *Worker) Handle() spits.Handle { return w.handle }

// Run executes one task. The task buffer is copied into boundary memory for
// the duration of this call only.
func (w *Worker) Run(ctx context.Context, task []byte, cont spits.Context) (Result, error) {
	if err := w.enter("run"); err != nil {
		return Result{}, err
	}
	defer w.leave()

	arena := w.unit.NewArena()
	defer arena.Release()

	raw, err := arena.Bytes(task)
	if err != nil {
		return Result{}, err
	}

	return w.pull(ctx, w.run, &spits.Frame{Buf: raw, Context: cont})
}

// Finalize calls spits_worker_finalize when exported and retires the
// instance.
func (w *Worker) Finalize(ctx context.Context) error {
	return w.close(ctx)
}
