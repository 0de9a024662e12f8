package jobbinary

import (
	"context"

	"github.com/wippyai/spits"
)

// JobManager drives the task-producing role.
type JobManager struct {
	next spits.Symbol
	instance
}

// NewJobManager resolves the job manager symbols and constructs an instance
// with argv and the optional jobinfo buffer.
func (b *Binary) NewJobManager(ctx context.Context, argv []string, jobinfo []byte) (*JobManager, error) {
	newSym, err := b.require(spits.SymJobManagerNew)
	if err != nil {
		return nil, err
	}
	next, err := b.require(spits.SymJobManagerNextTask)
	if err != nil {
		return nil, err
	}

	unit, handle, err := b.construct(ctx, newSym, argv, jobinfo)
	if err != nil {
		return nil, err
	}

	return &JobManager{
		next: next,
		instance: instance{
			unit:     unit,
			finalize: b.caps.JobManagerFinalize,
			role:     "job manager",
			path:     b.Path(),
			handle:   handle,
		},
	}, nil
}

// Handle returns the user data handle of this instance.
func (jm *JobManager) Handle() spits.Handle { return jm.handle }

// NextTask pulls one task. cont is replayed to the module unchanged; pass
// the Context of the previous Result, or the zero Context on the first call.
// Status is the module's own code and is not interpreted.
func (jm *JobManager) NextTask(ctx context.Context, cont spits.Context) (Result, error) {
	if err := jm.enter("next task"); err != nil {
		return Result{}, err
	}
	defer jm.leave()

	return jm.pull(ctx, jm.next, &spits.Frame{Context: cont})
}

// Finalize calls spits_job_manager_finalize when exported and retires the
// instance. Further calls fail with errors.KindState.
func (jm *JobManager) Finalize(ctx context.Context) error {
	return jm.close(ctx)
}
