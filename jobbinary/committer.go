package jobbinary

import (
	"context"

	"github.com/wippyai/spits"
)

// Committer drives the result-aggregating role.
type Committer struct {
	commitPit spits.Symbol
	commitJob spits.Symbol
	instance
}

// NewCommitter resolves the committer symbols and constructs an instance
// with argv and the optional jobinfo buffer.
func (b *Binary) NewCommitter(ctx context.Context, argv []string, jobinfo []byte) (*Committer, error) {
	newSym, err := b.require(spits.SymCommitterNew)
	if err != nil {
		return nil, err
	}
	pit, err := b.require(spits.SymCommitterCommitPit)
	if err != nil {
		return nil, err
	}
	job, err := b.require(spits.SymCommitterCommitJob)
	if err != nil {
		return nil, err
	}

	unit, handle, err := b.construct(ctx, newSym, argv, jobinfo)
	if err != nil {
		return nil, err
	}

	return &Committer{
		commitPit: pit,
		commitJob: job,
		instance: instance{
			unit:     unit,
			finalize: b.caps.CommitterFinalize,
			role:     "committer",
			path:     b.Path(),
			handle:   handle,
		},
	}, nil
}

// Handle returns the user data handle of this instance.
func (c *Committer) Handle() spits.Handle { return c.handle }

// CommitPit hands one partial result to the module. Nothing is pushed back.
func (c *Committer) CommitPit(ctx context.Context, result []byte) (spits.Status, error) {
	if err := c.enter("commit pit"); err != nil {
		return 0, err
	}
	defer c.leave()

	arena := c.unit.NewArena()
	defer arena.Release()

	raw, err := arena.Bytes(result)
	if err != nil {
		return 0, err
	}

	rc, err := c.unit.Invoke(ctx, c.commitPit, &spits.Frame{Handle: c.handle, Buf: raw})
	if err != nil {
		return 0, err
	}
	return spits.Status(int32(rc)), nil
}

// CommitJob asks the module for the final result. Ordering against
// CommitPit is the caller's business; the module may reject it through its
// status.
func (c *Committer) CommitJob(ctx context.Context, cont spits.Context) (Result, error) {
	if err := c.enter("commit job"); err != nil {
		return Result{}, err
	}
	defer c.leave()

	return c.pull(ctx, c.commitJob, &spits.Frame{Context: cont})
}

// Finalize calls spits_committer_finalize when exported and retires the
// instance.
func (c *Committer) Finalize(ctx context.Context) error {
	return c.close(ctx)
}
