package inproc

import (
	"github.com/wippyai/spits"
)

// Pusher hands one buffer back to the host with the continuation context of
// the current call.
type Pusher struct {
	push Push
	ctx  spits.Context
}

// Push sends data back to the host. Call it at most once per call.
func (p *Pusher) Push(data []byte) { p.push(data, p.ctx) }

// Context returns the continuation context the host passed in.
func (p *Pusher) Context() spits.Context { return p.ctx }

// JobManager produces tasks. NextTask returns 1 after pushing a task and 0
// when there is nothing left.
type JobManager interface {
	NextTask(task *Pusher) spits.Status
}

// Worker executes tasks. Run should not depend on state left by earlier
// tasks.
type Worker interface {
	Run(task []byte, result *Pusher) spits.Status
}

// Committer merges partial results and produces the final one.
type Committer interface {
	CommitPit(result []byte) spits.Status
	CommitJob(final *Pusher) spits.Status
}

// Finalizer is implemented by role objects that release resources when the
// host retires them.
type Finalizer interface {
	Finalize()
}

// Factory creates role objects; it is the Go counterpart of a job binary's
// entry points.
type Factory interface {
	NewJobManager(argv []string, jobinfo []byte) JobManager
	NewWorker(argv []string) Worker
	NewCommitter(argv []string, jobinfo []byte) Committer
}

// Mainer is implemented by factories that also export spits_main.
type Mainer interface {
	Main(argv []string, run RunFunc) spits.Status
}

// FromFactory builds the symbol table for f. All three finalizers are
// exported and call Finalize on role objects that implement Finalizer.
func FromFactory(f Factory) Exports {
	ex := Exports{
		JobManagerNew: func(argv []string, jobinfo []byte) any {
			return f.NewJobManager(argv, jobinfo)
		},
		JobManagerNextTask: func(state any, push Push, ctx spits.Context) spits.Status {
			return state.(JobManager).NextTask(&Pusher{push: push, ctx: ctx})
		},
		JobManagerFinalize: finalize,

		WorkerNew: func(argv []string) any {
			return f.NewWorker(argv)
		},
		WorkerRun: func(state any, task []byte, push Push, ctx spits.Context) spits.Status {
			return state.(Worker).Run(task, &Pusher{push: push, ctx: ctx})
		},
		WorkerFinalize: finalize,

		CommitterNew: func(argv []string, jobinfo []byte) any {
			return f.NewCommitter(argv, jobinfo)
		},
		CommitterCommitPit: func(state any, result []byte) spits.Status {
			return state.(Committer).CommitPit(result)
		},
		CommitterCommitJob: func(state any, push Push, ctx spits.Context) spits.Status {
			return state.(Committer).CommitJob(&Pusher{push: push, ctx: ctx})
		},
		CommitterFinalize: finalize,
	}
	if m, ok := f.(Mainer); ok {
		ex.Main = m.Main
	}
	return ex
}

func finalize(state any) {
	if fin, ok := state.(Finalizer); ok {
		fin.Finalize()
	}
}
