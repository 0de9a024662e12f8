package inproc

import (
	"github.com/wippyai/spits"
)

// Push hands a buffer back to the host. data is only read during the call.
type Push func(data []byte, ctx spits.Context)

// RunFunc is the host runner as seen from inside spits_main.
type RunFunc func(argv []string, jobinfo []byte) (spits.Status, []byte)

// Exports is the symbol table of a Go job binary. A nil field is a symbol
// the binary does not export. State values returned by the *New functions
// are kept in the library's handle table; the host only ever sees the
// handle.
type Exports struct {
	JobManagerNew      func(argv []string, jobinfo []byte) any
	JobManagerNextTask func(state any, push Push, ctx spits.Context) spits.Status
	JobManagerFinalize func(state any)

	WorkerNew      func(argv []string) any
	WorkerRun      func(state any, task []byte, push Push, ctx spits.Context) spits.Status
	WorkerFinalize func(state any)

	CommitterNew       func(argv []string, jobinfo []byte) any
	CommitterCommitPit func(state any, result []byte) spits.Status
	CommitterCommitJob func(state any, push Push, ctx spits.Context) spits.Status
	CommitterFinalize  func(state any)

	Main func(argv []string, run RunFunc) spits.Status
}

// has reports whether the symbol is exported.
func (e *Exports) has(name string) bool {
	switch name {
	case spits.SymJobManagerNew:
		return e.JobManagerNew != nil
	case spits.SymJobManagerNextTask:
		return e.JobManagerNextTask != nil
	case spits.SymJobManagerFinalize:
		return e.JobManagerFinalize != nil
	case spits.SymWorkerNew:
		return e.WorkerNew != nil
	case spits.SymWorkerRun:
		return e.WorkerRun != nil
	case spits.SymWorkerFinalize:
		return e.WorkerFinalize != nil
	case spits.SymCommitterNew:
		return e.CommitterNew != nil
	case spits.SymCommitterCommitPit:
		return e.CommitterCommitPit != nil
	case spits.SymCommitterCommitJob:
		return e.CommitterCommitJob != nil
	case spits.SymCommitterFinalize:
		return e.CommitterFinalize != nil
	case spits.SymMain:
		return e.Main != nil
	}
	return false
}
