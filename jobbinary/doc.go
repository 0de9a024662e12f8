// Package jobbinary drives a loaded job binary through its three roles.
//
// A Binary wraps a spits.Library and holds the capability descriptor: the
// optional hooks (the three finalizers and spits_main) are probed once in
// Open and never again. Required role symbols are resolved when the role
// adapter is constructed, so a binary that only exports spits_main can be
// dispatched without ever touching the role API.
//
// # Roles
//
//	JobManager  NewJobManager -> NextTask* -> Finalize
//	Worker      NewWorker     -> Run*      -> Finalize
//	Committer   NewCommitter  -> CommitPit* -> CommitJob -> Finalize
//	Dispatcher  Main (spits_main, or the runner directly when absent)
//
// Every data-bearing call returns a Result filled from the push callback of
// that call. When the module does not push, Result.Data is nil and
// Result.Context is unset. A second push within one call is reported as
// errors.KindMultiplePush; the first payload is kept.
//
// Status codes are passed through unchanged. Interpreting them (more tasks,
// done, failure) belongs to the caller; see the runner package for the SPITZ
// conventions.
//
// # Thread Safety
//
// A Binary may be shared. Each adapter owns its own spits.Unit and must be
// driven by one goroutine at a time; overlapping calls on one adapter fail
// with errors.KindBusy instead of racing. Separate adapters may run in
// parallel.
package jobbinary
