// Package errors provides structured error types for the spits module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the job binary path, the exported symbol involved and a
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindTrap).
//		Library(lib.Path()).
//		Symbol("spits_worker_run").
//		Cause(err).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingSymbol(lib.Path(), "spits_worker_new")
//	err := errors.MultiplePush("spits_job_manager_next_task", 2)
//
// Module status codes are never turned into errors by the binding layer; only
// the runner package, which owns the retry/abort policy, does that with Status.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
