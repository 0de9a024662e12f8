package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // opening a job binary
	PhaseResolve Phase = "resolve" // symbol resolution
	PhaseMarshal Phase = "marshal" // host to boundary and back
	PhaseCall    Phase = "call"    // invoking a module symbol
	PhaseConfig  Phase = "config"  // job configuration
	PhaseRun     Phase = "run"     // local runner policy
)

// Kind categorizes the error
type Kind string

const (
	KindMissingSymbol Kind = "missing_symbol"
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidData   Kind = "invalid_data"
	KindAllocation    Kind = "allocation"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindMultiplePush  Kind = "multiple_push"
	KindBusy          Kind = "busy"
	KindState         Kind = "state"
	KindTrap          Kind = "trap"
	KindStatus        Kind = "status"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Library string
	Symbol  string
	Detail  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteByte(' ')
		b.WriteString(e.Symbol)
	}
	if e.Library != "" {
		b.WriteString(" in ")
		b.WriteString(e.Library)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Library sets the path of the job binary involved
func (b *Builder) Library(path string) *Builder {
	b.err.Library = path
	return b
}

// Symbol sets the exported symbol involved
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// MissingSymbol creates a resolution error for a required export
func MissingSymbol(library, symbol string) *Error {
	return &Error{
		Phase:   PhaseResolve,
		Kind:    KindMissingSymbol,
		Library: library,
		Symbol:  symbol,
		Detail:  "required symbol not exported",
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Value:  size,
	}
}

// OutOfBounds creates an out of bounds error for a boundary buffer
func OutOfBounds(phase Phase, ptr uint64, length int64, limit uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("buffer %#x+%d exceeds boundary memory of %d bytes", ptr, length, limit),
		Value:  ptr,
	}
}

// MultiplePush creates the error returned when a module pushes more than
// once during a single call
func MultiplePush(symbol string, pushes int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindMultiplePush,
		Symbol: symbol,
		Detail: fmt.Sprintf("push invoked %d times, at most once allowed", pushes),
		Value:  pushes,
	}
}

// Busy creates the error returned for overlapping calls on one instance
func Busy(role string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindBusy,
		Detail: fmt.Sprintf("%s instance already has an outstanding call", role),
	}
}

// State creates a lifecycle violation error
func State(role, op, state string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindState,
		Detail: fmt.Sprintf("%s %s: instance is %s", role, op, state),
	}
}

// Trap creates an error for a module call that aborted
func Trap(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Symbol: symbol,
		Detail: "module call aborted",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Status creates a runner error for a module status that policy treats as
// failure
func Status(symbol string, status int32) *Error {
	return &Error{
		Phase:  PhaseRun,
		Kind:   KindStatus,
		Symbol: symbol,
		Detail: fmt.Sprintf("module returned status %d", status),
		Value:  status,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a job binary loading error
func Load(path string, cause error) *Error {
	return &Error{
		Phase:   PhaseLoad,
		Kind:    KindInvalidData,
		Library: path,
		Detail:  "open job binary",
		Cause:   cause,
	}
}
