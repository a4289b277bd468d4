package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which part of the bridge produced the error
type Phase string

const (
	PhaseSpawn    Phase = "spawn"    // worker creation
	PhaseEval     Phase = "eval"     // job submission and script evaluation
	PhasePoll     Phase = "poll"     // result retrieval
	PhaseCodec    Phase = "codec"    // guest memory encode/decode
	PhaseEvent    Phase = "event"    // callback registry
	PhaseTimer    Phase = "timer"    // timers and animation frames
	PhaseProtocol Phase = "protocol" // host/worker message encoding
	PhaseHost     Phase = "host"     // host module registration
	PhaseLoad     Phase = "load"     // guest and script loading
	PhaseConfig   Phase = "config"   // configuration
	PhaseRuntime  Phase = "runtime"  // runtime operations
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindSourceUnresolved Kind = "source_unresolved"
	KindSpawnFailure     Kind = "spawn_failure"
	KindDuplicate        Kind = "duplicate"
	KindInvalidInput     Kind = "invalid_input"
	KindClosed           Kind = "closed"
	KindOverloaded       Kind = "overloaded"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindScript           Kind = "script"
	KindRegistration     Kind = "registration"
	KindInstantiation    Kind = "instantiation"
	KindMissingImport    Kind = "missing_import"
	KindTrap             Kind = "trap"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
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

// Path sets the location path (e.g. module, function)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
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

// HasKind reports whether err is an *Error of the given kind, in any phase.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Convenience constructors for common error patterns

// NotFound creates an unknown-handle error
func NotFound(phase Phase, what string, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %d not found", what, handle),
		Value:  handle,
	}
}

// NotFoundName creates a not-found error for named entities
func NotFoundName(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
	}
}

// CapacityExceeded reports a buffer too small for a value. Value holds the
// required byte length.
func CapacityExceeded(phase Phase, required, capacity int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacityExceeded,
		Detail: fmt.Sprintf("need %d bytes, buffer holds %d", required, capacity),
		Value:  required,
	}
}

// SourceUnresolved reports an event target that could not be located
func SourceUnresolved(selector string, cause error) *Error {
	return &Error{
		Phase:  PhaseEvent,
		Kind:   KindSourceUnresolved,
		Detail: fmt.Sprintf("event source %q not found", selector),
		Value:  selector,
		Cause:  cause,
	}
}

// SpawnFailure reports an execution context that could not be created
func SpawnFailure(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseSpawn,
		Kind:   KindSpawnFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// Duplicate reports a second registration of an existing handle
func Duplicate(phase Phase, what string, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("%s %d already registered", what, handle),
		Value:  handle,
	}
}

// Closed reports an operation on a component that has been shut down
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// Overloaded reports a full queue
func Overloaded(phase Phase, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverloaded,
		Detail: fmt.Sprintf("%s full (limit %d)", what, limit),
		Value:  limit,
	}
}

// OutOfBounds creates a guest memory range error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, +%d) outside guest memory", offset, length),
		Value:  offset,
	}
}

// Script wraps an exception raised by evaluated script text
func Script(phase Phase, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindScript,
		Cause: cause,
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

// Registration creates a host function registration error
func Registration(phase Phase, module, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", module, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Trap wraps a failure raised while guest code ran
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Path:   []string{export},
		Detail: "guest call failed",
		Cause:  cause,
	}
}

// Load creates a loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
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

// MissingImport represents a single unresolved guest import
type MissingImport struct {
	Module   string // e.g., "api_workers"
	Function string // e.g., "worker_spawn"
}

// MissingImportsError is returned when a guest imports host functions the
// bridge does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module.function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, fn, _ := strings.Cut(imp, ".")
		result.Imports = append(result.Imports, MissingImport{
			Module:   mod,
			Function: fn,
		})
	}
	return result
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[load] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Function)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
