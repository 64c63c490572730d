// Package perrors defines the error taxonomy of §7, generalized from
// types.MCPError's {Code, Message, Details} shape to the domain error
// kinds the prioritization engine needs.
package perrors

import "fmt"

// Kind is a closed enum of the error categories spec.md §7 names.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindPermission          Kind = "PERMISSION_DENIED"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindFatalUpstream       Kind = "FATAL_UPSTREAM"
	KindTimeout             Kind = "TIMEOUT"
	KindInternal            Kind = "INTERNAL"
)

// PrioritizerError is the single structured error type returned by
// every public operation in the engine.
type PrioritizerError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *PrioritizerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *PrioritizerError) Unwrap() error { return e.Err }

// New builds a PrioritizerError without an underlying cause.
func New(kind Kind, message string) *PrioritizerError {
	return &PrioritizerError{Kind: kind, Message: message}
}

// Wrap builds a PrioritizerError around an underlying cause.
func Wrap(kind Kind, message string, err error) *PrioritizerError {
	return &PrioritizerError{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured field-level detail (e.g. validation
// failures) and returns the same error for chaining.
func (e *PrioritizerError) WithDetails(d map[string]any) *PrioritizerError {
	e.Details = d
	return e
}

// Retriable reports whether the error kind should trigger the retry
// queue / repair-pass policy of §7 rather than surfacing synchronously.
func (e *PrioritizerError) Retriable() bool {
	return e.Kind == KindUpstreamUnavailable || e.Kind == KindTimeout
}

// NotFound is a convenience constructor for the common case.
func NotFound(resource, id string) *PrioritizerError {
	return New(KindNotFound, fmt.Sprintf("%s %q not found", resource, id))
}

// Conflict is a convenience constructor for the common case, used for
// session-replaced, duplicate-task, and cycle-detected conditions.
func Conflict(code, message string) *PrioritizerError {
	return New(KindConflict, message).WithDetails(map[string]any{"code": code})
}
