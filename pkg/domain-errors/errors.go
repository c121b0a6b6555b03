// Package domainerrors provides coded errors shared across services.
//
// Services wrap infrastructure errors (see pkg/platform/sentinel) into coded
// domain errors at the boundary where they know enough to classify them.
// Handlers translate codes into HTTP statuses; the workflow engine translates
// them into retry decisions.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers that need to branch on it.
type Code string

const (
	// CodeInvalidInput marks input that fails structural validation.
	// Non-retryable; surfaced immediately with no state mutated.
	CodeInvalidInput Code = "invalid_input"

	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"

	// CodeConflict marks a write conflict, e.g. a stale version or an
	// operation that violates the current state of the entity. Transient:
	// the caller may re-fetch and retry.
	CodeConflict Code = "conflict"

	// CodeUnavailable marks a resource that is temporarily held or down,
	// e.g. a blob lease owned by another writer. Transient.
	CodeUnavailable Code = "unavailable"

	// CodeActivityFailure marks a named workflow step that failed after
	// exhausting its retry budget. Recoverable by re-driving the instance.
	CodeActivityFailure Code = "activity_failure"

	// CodeInvariantViolation marks an entity state transition that the
	// domain model forbids.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeInternal marks anything that does not match the taxonomy above.
	// Logged distinctly since it indicates a classification gap.
	CodeInternal Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is nil,
// Wrap returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is an alias of HasCode kept for readability at call sites that branch
// on a single code.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries no code at all.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
