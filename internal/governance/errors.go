package governance

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSkipQuotaExceeded is returned by AttemptSkip once the session's skip
// quota is spent. It never mutates state or counter.
var ErrSkipQuotaExceeded = errors.New("vagueness skip quota exceeded")

// ValidationError reports rejected input. Fully recoverable; the session
// stays where it was.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// PrerequisiteError aggregates every missing quarterly prerequisite into one
// message.
type PrerequisiteError struct {
	Missing []string
}

func (e *PrerequisiteError) Error() string {
	return "missing prerequisites: " + strings.Join(e.Missing, ", ")
}

// InvalidTransitionError reports an event applied from the wrong state.
type InvalidTransitionError struct {
	State State
	Event EventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed in state %q", e.Event, e.State)
}

// CollaboratorError wraps a classifier or generator failure. Retryable: the
// caller re-invokes the same transition; no partial state was committed.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func WrapCollaborator(op string, err error) error {
	return &CollaboratorError{Op: op, Err: err}
}

func IsRetryable(err error) bool {
	var c *CollaboratorError
	return errors.As(err, &c)
}
