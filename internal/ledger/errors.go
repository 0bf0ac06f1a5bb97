// Package ledger holds the pure core of the service: the balance engine,
// the confirmation-workflow state machine and the domain error taxonomy.
// Nothing in this package touches storage or the network.
package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors the rest of the system branches on with errors.Is. The
// concrete error values wrap these so callers can also read the detail
// message.
var (
	// ErrValidation marks malformed or missing input (bad kind,
	// non-positive amount, empty participants).
	ErrValidation = errors.New("validation failed")

	// ErrNotMember marks a role reference to someone who is not a current
	// member of the group at creation time.
	ErrNotMember = errors.New("not a group member")

	// ErrForbidden marks an operation attempted by a member who is not
	// authorized for it.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks an unknown group or transaction ID.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a state-machine violation, e.g. accepting
	// a transaction already in a terminal state. Expected under concurrent
	// double-submission; callers treat it as a no-op error.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrIntegrity marks a balance fold over corrupt data: a transaction
	// referencing a member absent from the group roster. It must be
	// surfaced, never silently skipped, because skipping breaks the
	// zero-sum invariant undetected.
	ErrIntegrity = errors.New("data integrity violation")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotMemberf wraps ErrNotMember with a formatted detail message.
func NotMemberf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotMember}, args...)...)
}

// Forbiddenf wraps ErrForbidden with a formatted detail message.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrForbidden}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Transitionf wraps ErrInvalidTransition with a formatted detail message.
func Transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidTransition}, args...)...)
}

// Integrityf wraps ErrIntegrity with a formatted detail message.
func Integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrIntegrity}, args...)...)
}
