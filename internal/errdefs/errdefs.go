// Package errdefs defines the error classes every import stage reports.
//
// Stages wrap one of these sentinels with context using fmt.Errorf("%w: ...")
// and callers classify with errors.Is. Transport, git and filesystem failures
// are returned as-is and are always fatal.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest is returned for malformed or missing input.
	ErrBadRequest = errors.New("bad request")

	// ErrConflict is returned when the import would collide with existing
	// state: a held import lock, a duplicate group, or a rejecting policy.
	ErrConflict = errors.New("conflict")

	// ErrPreconditionFailed is returned when a referenced owner group,
	// included group or account is missing and may not be imported.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrValidation is returned when the target cannot accept the import,
	// e.g. the parent project is missing.
	ErrValidation = errors.New("validation failed")

	// ErrNoSuchAccount is returned when a remote account cannot be mapped to
	// a local one.
	ErrNoSuchAccount = errors.New("no such account")

	// ErrLock is returned when the import lock could not be taken for a
	// reason other than contention.
	ErrLock = errors.New("failed to lock project for import")
)

// BadRequest wraps ErrBadRequest with a formatted message.
func BadRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// PreconditionFailed wraps ErrPreconditionFailed with a formatted message.
func PreconditionFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NoSuchAccount wraps ErrNoSuchAccount with a formatted message.
func NoSuchAccount(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNoSuchAccount, fmt.Sprintf(format, args...))
}

// Kind returns a short machine-readable class for err, or "error" when it
// matches none of the sentinels. Used in logs and CLI JSON output.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrNoSuchAccount):
		return "no_such_account"
	case errors.Is(err, ErrLock):
		return "lock_error"
	}
	return "error"
}
