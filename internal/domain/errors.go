package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrLeagueUnsupported = errors.New("league not supported")
	ErrValidation        = errors.New("validation failed")
	ErrTransient         = errors.New("transient upstream failure")
	ErrConflict          = errors.New("state changed concurrently")
	ErrPersistence       = errors.New("persistence failure")
	ErrUnavailable       = errors.New("dependency unavailable")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock held by another process")
)

// ValidationError reports a wager whose configuration cannot be evaluated
// against the data at hand. The lifecycle washes such wagers with Reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalidf builds a ValidationError with a formatted reason.
func Invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationReason extracts the reason from a ValidationError anywhere in the
// chain. ok is false when err is not a validation failure.
func ValidationReason(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

// IsPermanent reports whether retrying the operation that produced err can
// never succeed. Queue workers dead-letter permanent failures immediately.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLeagueUnsupported)
}
