package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalid is returned when the input fails domain validation.
	ErrInvalid = errors.New("invalid input")
	// ErrNotFound indicates that the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or state conflict (HTTP 409).
	ErrConflict = errors.New("conflict")
	// ErrForbidden means the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized means credentials are missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable means no eligible captain could take the order.
	ErrUnavailable = errors.New("unavailable")
)

// ErrInvalidTransition is a Conflict raised by the order state machine.
var ErrInvalidTransition = fmt.Errorf("invalid transition: %w", ErrConflict)

// Invalid wraps ErrInvalid with a field-level reason.
func Invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, reason)
}

// Reason strips the sentinel prefix from a wrapped error so handlers can
// return the explicit reason to the client.
func Reason(err error, sentinel error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return sentinel.Error()
}
