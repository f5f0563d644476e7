package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates no resolvable user on the request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrNoRole indicates an authenticated user without an assigned role.
	ErrNoRole = errors.New("no role assigned")
	// ErrForbidden indicates the caller lacks the required role or permission.
	ErrForbidden = errors.New("forbidden")
)

// DenialError describes an authorization denial in enough detail for UI messaging.
type DenialError struct {
	Role    string
	Allowed []string
	Missing []string
}

func (e *DenialError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("forbidden: role %q lacks permission %s", e.Role, strings.Join(e.Missing, " or "))
	case len(e.Allowed) > 0:
		return fmt.Sprintf("forbidden: role %q not in [%s]", e.Role, strings.Join(e.Allowed, ", "))
	default:
		return fmt.Sprintf("forbidden: role %q", e.Role)
	}
}

// Unwrap lets errors.Is match ErrForbidden.
func (e *DenialError) Unwrap() error { return ErrForbidden }

// PublicError pairs a caller-facing message with a cause that only belongs in logs,
// such as a driver error naming constraints.
type PublicError struct {
	Kind  error
	Msg   string
	Cause error
}

// Public is the message safe to return to API callers.
func (e *PublicError) Public() string {
	return e.Kind.Error() + ": " + e.Msg
}

func (e *PublicError) Error() string {
	if e.Cause == nil {
		return e.Public()
	}
	return e.Public() + ": " + e.Cause.Error()
}

// Unwrap exposes both the sentinel kind and the cause to errors.Is/As.
func (e *PublicError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
