package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/waypoint-tourism/directory/internal/supabase"
)

var (
	// ErrNotFound is returned when a record does not exist or is hidden by RLS.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput is returned for arguments rejected before any request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when an insert hits a unique constraint.
	ErrConflict = errors.New("record already exists")
	// ErrInvalidTransition is returned when a guarded status update matched
	// the row but not the allowed source statuses.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDatabaseError wraps every other backend failure.
	ErrDatabaseError = errors.New("database error")
)

// NewNotFoundError returns an ErrNotFound naming the resource.
func NewNotFoundError(resource, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, resource, id)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ValidateStatus checks status against the allowed set.
func ValidateStatus(status string, allowed []string) error {
	status = strings.TrimSpace(status)
	for _, s := range allowed {
		if s == status {
			return nil
		}
	}
	return fmt.Errorf("%w: status %q must be one of %s", ErrInvalidInput, status, strings.Join(allowed, ", "))
}

// classify maps a backend error onto the repository sentinels while keeping
// the backend error (and its message) in the chain.
func classify(op string, err error) error {
	switch {
	case supabase.IsNoRows(err):
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	case supabase.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s: %w", ErrConflict, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrDatabaseError, op, err)
	}
}

// BackendMessage returns the backend's free-text message carried by err, or
// err.Error() when there is none.
func BackendMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := supabase.AsError(err); ok {
		return e.Message
	}
	return err.Error()
}
