package fragment

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("fragment not found")

	// ErrUnbound is returned by persistence methods on a fragment that was
	// built with New rather than through a Repository.
	ErrUnbound = errors.New("fragment is not bound to a repository")
)

// ValidationError reports input that violates a fragment invariant.
// It is always returned before any store is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that no metadata exists for (OwnerID, ID).
type NotFoundError struct {
	OwnerID string
	ID      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fragment not found for id=%s", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true for any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
