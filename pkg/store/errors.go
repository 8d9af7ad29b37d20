package store

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden means the caller does not own the referenced entity.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the referenced entity does not exist (anymore).
	ErrNotFound = errors.New("not found")
	// ErrReadOnly is returned for writes while the application is in read-only mode.
	ErrReadOnly = errors.New("operation denied: application is in read-only mode")
	// ErrValidation matches every *ValidationError through errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports malformed input before it reaches the database.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf wraps ErrNotFound with the missing entity's description.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
