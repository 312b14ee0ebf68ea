package library

import (
	"errors"
	"fmt"
)

// ErrorClassifier allows errors to declare their classification so callers
// can separate operator mistakes from storage failures.
type ErrorClassifier interface {
	// ErrorKind returns "validation" for bad input; storage errors do not implement it.
	ErrorKind() string
}

// ValidationError reports unusable input such as an unknown asset kind or a
// non-positive identifier.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrorKind implements ErrorClassifier.
func (e *ValidationError) ErrorKind() string { return "validation" }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err (or anything it wraps) classifies as a validation error.
func IsValidation(err error) bool {
	var classifier ErrorClassifier
	return errors.As(err, &classifier) && classifier.ErrorKind() == "validation"
}
