package rest

import (
	"errors"
	"fmt"
)

// Sentinel errors raised by operations and storage adapters. The dispatcher is
// the single point that translates them to HTTP status codes.
var (
	// ErrNotFound means the path did not resolve or the record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMethodNotAllowed means the path resolved but the verb is not in the
	// route's allowed-method set.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrUnauthorized means the auth gate rejected the request.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports a malformed or incomplete request body.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConstraintViolation reports a unique or other constraint breach at the store.
type ConstraintViolation struct {
	Field string
	Err   error
}

func (e *ConstraintViolation) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("constraint violation on %q", e.Field)
	}
	return "constraint violation"
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid registration: duplicate path, invalid
// descriptor, or a custom handler that implements none of its whitelisted
// methods. Raised at startup, never at request time.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: path %q: %s", e.Path, e.Reason)
}

// Configf builds a ConfigurationError for the given path.
func Configf(path, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
