package apikey

import (
	"errors"
	"fmt"
)

// Sentinel errors for API key operations.
var (
	// ErrKeyNotFound indicates that no key matched a scoped lookup. A key
	// owned by a different tenant is indistinguishable from a missing key.
	ErrKeyNotFound = errors.New("API key not found")

	// ErrDuplicateDigest indicates a digest collision on insert. Callers
	// should regenerate the secret and retry once.
	ErrDuplicateDigest = errors.New("API key digest already exists")
)

// ValidationError indicates invalid caller input. Collaborating layers map
// it to a 400-class response.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// Is allows errors.Is matching against any *ValidationError target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps an underlying persistence failure. The original cause
// is preserved for logging; client-visible layers must surface only a
// generic message.
type StorageError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError wraps err with the failing operation name.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Cause: err}
}

// IsStorageError reports whether err is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
