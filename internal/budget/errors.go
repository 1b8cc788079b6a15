package budget

import (
	"errors"
	"fmt"
)

// Error categories. Use errors.Is against these to classify any error
// returned by the core packages.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidFormat   = errors.New("invalid format")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrStorage         = errors.New("storage failure")
	ErrSerialization   = errors.New("serialization failed")
	ErrDeserialization = errors.New("deserialization failed")
	ErrDecoding        = errors.New("decoding failed")

	// ErrWrongKey means a payload was encrypted under another budget's key.
	ErrWrongKey = errors.New("payload encrypted with a different budget key")
)

// ValidationError reports bad caller input. Kind is ErrInvalidInput or ErrInvalidFormat.
type ValidationError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// NewInvalidInput returns a ValidationError of kind ErrInvalidInput.
func NewInvalidInput(field, reason string) error {
	return &ValidationError{Kind: ErrInvalidInput, Field: field, Reason: reason}
}

// NewInvalidFormat returns a ValidationError of kind ErrInvalidFormat.
func NewInvalidFormat(field, reason string) error {
	return &ValidationError{Kind: ErrInvalidFormat, Field: field, Reason: reason}
}

// NotFoundError reports a reference to an entity that does not exist.
type NotFoundError struct {
	Entity string // "branch", "tag", "commit", "backup", "snapshot"
	Name   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Entity, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports an attempt to overwrite a named pointer.
type ConflictError struct {
	Entity string
	Name   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Entity, e.Name)
}

func (e *ConflictError) Unwrap() error { return ErrAlreadyExists }

// StorageError wraps a failure of the local storage collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// IntegrityError reports data that could not be encoded, decoded or verified.
// Kind is ErrSerialization, ErrDeserialization or ErrDecoding.
type IntegrityError struct {
	Kind error
	Err  error
}

func (e *IntegrityError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IntegrityError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
