package caller

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("clinic not found")
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrAuthFailed is what the outside sees for both ErrNotFound and ErrInvalidCredential.
	ErrAuthFailed = errors.New("invalid clinic number or password")
	ErrPaused     = errors.New("queue is paused")
)

// ValidationError is returned before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientWriteError wraps a failed channel operation. Nothing retries it.
type TransientWriteError struct {
	Op  string
	Err error
}

func (e *TransientWriteError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransientWriteError) Unwrap() error {
	return e.Err
}
