package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types for the mileage log core
var (
	// Ledger errors
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRenewUnavailable = errors.New("silent renewal unavailable")

	// Login flow errors
	ErrInvalidState = errors.New("invalid login state")
	ErrInvalidNonce = errors.New("invalid nonce")

	// Remote errors
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRemoteRejected     = errors.New("remote rejected")

	// General errors
	ErrUnsupported = errors.New("unsupported operation")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError lists the fields that failed validation. It matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RemoteRejectedError is a permanent per-record failure reported by the remote store.
type RemoteRejectedError struct {
	Reason string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRemoteRejected.Error(), e.Reason)
}

func (e *RemoteRejectedError) Unwrap() error {
	return ErrRemoteRejected
}

// Rejected builds a RemoteRejectedError from a formatted reason.
func Rejected(format string, args ...interface{}) error {
	return &RemoteRejectedError{Reason: fmt.Sprintf(format, args...)}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
