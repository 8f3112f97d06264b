package core

import "github.com/pkg/errors"

var (
	// ErrStoreUnavailable means the backing store could not be reached or timed out.
	// It never means "not found" nor "not completed".
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflictTarget means an upsert conflict target matches no uniqueness constraint.
	// This is a schema misconfiguration: not retryable.
	ErrConflictTarget = errors.New("upsert conflict target matches no unique constraint")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// StoreError wraps a driver error behind ErrStoreUnavailable while keeping the original cause.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func (err *StoreError) Error() string {
	return err.Op + ": " + ErrStoreUnavailable.Error() + ": " + err.Err.Error()
}

func (err *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }
func (err *StoreError) Unwrap() error        { return err.Err }

// IsRetryable reports whether a failed operation may succeed if attempted again.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrConflictTarget) {
		return false
	}
	var vErr *ValidationError
	return !errors.As(err, &vErr)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
