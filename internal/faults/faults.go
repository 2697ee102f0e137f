// Package faults defines the error taxonomy shared across the render
// pipeline. All fatal pipeline errors are one of these types; transient
// polling hiccups are logged and retried where they occur and never surface
// here.
package faults

import (
	"errors"
	"fmt"
)

// ExternalServiceError reports a non-2xx response or an explicit failed state
// from a remote API. Fatal for the affected unit of work.
type ExternalServiceError struct {
	Service string
	Status  int // HTTP status, 0 when the failure is not HTTP-level
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s returned status %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// External wraps err as an ExternalServiceError.
func External(service string, status int, err error) error {
	return &ExternalServiceError{Service: service, Status: status, Err: err}
}

// Externalf builds an ExternalServiceError from a formatted message.
func Externalf(service string, status int, format string, args ...any) error {
	return &ExternalServiceError{Service: service, Status: status, Err: fmt.Errorf(format, args...)}
}

// TimeoutError reports that a poll deadline elapsed before an external job
// resolved. The remote job may continue running unobserved.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout builds a TimeoutError for the named operation.
func Timeout(operation string, format string, args ...any) error {
	return &TimeoutError{Operation: operation, Err: fmt.Errorf(format, args...)}
}

// ValidationError reports missing required credentials or fields. Fatal
// immediately, never retried.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError from a formatted message.
func Invalid(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// PartialBatchError reports that a batch resolved fewer items than requested.
// Raised only after every worker in the batch has finished.
type PartialBatchError struct {
	Requested int
	Resolved  int
	Errs      []error // per-index failures, nil entries for successes
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("batch resolved %d/%d items", e.Resolved, e.Requested)
}

func (e *PartialBatchError) Unwrap() []error { return e.Errs }

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
