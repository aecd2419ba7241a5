// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrUpstream    = errors.New("upstream error")
	ErrInternal    = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped class sentinel for errors.Is() classification
	Code     error  // Optional domain sentinel (e.g. job.ErrLockContention)
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "task_id")
	Resource string // For not found/conflict (e.g., "job")
	ID       string // Identifier of the resource involved, if any
	Op       string // Operation that failed (e.g., "redis.get")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the class sentinel, the domain code and the cause to errors.Is().
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 3)
	for _, err := range []error{e.Sentinel, e.Code, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// WithCode returns a copy of the error tagged with a domain sentinel.
func (e *Error) WithCode(code error) *Error {
	c := *e
	c.Code = code
	return &c
}

// WithCause returns a copy of the error wrapping an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) *Error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
		ID:       id,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) *Error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
		ID:       id,
	}
}

// Unavailable creates a transient error; callers may retry later.
func Unavailable(op, message string) *Error {
	return &Error{
		Sentinel: ErrUnavailable,
		Message:  message,
		Op:       op,
	}
}

// Upstream creates an error for data a dependency reported that cannot be interpreted.
func Upstream(op, message string) *Error {
	return &Error{
		Sentinel: ErrUpstream,
		Message:  message,
		Op:       op,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) *Error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// IDOf returns the resource identifier carried by a structured error.
func IDOf(err error) (string, bool) {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.ID == "" {
		return "", false
	}
	return appErr.ID, true
}
