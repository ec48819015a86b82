package domain

import (
	"errors"
	"fmt"
)

// Entity kinds used in NotFoundError and ConflictError.
const (
	EntityProject = "project"
	EntityTask    = "task"
)

// NotFoundError is returned when a referenced project or task does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ValidationError is returned when a request field is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// InvalidTransitionError is returned when the requested status is not reachable
// from the task's current status.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s cannot move from %s to %s", e.TaskID, e.From, e.To)
}

// ConflictError is returned when a uniqueness constraint would be violated.
type ConflictError struct {
	Entity string
	Field  string
	Value  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// TransactionError is returned when an atomic unit could not complete.
// The inner cause is kept so callers can still classify it with errors.As.
type TransactionError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s task %s failed: %v", e.Op, e.TaskID, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// InternalError wraps any other unexpected collaborator failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// RateLimitExceededError is returned when an actor exceeds its mutation rate.
type RateLimitExceededError struct {
	Key   string
	Limit int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: limit is %d", e.Key, e.Limit)
}

// IsClientError reports whether err (or anything it wraps) is a condition the
// caller can correct. Such errors are safe to report verbatim.
func IsClientError(err error) bool {
	var (
		notFound   *NotFoundError
		validation *ValidationError
		transition *InvalidTransitionError
		conflict   *ConflictError
		limited    *RateLimitExceededError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &validation) ||
		errors.As(err, &transition) ||
		errors.As(err, &conflict) ||
		errors.As(err, &limited)
}
