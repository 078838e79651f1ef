package clinical

import (
	"errors"
	"fmt"
)

// ValidationError is a malformed or partial learner submission. It is raised
// before any scoring or state mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ConfigurationError means the case content lacks a usable answer key. It is
// the instructor's problem, not the learner's, and never costs an attempt.
type ConfigurationError struct {
	CaseID  string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("case %s misconfigured: %s", e.CaseID, e.Message)
}

// NotFoundError is an unknown case, option or session.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

// ConflictError is a stage mismatch or a lost concurrent update.
type ConflictError struct {
	Code    string // "stage_mismatch" or "conflict"
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InternalError wraps an unexpected scoring or persistence failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

func Invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

func Misconfigured(caseID, msg string) error {
	return &ConfigurationError{CaseID: caseID, Message: msg}
}

func NotFound(resource, id string) error { return &NotFoundError{Resource: resource, ID: id} }

func Conflict(format string, args ...any) error {
	return &ConflictError{Code: "conflict", Message: fmt.Sprintf(format, args...)}
}

// StageMismatch reports a submission aimed at a stage the session is not in.
func StageMismatch(current, want Stage) error {
	return &ConflictError{
		Code:    "stage_mismatch",
		Message: fmt.Sprintf("session is in stage %s, expected %s", current, want),
	}
}

func Internal(op string, err error) error { return &InternalError{Op: op, Err: err} }

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}
