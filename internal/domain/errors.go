package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrGuardViolation   = errors.New("guard violation")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type GuardFailure struct {
	Guard  Guard
	Reason string
}

// GuardViolation lists every guard of a transition that did not pass.
type GuardViolation struct {
	TaskID       string
	TransitionID string
	Failures     []GuardFailure
}

func (e *GuardViolation) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Guard.Kind, f.Reason))
	}
	return fmt.Sprintf("guard violation on task %s: %s", e.TaskID, strings.Join(parts, "; "))
}

func (e *GuardViolation) Is(target error) bool { return target == ErrGuardViolation }

// PermissionDenied names the tasks the actor may not act on.
type PermissionDenied struct {
	TaskIDs  []string
	BoardID  string
	Required string
}

func (e *PermissionDenied) Error() string {
	switch {
	case len(e.TaskIDs) > 0:
		return fmt.Sprintf("permission denied: %s role required on tasks %s", e.Required, strings.Join(e.TaskIDs, ", "))
	case e.BoardID != "":
		return fmt.Sprintf("permission denied: %s role required on board %s", e.Required, e.BoardID)
	default:
		return fmt.Sprintf("permission denied: %s role required", e.Required)
	}
}

func (e *PermissionDenied) Is(target error) bool { return target == ErrPermissionDenied }

type NotFoundError struct {
	Kind string
	ID   string
}

func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a request that contradicts existing state.
type ConflictError struct {
	Reason string
	TaskID string
}

func Conflict(reason string) *ConflictError {
	return &ConflictError{Reason: reason}
}

func (e *ConflictError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("conflict on task %s: %s", e.TaskID, e.Reason)
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// BatchItemError attributes a batch failure to one input item.
type BatchItemError struct {
	Index  int
	TaskID string
	Err    error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d (task %s): %v", e.Index, e.TaskID, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }
