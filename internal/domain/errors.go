// Package domain defines core types, interfaces, and errors for the publishing pipeline.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., a run already active for a branch).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// StatementError is returned by the session gateway when a statement fails.
// Err is the engine error exactly as the driver reported it.
type StatementError struct {
	Index     int // zero-based position within the Execute call
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %v", e.Index+1, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// CatalogError is a fatal catalog failure annotated with the operation and the
// branch/dataset it was attempted against.
type CatalogError struct {
	Op      string // create_branch, ensure_table, refresh_metadata, merge_branch, drop_branch
	Branch  string
	Dataset string
	Err     error
}

func (e *CatalogError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Branch != "" {
		fmt.Fprintf(&b, " branch=%q", e.Branch)
	}
	if e.Dataset != "" {
		fmt.Fprintf(&b, " dataset=%q", e.Dataset)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *CatalogError) Unwrap() error { return e.Err }
