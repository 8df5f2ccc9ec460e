// Package persistence provides standardized error types shared by all
// storage implementations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrDefinitionNotFound indicates no definition matches the identifier.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrDefinitionConflict indicates a different definition is already
	// registered under the same (use case, version).
	ErrDefinitionConflict = errors.New("workflow definition conflict")

	// ErrRunNotFound indicates a run was not found by id.
	ErrRunNotFound = errors.New("run not found")

	// ErrApprovalNotFound indicates no pending approval exists for the key.
	ErrApprovalNotFound = errors.New("approval request not found")

	// ErrScheduleNotFound indicates a schedule entry was not found.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// StoreError wraps storage failures with operation context.
type StoreError struct {
	Op  string // operation being performed, e.g. "SaveRun"
	Key string // entity key if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsDefinitionNotFound reports whether err means a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsRunNotFound reports whether err means a missing run.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsDefinitionConflict reports whether err means a conflicting registration.
func IsDefinitionConflict(err error) bool {
	return errors.Is(err, ErrDefinitionConflict)
}
