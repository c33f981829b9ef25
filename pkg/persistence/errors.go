// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrSequenceNotFound indicates a sequence definition was not found by the given identifier.
	ErrSequenceNotFound = errors.New("sequence not found")

	// ErrStepNotFound indicates a sequence step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrAssignmentNotFound indicates an assignment was not found by the given identifier.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrDuplicateActiveAssignment indicates the lead already has an active
	// assignment in the sequence.
	ErrDuplicateActiveAssignment = errors.New("lead already has an active assignment in this sequence")

	// ErrStepOrderConflict indicates two steps of one sequence would share an order.
	ErrStepOrderConflict = errors.New("step order already used in sequence")
)

// SequenceError wraps sequence-related errors with additional context.
type SequenceError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	SequenceID string
	Err        error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s operation failed for sequence %s: %v", e.Op, e.SequenceID, e.Err)
}

func (e *SequenceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sequence errors.
func (e *SequenceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSequenceError creates a new sequence error with context.
func NewSequenceError(op, sequenceID string, err error) *SequenceError {
	return &SequenceError{
		Op:         op,
		SequenceID: sequenceID,
		Err:        err,
	}
}

// StepError wraps step-related errors with additional context.
type StepError struct {
	Op         string
	SequenceID string
	StepID     string
	Err        error
}

func (e *StepError) Error() string {
	if e.SequenceID == "" {
		return fmt.Sprintf("%s operation failed for step %s: %v", e.Op, e.StepID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for step %s in sequence %s: %v", e.Op, e.StepID, e.SequenceID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// AssignmentError wraps assignment-related errors with additional context.
type AssignmentError struct {
	Op           string
	AssignmentID string
	LeadID       string
	SequenceID   string
	Err          error
}

func (e *AssignmentError) Error() string {
	if e.AssignmentID == "" {
		return fmt.Sprintf("%s operation failed for lead %s in sequence %s: %v", e.Op, e.LeadID, e.SequenceID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for assignment %s: %v", e.Op, e.AssignmentID, e.Err)
}

func (e *AssignmentError) Unwrap() error {
	return e.Err
}

func (e *AssignmentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAssignmentError creates a new assignment error keyed by assignment id.
func NewAssignmentError(op, assignmentID string, err error) *AssignmentError {
	return &AssignmentError{
		Op:           op,
		AssignmentID: assignmentID,
		Err:          err,
	}
}

// NewEnrollmentError creates a new assignment error keyed by the (lead, sequence) pair.
func NewEnrollmentError(op, leadID, sequenceID string, err error) *AssignmentError {
	return &AssignmentError{
		Op:         op,
		LeadID:     leadID,
		SequenceID: sequenceID,
		Err:        err,
	}
}

// IsSequenceNotFound checks if an error indicates a sequence was not found.
func IsSequenceNotFound(err error) bool {
	return errors.Is(err, ErrSequenceNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsAssignmentNotFound checks if an error indicates an assignment was not found.
func IsAssignmentNotFound(err error) bool {
	return errors.Is(err, ErrAssignmentNotFound)
}

// IsDuplicateActiveAssignment checks if an error indicates a rejected re-enrollment.
func IsDuplicateActiveAssignment(err error) bool {
	return errors.Is(err, ErrDuplicateActiveAssignment)
}

// IsStepOrderConflict checks if an error indicates a step order collision.
func IsStepOrderConflict(err error) bool {
	return errors.Is(err, ErrStepOrderConflict)
}
