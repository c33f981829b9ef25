// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/tracker"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidStatus      = errors.New("invalid assignment status")
	ErrNameRequired       = errors.New("sequence name is required")
	ErrTriggerTagRequired = errors.New("step trigger tag is required")
	ErrNegativeDelay      = errors.New("step delay cannot be negative")
	ErrLeadIDRequired     = tracker.ErrLeadIDRequired

	// Missing lead on manual enrollment (404 Not Found).
	ErrLeadNotFound = leads.ErrLeadNotFound

	// Business Logic Conflicts (409 Conflict).
	ErrDuplicateActiveAssignment = tracker.ErrDuplicateActiveAssignment
	ErrSequenceInactive          = tracker.ErrSequenceInactive
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrTriggerTagRequired) ||
		errors.Is(err, ErrNegativeDelay) ||
		errors.Is(err, ErrLeadIDRequired)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateActiveAssignment) ||
		errors.Is(err, ErrSequenceInactive)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
