// Package gateway applies trigger tags to leads in the external CRM.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/followup/pkg/models"
)

// TagRequest is one step's instruction for the CRM.
type TagRequest struct {
	Lead         *models.Lead
	Tag          string
	Subject      string
	SequenceID   string
	AssignmentID string
	StepOrder    int
}

// Gateway applies a tag to a lead. Implementations must return an *Error
// so callers can tell transient from permanent failures.
type Gateway interface {
	ApplyTag(ctx context.Context, req TagRequest) error
}

// Error describes a failed tag application.
type Error struct {
	Permanent  bool
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}

	if e.StatusCode != 0 {
		return fmt.Sprintf("%s gateway error (HTTP %d): %v", kind, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s gateway error: %v", kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable gateway failure.
func Transient(err error) *Error {
	return &Error{Err: err}
}

// Permanent wraps err as a failure that retrying will not fix.
func Permanent(err error) *Error {
	return &Error{Permanent: true, Err: err}
}

// IsPermanent reports whether err carries a permanent gateway failure.
func IsPermanent(err error) bool {
	var gatewayErr *Error

	return errors.As(err, &gatewayErr) && gatewayErr.Permanent
}
