package executor

import (
	"fmt"

	"github.com/dukex/followup/pkg/gateway"
	"github.com/dukex/followup/pkg/leads"
)

// ErrLeadNotFound is reported when the assignment's lead is missing from the directory.
var ErrLeadNotFound = leads.ErrLeadNotFound

// GatewayError reports a failed tag application for one assignment.
type GatewayError struct {
	AssignmentID string
	Tag          string
	Permanent    bool
	Err          error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("applying tag %q for assignment %s failed: %v", e.Tag, e.AssignmentID, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func newGatewayError(assignmentID, tag string, err error) *GatewayError {
	return &GatewayError{
		AssignmentID: assignmentID,
		Tag:          tag,
		Permanent:    gateway.IsPermanent(err),
		Err:          err,
	}
}
