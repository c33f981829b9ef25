package tracker

import (
	"errors"

	"github.com/dukex/followup/pkg/persistence"
)

var (
	// ErrDefinitionNotFound is returned when enrolling into a sequence that does not exist.
	ErrDefinitionNotFound = persistence.ErrSequenceNotFound

	// ErrAssignmentNotFound is returned when the assignment id is unknown.
	ErrAssignmentNotFound = persistence.ErrAssignmentNotFound

	// ErrDuplicateActiveAssignment is returned when the lead is already active in the sequence.
	ErrDuplicateActiveAssignment = persistence.ErrDuplicateActiveAssignment

	// ErrSequenceInactive is returned when enrolling into a deactivated sequence.
	ErrSequenceInactive = errors.New("sequence is inactive")

	// ErrLeadIDRequired is returned when enrolling without a lead id.
	ErrLeadIDRequired = errors.New("lead id is required")

	// ErrConcurrentUpdate is returned when an assignment kept changing under a
	// read-modify-write cycle.
	ErrConcurrentUpdate = errors.New("assignment changed concurrently")
)
