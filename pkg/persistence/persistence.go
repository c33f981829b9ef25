// Package persistence provides the storage abstraction for sequence
// definitions, their steps and lead assignments.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/followup/pkg/models"
)

type Persistence interface {
	SequenceRepository() SequenceRepository
	StepRepository() StepRepository
	AssignmentRepository() AssignmentRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// SequenceRepository stores sequence definitions. Definitions returned by
// GetByID and GetAll carry their steps sorted by order.
type SequenceRepository interface {
	GetAll(ctx context.Context) ([]*models.SequenceDefinition, error)
	GetByID(ctx context.Context, id string) (*models.SequenceDefinition, error)
	// AutoAssignable returns active definitions flagged for auto-enrollment.
	AutoAssignable(ctx context.Context) ([]*models.SequenceDefinition, error)
	// Save inserts or updates the definition's own fields; steps are
	// managed through StepRepository.
	Save(ctx context.Context, sequence *models.SequenceDefinition) error
	// Delete removes the definition and cascades to its steps. Assignments
	// referencing it are left untouched.
	Delete(ctx context.Context, id string) error
}

type StepRepository interface {
	GetBySequence(ctx context.Context, sequenceID string) ([]*models.SequenceStep, error)
	GetByID(ctx context.Context, id string) (*models.SequenceStep, error)
	// Create assigns step.Order from the sequence's high-water mark and
	// inserts the step atomically with the mark update.
	Create(ctx context.Context, step *models.SequenceStep) error
	Delete(ctx context.Context, id string) error
}

// ListAssignmentsOptions filters assignment listings. Zero values match all.
type ListAssignmentsOptions struct {
	SequenceID string
	LeadID     string
	Status     *models.AssignmentStatus
	Limit      int
	Offset     int
}

type AssignmentRepository interface {
	// Create inserts a new assignment and fails with
	// ErrDuplicateActiveAssignment when the lead already has an active
	// assignment in the same sequence.
	Create(ctx context.Context, assignment *models.SequenceAssignment) error
	GetByID(ctx context.Context, id string) (*models.SequenceAssignment, error)
	List(ctx context.Context, opts ListAssignmentsOptions) ([]*models.SequenceAssignment, error)
	// Due returns active assignments with next_step_due_at <= asOf ordered
	// oldest due first. A limit <= 0 means no limit.
	Due(ctx context.Context, asOf time.Time, limit int) ([]*models.SequenceAssignment, error)
	// UpdateIfActive writes every mutable field of assignment in one atomic
	// step, but only when the stored row is still active and still at
	// expectedStepOrder. It returns false when the precondition failed.
	UpdateIfActive(ctx context.Context, assignment *models.SequenceAssignment, expectedStepOrder int) (bool, error)
}
