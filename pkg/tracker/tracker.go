// Package tracker owns the lifecycle of sequence assignments: enrollment,
// step advancement, failure bookkeeping and removal.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

const (
	// anyStepOrder lets mutateAt write whatever step the row is at.
	anyStepOrder = -1
	// maxConflictRetries bounds read-modify-write retries after a lost conditional update.
	maxConflictRetries = 5

	// maxLastErrorLength caps the stored failure message.
	maxLastErrorLength = 1024
)

// Tracker mutates assignments exclusively through conditional updates, so
// overlapping scans and API calls never apply one step twice.
type Tracker struct {
	persistence persistence.Persistence
	clock       clockwork.Clock
	logger      *slog.Logger
}

// New creates a tracker. A nil clock means the real clock.
func New(p persistence.Persistence, clock clockwork.Clock, logger *slog.Logger) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Tracker{
		persistence: p,
		clock:       clock,
		logger:      logger.With("module", "tracker"),
	}
}

// AdvanceResult describes the outcome of Advance.
type AdvanceResult struct {
	// Assignment is the stored row after the call; on a lost race it is the fresh row.
	Assignment *models.SequenceAssignment
	// Step is the step that fired, nil when the assignment completed without firing one.
	Step *models.SequenceStep
	// Advanced is false when the row was no longer active or another writer won.
	Advanced bool
	// Completed is true when this call moved the assignment to completed.
	Completed bool
}

// Enroll creates an active assignment of the lead in the sequence. A sequence
// without steps completes the assignment at once.
func (t *Tracker) Enroll(ctx context.Context, leadID, sequenceID string) (*models.SequenceAssignment, error) {
	if leadID == "" {
		return nil, ErrLeadIDRequired
	}

	sequence, err := t.persistence.SequenceRepository().GetByID(ctx, sequenceID)
	if err != nil {
		return nil, err
	}

	return t.EnrollInto(ctx, leadID, sequence)
}

// EnrollInto enrolls the lead into an already loaded definition.
func (t *Tracker) EnrollInto(ctx context.Context, leadID string, sequence *models.SequenceDefinition) (*models.SequenceAssignment, error) {
	if leadID == "" {
		return nil, ErrLeadIDRequired
	}

	if !sequence.Active {
		return nil, persistence.NewEnrollmentError("Enroll", leadID, sequence.ID, ErrSequenceInactive)
	}

	now := t.clock.Now().UTC()

	assignment := &models.SequenceAssignment{
		LeadID:     leadID,
		SequenceID: sequence.ID,
		Status:     models.AssignmentStatusActive,
		StartedAt:  now,
		UpdatedAt:  now,
	}

	first := models.StepAfter(sequence.Steps, 0)
	if first == nil {
		assignment.Status = models.AssignmentStatusCompleted
		assignment.CompletedAt = &now
	} else {
		due := now.Add(first.Delay())
		assignment.NextStepDueAt = &due
	}

	err := t.persistence.AssignmentRepository().Create(ctx, assignment)
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "lead enrolled",
		"assignment_id", assignment.ID,
		"lead_id", leadID,
		"sequence_id", sequence.ID,
		"status", assignment.Status,
	)

	return assignment, nil
}

// Remove moves an active assignment to removed. Terminal assignments are returned unchanged.
func (t *Tracker) Remove(ctx context.Context, assignmentID string) (*models.SequenceAssignment, error) {
	assignment, _, err := t.mutate(ctx, assignmentID, func(a *models.SequenceAssignment, now time.Time) {
		a.Status = models.AssignmentStatusRemoved
		a.RemovedAt = &now
		a.RemovalReason = models.RemovalReasonManual
		a.NextStepDueAt = nil
	})
	if err != nil {
		return nil, err
	}

	return assignment, nil
}

// ListDue returns active assignments due at asOf, oldest due first. A limit <= 0 returns all.
func (t *Tracker) ListDue(ctx context.Context, asOf time.Time, limit int) ([]*models.SequenceAssignment, error) {
	due, err := t.persistence.AssignmentRepository().Due(ctx, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due assignments: %w", err)
	}

	return due, nil
}

// Get returns one assignment.
func (t *Tracker) Get(ctx context.Context, assignmentID string) (*models.SequenceAssignment, error) {
	return t.persistence.AssignmentRepository().GetByID(ctx, assignmentID)
}

// Advance fires the next step of the assignment as of executedAt, reading
// the current step order from storage.
func (t *Tracker) Advance(ctx context.Context, assignmentID string, executedAt time.Time) (*AdvanceResult, error) {
	assignment, err := t.persistence.AssignmentRepository().GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	return t.AdvanceFrom(ctx, assignment, executedAt)
}

// AdvanceFrom fires the step after observed.CurrentStepOrder. The write only
// lands if the stored row is still active at that order, so a caller acting
// on a stale row advances nothing.
func (t *Tracker) AdvanceFrom(ctx context.Context, observed *models.SequenceAssignment, executedAt time.Time) (*AdvanceResult, error) {
	if !observed.IsActive() {
		return &AdvanceResult{Assignment: observed}, nil
	}

	steps, err := t.stepsOf(ctx, observed.SequenceID)
	if err != nil {
		return nil, err
	}

	executedAt = executedAt.UTC()
	updated := observed.Clone()
	updated.UpdatedAt = t.clock.Now().UTC()

	result := &AdvanceResult{Assignment: updated}

	var after *models.SequenceStep

	next := models.StepAfter(steps, observed.CurrentStepOrder)
	if next != nil {
		updated.CurrentStepOrder = next.Order
		updated.LastStepExecutedAt = &executedAt
		updated.FailedAttempts = 0
		updated.LastError = ""
		result.Step = next
		after = models.StepAfter(steps, next.Order)
	}

	if after != nil {
		due := executedAt.Add(after.Delay())
		updated.NextStepDueAt = &due
	} else {
		updated.Status = models.AssignmentStatusCompleted
		updated.CompletedAt = &executedAt
		updated.NextStepDueAt = nil
		result.Completed = true
	}

	ok, err := t.persistence.AssignmentRepository().UpdateIfActive(ctx, updated, observed.CurrentStepOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to advance assignment %s: %w", observed.ID, err)
	}

	if !ok {
		fresh, err := t.persistence.AssignmentRepository().GetByID(ctx, observed.ID)
		if err != nil {
			return nil, err
		}

		t.logger.DebugContext(ctx, "advance lost to concurrent writer",
			"assignment_id", observed.ID,
			"expected_step_order", observed.CurrentStepOrder,
			"current_step_order", fresh.CurrentStepOrder,
			"status", fresh.Status,
		)

		return &AdvanceResult{Assignment: fresh}, nil
	}

	result.Advanced = true

	t.logger.InfoContext(ctx, "assignment advanced",
		"assignment_id", updated.ID,
		"lead_id", updated.LeadID,
		"sequence_id", updated.SequenceID,
		"step_order", updated.CurrentStepOrder,
		"status", updated.Status,
	)

	return result, nil
}

// FailureResult describes the outcome of RecordFailure.
type FailureResult struct {
	// Assignment is the stored row after the call.
	Assignment *models.SequenceAssignment
	// Recorded is false when the row had already moved past the attempted step
	// or left the active state, in which case nothing was written.
	Recorded bool
}

// RecordFailure notes a failed attempt on the step after
// observed.CurrentStepOrder. The due time is left unchanged so the next scan
// retries. With maxAttempts > 0 the assignment is removed once that many
// consecutive attempts failed. A row that advanced since it was observed is
// returned untouched.
func (t *Tracker) RecordFailure(
	ctx context.Context,
	observed *models.SequenceAssignment,
	cause error,
	maxAttempts int,
) (*FailureResult, error) {
	message := cause.Error()
	if len(message) > maxLastErrorLength {
		message = message[:maxLastErrorLength]
	}

	assignment, changed, err := t.mutateAt(ctx, observed.ID, observed.CurrentStepOrder, func(a *models.SequenceAssignment, now time.Time) {
		a.FailedAttempts++
		a.LastError = message

		if maxAttempts > 0 && a.FailedAttempts >= maxAttempts {
			a.Status = models.AssignmentStatusRemoved
			a.RemovedAt = &now
			a.RemovalReason = models.RemovalReasonMaxAttemptsReached
			a.NextStepDueAt = nil
		}
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		t.logger.DebugContext(ctx, "failure not recorded, assignment moved on",
			"assignment_id", observed.ID,
			"attempted_step_order", observed.CurrentStepOrder,
			"current_step_order", assignment.CurrentStepOrder,
			"status", assignment.Status,
		)

		return &FailureResult{Assignment: assignment}, nil
	}

	if assignment.Status == models.AssignmentStatusRemoved {
		t.logger.WarnContext(ctx, "assignment removed after repeated failures",
			"assignment_id", assignment.ID,
			"lead_id", assignment.LeadID,
			"failed_attempts", assignment.FailedAttempts,
			"last_error", assignment.LastError,
		)
	}

	return &FailureResult{Assignment: assignment, Recorded: true}, nil
}

// mutate applies change to a fresh copy of an active assignment and writes it
// conditionally, retrying when another writer got there first. Terminal rows
// are returned untouched.
func (t *Tracker) mutate(
	ctx context.Context,
	assignmentID string,
	change func(a *models.SequenceAssignment, now time.Time),
) (*models.SequenceAssignment, bool, error) {
	return t.mutateAt(ctx, assignmentID, anyStepOrder, change)
}

// mutateAt is mutate restricted to rows still at expectedOrder; anyStepOrder
// lifts the restriction.
func (t *Tracker) mutateAt(
	ctx context.Context,
	assignmentID string,
	expectedOrder int,
	change func(a *models.SequenceAssignment, now time.Time),
) (*models.SequenceAssignment, bool, error) {
	repo := t.persistence.AssignmentRepository()

	for range maxConflictRetries {
		current, err := repo.GetByID(ctx, assignmentID)
		if err != nil {
			return nil, false, err
		}

		if !current.IsActive() {
			return current, false, nil
		}

		if expectedOrder != anyStepOrder && current.CurrentStepOrder != expectedOrder {
			return current, false, nil
		}

		now := t.clock.Now().UTC()
		updated := current.Clone()
		updated.UpdatedAt = now
		change(updated, now)

		ok, err := repo.UpdateIfActive(ctx, updated, current.CurrentStepOrder)
		if err != nil {
			return nil, false, fmt.Errorf("failed to update assignment %s: %w", assignmentID, err)
		}

		if ok {
			return updated, true, nil
		}
	}

	return nil, false, persistence.NewAssignmentError("Update", assignmentID, ErrConcurrentUpdate)
}

// stepsOf returns the sequence's steps; a deleted sequence has none.
func (t *Tracker) stepsOf(ctx context.Context, sequenceID string) ([]*models.SequenceStep, error) {
	sequence, err := t.persistence.SequenceRepository().GetByID(ctx, sequenceID)
	if err != nil {
		if persistence.IsSequenceNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return sequence.Steps, nil
}
