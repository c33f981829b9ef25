package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
)

var (
	// ErrSequenceNotFound is returned when a sequence definition is not found.
	ErrSequenceNotFound = persistence.ErrSequenceNotFound

	// ErrStepNotFound is returned when a step is not found in the sequence.
	ErrStepNotFound = persistence.ErrStepNotFound
)

type Sequence struct {
	persistence persistence.Persistence
}

// NewSequence creates a new sequence definition service.
func NewSequence(persistence persistence.Persistence) *Sequence {
	return &Sequence{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Sequence) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateSequenceRequest holds the fields of a new definition.
type CreateSequenceRequest struct {
	Name               string
	Description        string
	AutoAssignNewLeads bool
}

// UpdateSequenceRequest holds a partial update; nil fields are left unchanged.
type UpdateSequenceRequest struct {
	Name               *string
	Description        *string
	Active             *bool
	AutoAssignNewLeads *bool
}

// AddStepRequest holds the fields of a new step. The order is assigned by storage.
type AddStepRequest struct {
	DelayDays   int
	TriggerTag  string
	Subject     string
	Description string
}

// List returns every definition with its steps.
func (s *Sequence) List(ctx context.Context) ([]*models.SequenceDefinition, error) {
	sequences, err := s.persistence.SequenceRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequences: %w", err)
	}

	return sequences, nil
}

// FetchByID retrieves a definition and its steps.
func (s *Sequence) FetchByID(ctx context.Context, id string) (*models.SequenceDefinition, error) {
	return s.persistence.SequenceRepository().GetByID(ctx, id)
}

// Create stores a new, active definition without steps.
func (s *Sequence) Create(ctx context.Context, req CreateSequenceRequest) (*models.SequenceDefinition, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	sequence := &models.SequenceDefinition{
		Name:               name,
		Description:        req.Description,
		Active:             true,
		AutoAssignNewLeads: req.AutoAssignNewLeads,
		Steps:              []*models.SequenceStep{},
	}

	err := s.persistence.SequenceRepository().Save(ctx, sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence: %w", err)
	}

	return sequence, nil
}

// Update applies a partial update to an existing definition.
func (s *Sequence) Update(ctx context.Context, id string, req UpdateSequenceRequest) (*models.SequenceDefinition, error) {
	existing, err := s.persistence.SequenceRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrNameRequired
		}

		existing.Name = name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Active != nil {
		existing.Active = *req.Active
	}

	if req.AutoAssignNewLeads != nil {
		existing.AutoAssignNewLeads = *req.AutoAssignNewLeads
	}

	err = s.persistence.SequenceRepository().Save(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("failed to update sequence: %w", err)
	}

	return existing, nil
}

// Delete removes a definition and its steps. Assignments stay readable and
// complete on their next scan.
func (s *Sequence) Delete(ctx context.Context, id string) error {
	return s.persistence.SequenceRepository().Delete(ctx, id)
}

// AddStep appends a step; its order is one past the highest order the
// sequence ever had.
func (s *Sequence) AddStep(ctx context.Context, sequenceID string, req AddStepRequest) (*models.SequenceStep, error) {
	if req.DelayDays < 0 {
		return nil, ErrNegativeDelay
	}

	tag := strings.TrimSpace(req.TriggerTag)
	if tag == "" {
		return nil, ErrTriggerTagRequired
	}

	step := &models.SequenceStep{
		SequenceID:  sequenceID,
		DelayDays:   req.DelayDays,
		TriggerTag:  tag,
		Subject:     req.Subject,
		Description: req.Description,
	}

	err := s.persistence.StepRepository().Create(ctx, step)
	if err != nil {
		return nil, err
	}

	return step, nil
}

// Steps lists the steps of a sequence sorted by order.
func (s *Sequence) Steps(ctx context.Context, sequenceID string) ([]*models.SequenceStep, error) {
	return s.persistence.StepRepository().GetBySequence(ctx, sequenceID)
}

// RemoveStep deletes a step of the sequence. Remaining steps keep their orders.
func (s *Sequence) RemoveStep(ctx context.Context, sequenceID, stepID string) error {
	step, err := s.persistence.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		return err
	}

	if step.SequenceID != sequenceID {
		return &persistence.StepError{Op: "RemoveStep", SequenceID: sequenceID, StepID: stepID, Err: ErrStepNotFound}
	}

	return s.persistence.StepRepository().Delete(ctx, stepID)
}
