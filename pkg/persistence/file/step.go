package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/google/uuid"
)

// StepRepository manages steps embedded in their sequence document.
type StepRepository struct {
	store *store
}

func (r *StepRepository) sequences() *SequenceRepository {
	return &SequenceRepository{store: r.store}
}

func (r *StepRepository) GetBySequence(_ context.Context, sequenceID string) ([]*models.SequenceStep, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	sequence, err := r.sequences().load(sequenceID)
	if err != nil {
		return nil, err
	}

	return sequence.Steps, nil
}

func (r *StepRepository) GetByID(_ context.Context, id string) (*models.SequenceStep, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	sequence, index, err := r.find(id)
	if err != nil {
		return nil, err
	}

	return sequence.Steps[index], nil
}

func (r *StepRepository) Create(_ context.Context, step *models.SequenceStep) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sequence, err := r.sequences().load(step.SequenceID)
	if err != nil {
		return err
	}

	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	step.Order = sequence.NextOrder()
	sequence.LastStepOrder = step.Order
	sequence.Steps = append(sequence.Steps, step)
	sequence.UpdatedAt = time.Now().UTC()

	return r.store.write(sequencesDir, sequence.ID, sequence)
}

func (r *StepRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sequence, index, err := r.find(id)
	if err != nil {
		return err
	}

	sequence.Steps = append(sequence.Steps[:index], sequence.Steps[index+1:]...)
	sequence.UpdatedAt = time.Now().UTC()

	return r.store.write(sequencesDir, sequence.ID, sequence)
}

// find locates the sequence owning a step; the caller holds the lock.
func (r *StepRepository) find(stepID string) (*models.SequenceDefinition, int, error) {
	all, err := r.sequences().loadAll()
	if err != nil {
		return nil, 0, err
	}

	for _, sequence := range all {
		for i, step := range sequence.Steps {
			if step.ID == stepID {
				return sequence, i, nil
			}
		}
	}

	return nil, 0, &persistence.StepError{Op: "GetByID", StepID: stepID, Err: persistence.ErrStepNotFound}
}
