package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/google/uuid"
)

// SequenceRepository stores each definition, steps included, as one JSON document.
type SequenceRepository struct {
	store *store
}

func (r *SequenceRepository) GetAll(_ context.Context) ([]*models.SequenceDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.loadAll()
}

func (r *SequenceRepository) GetByID(_ context.Context, id string) (*models.SequenceDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.load(id)
}

func (r *SequenceRepository) AutoAssignable(_ context.Context) ([]*models.SequenceDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	sequences := make([]*models.SequenceDefinition, 0)

	for _, sequence := range all {
		if sequence.Active && sequence.AutoAssignNewLeads {
			sequences = append(sequences, sequence)
		}
	}

	return sequences, nil
}

func (r *SequenceRepository) Save(_ context.Context, sequence *models.SequenceDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()

	if sequence.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate sequence ID: %w", err)
		}

		sequence.ID = id.String()
	}

	if sequence.CreatedAt.IsZero() {
		sequence.CreatedAt = now
	}

	sequence.UpdatedAt = now

	stored := *sequence
	stored.Steps = nil

	existing, err := r.load(sequence.ID)

	switch {
	case err == nil:
		stored.Steps = existing.Steps
		stored.LastStepOrder = max(existing.LastStepOrder, sequence.LastStepOrder)
	case !persistence.IsSequenceNotFound(err):
		return err
	}

	sequence.Steps = stored.Steps
	sequence.LastStepOrder = stored.LastStepOrder

	return r.store.write(sequencesDir, sequence.ID, &stored)
}

func (r *SequenceRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.store.remove(sequencesDir, id)
	if err != nil {
		if isNotExist(err) {
			return persistence.NewSequenceError("Delete", id, persistence.ErrSequenceNotFound)
		}

		return fmt.Errorf("failed to delete sequence %s: %w", id, err)
	}

	return nil
}

// load reads one definition; the caller holds the lock.
func (r *SequenceRepository) load(id string) (*models.SequenceDefinition, error) {
	var sequence models.SequenceDefinition

	err := r.store.read(sequencesDir, id, &sequence)
	if err != nil {
		if isNotExist(err) {
			return nil, persistence.NewSequenceError("GetByID", id, persistence.ErrSequenceNotFound)
		}

		return nil, fmt.Errorf("failed to fetch sequence %s: %w", id, err)
	}

	sequence.Steps = models.SortSteps(sequence.Steps)

	return &sequence, nil
}

func (r *SequenceRepository) loadAll() ([]*models.SequenceDefinition, error) {
	ids, err := r.store.ids(sequencesDir)
	if err != nil {
		return nil, err
	}

	sequences := make([]*models.SequenceDefinition, 0, len(ids))

	for _, id := range ids {
		sequence, err := r.load(id)
		if err != nil {
			return nil, err
		}

		sequences = append(sequences, sequence)
	}

	sort.Slice(sequences, func(i, j int) bool {
		return sequences[i].CreatedAt.After(sequences[j].CreatedAt)
	})

	return sequences, nil
}
