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

// AssignmentRepository stores one JSON document per assignment.
type AssignmentRepository struct {
	store *store
}

func (r *AssignmentRepository) Create(_ context.Context, assignment *models.SequenceAssignment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAll()
	if err != nil {
		return err
	}

	if assignment.IsActive() {
		for _, existing := range all {
			if existing.IsActive() && existing.LeadID == assignment.LeadID && existing.SequenceID == assignment.SequenceID {
				return persistence.NewEnrollmentError("Create", assignment.LeadID, assignment.SequenceID, persistence.ErrDuplicateActiveAssignment)
			}
		}
	}

	if assignment.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate assignment ID: %w", err)
		}

		assignment.ID = id.String()
	}

	if assignment.UpdatedAt.IsZero() {
		assignment.UpdatedAt = time.Now().UTC()
	}

	return r.store.write(assignmentsDir, assignment.ID, assignment)
}

func (r *AssignmentRepository) GetByID(_ context.Context, id string) (*models.SequenceAssignment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.load(id)
}

func (r *AssignmentRepository) List(_ context.Context, opts persistence.ListAssignmentsOptions) ([]*models.SequenceAssignment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.SequenceAssignment, 0, len(all))

	for _, assignment := range all {
		if opts.SequenceID != "" && assignment.SequenceID != opts.SequenceID {
			continue
		}

		if opts.LeadID != "" && assignment.LeadID != opts.LeadID {
			continue
		}

		if opts.Status != nil && assignment.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, assignment)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].StartedAt.Equal(filtered[j].StartedAt) {
			return filtered[i].ID < filtered[j].ID
		}

		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	return paginate(filtered, opts.Offset, opts.Limit), nil
}

func (r *AssignmentRepository) Due(_ context.Context, asOf time.Time, limit int) ([]*models.SequenceAssignment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	due := make([]*models.SequenceAssignment, 0)

	for _, assignment := range all {
		if assignment.IsDue(asOf) {
			due = append(due, assignment)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].NextStepDueAt.Equal(*due[j].NextStepDueAt) {
			return due[i].ID < due[j].ID
		}

		return due[i].NextStepDueAt.Before(*due[j].NextStepDueAt)
	})

	return paginate(due, 0, limit), nil
}

func (r *AssignmentRepository) UpdateIfActive(_ context.Context, assignment *models.SequenceAssignment, expectedStepOrder int) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, err := r.load(assignment.ID)
	if err != nil {
		return false, err
	}

	if !current.IsActive() || current.CurrentStepOrder != expectedStepOrder {
		return false, nil
	}

	err = r.store.write(assignmentsDir, assignment.ID, assignment)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *AssignmentRepository) load(id string) (*models.SequenceAssignment, error) {
	var assignment models.SequenceAssignment

	err := r.store.read(assignmentsDir, id, &assignment)
	if err != nil {
		if isNotExist(err) {
			return nil, persistence.NewAssignmentError("GetByID", id, persistence.ErrAssignmentNotFound)
		}

		return nil, fmt.Errorf("failed to fetch assignment %s: %w", id, err)
	}

	return &assignment, nil
}

func (r *AssignmentRepository) loadAll() ([]*models.SequenceAssignment, error) {
	ids, err := r.store.ids(assignmentsDir)
	if err != nil {
		return nil, err
	}

	assignments := make([]*models.SequenceAssignment, 0, len(ids))

	for _, id := range ids {
		assignment, err := r.load(id)
		if err != nil {
			return nil, err
		}

		assignments = append(assignments, assignment)
	}

	return assignments, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	offset = max(offset, 0)

	if offset >= len(items) {
		return make([]T, 0)
	}

	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
