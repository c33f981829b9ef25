package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/google/uuid"
)

// SequenceRepository handles sequence definition database operations.
type SequenceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSequenceRepository creates a new sequence repository.
func NewSequenceRepository(db *sql.DB, logger *slog.Logger) *SequenceRepository {
	return &SequenceRepository{db: db, logger: logger}
}

const sequenceColumns = `
			id
		  , name
		  , description
		  , active
		  , auto_assign_new_leads
		  , last_step_order
		  , created_at
		  , updated_at`

// GetAll returns every definition, newest first, with steps loaded.
func (r *SequenceRepository) GetAll(ctx context.Context) ([]*models.SequenceDefinition, error) {
	query := `SELECT` + sequenceColumns + `
		FROM sequence_definitions
		ORDER BY created_at DESC
	`

	return r.query(ctx, query)
}

func (r *SequenceRepository) AutoAssignable(ctx context.Context) ([]*models.SequenceDefinition, error) {
	query := `SELECT` + sequenceColumns + `
		FROM sequence_definitions
		WHERE active AND auto_assign_new_leads
		ORDER BY created_at ASC
	`

	return r.query(ctx, query)
}

func (r *SequenceRepository) GetByID(ctx context.Context, id string) (*models.SequenceDefinition, error) {
	if uuid.Validate(id) != nil {
		return nil, persistence.NewSequenceError("GetByID", id, persistence.ErrSequenceNotFound)
	}

	query := `SELECT` + sequenceColumns + `
		FROM sequence_definitions
		WHERE id = $1
	`

	sequence, err := scanSequence(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSequenceError("GetByID", id, persistence.ErrSequenceNotFound)
		}

		return nil, fmt.Errorf("failed to scan sequence: %w", err)
	}

	sequence.Steps, err = loadSteps(ctx, r.db, r.logger, id)
	if err != nil {
		return nil, err
	}

	return sequence, nil
}

// Save upserts the definition's own columns. The high-water mark only moves forward.
func (r *SequenceRepository) Save(ctx context.Context, sequence *models.SequenceDefinition) error {
	now := time.Now().UTC()

	if sequence.CreatedAt.IsZero() {
		sequence.CreatedAt = now
	}

	sequence.UpdatedAt = now

	if sequence.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate sequence ID: %w", err)
		}

		sequence.ID = id.String()
	}

	query := `
		INSERT INTO sequence_definitions (id, name, description, active,
auto_assign_new_leads, last_step_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			auto_assign_new_leads = EXCLUDED.auto_assign_new_leads,
			last_step_order = GREATEST(sequence_definitions.last_step_order, EXCLUDED.last_step_order),
			updated_at = EXCLUDED.updated_at
		RETURNING last_step_order
	`

	err := r.db.QueryRowContext(ctx, query,
		sequence.ID,
		sequence.Name,
		sequence.Description,
		sequence.Active,
		sequence.AutoAssignNewLeads,
		sequence.LastStepOrder,
		sequence.CreatedAt,
		sequence.UpdatedAt,
	).Scan(&sequence.LastStepOrder)
	if err != nil {
		return fmt.Errorf("failed to save sequence: %w", err)
	}

	return nil
}

// Delete removes the definition; steps go with it through the foreign key cascade.
func (r *SequenceRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return persistence.NewSequenceError("Delete", id, persistence.ErrSequenceNotFound)
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM sequence_definitions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete sequence: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewSequenceError("Delete", id, persistence.ErrSequenceNotFound)
	}

	return nil
}

func (r *SequenceRepository) query(ctx context.Context, query string, args ...any) ([]*models.SequenceDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}

	sequences := make([]*models.SequenceDefinition, 0)

	for rows.Next() {
		sequence, err := scanSequence(rows)
		if err != nil {
			closeRows(ctx, r.logger, rows)

			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}

		sequences = append(sequences, sequence)
	}

	err = rows.Err()
	closeRows(ctx, r.logger, rows)

	if err != nil {
		return nil, fmt.Errorf("error iterating sequences: %w", err)
	}

	for _, sequence := range sequences {
		sequence.Steps, err = loadSteps(ctx, r.db, r.logger, sequence.ID)
		if err != nil {
			return nil, err
		}
	}

	return sequences, nil
}

func scanSequence(row scanner) (*models.SequenceDefinition, error) {
	var sequence models.SequenceDefinition

	err := row.Scan(
		&sequence.ID,
		&sequence.Name,
		&sequence.Description,
		&sequence.Active,
		&sequence.AutoAssignNewLeads,
		&sequence.LastStepOrder,
		&sequence.CreatedAt,
		&sequence.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &sequence, nil
}
