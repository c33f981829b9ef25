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

// StepRepository handles sequence step database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

func (r *StepRepository) GetBySequence(ctx context.Context, sequenceID string) ([]*models.SequenceStep, error) {
	if uuid.Validate(sequenceID) != nil {
		return nil, persistence.NewSequenceError("GetBySequence", sequenceID, persistence.ErrSequenceNotFound)
	}

	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM sequence_definitions WHERE id = $1)", sequenceID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check sequence: %w", err)
	}

	if !exists {
		return nil, persistence.NewSequenceError("GetBySequence", sequenceID, persistence.ErrSequenceNotFound)
	}

	return loadSteps(ctx, r.db, r.logger, sequenceID)
}

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.SequenceStep, error) {
	if uuid.Validate(id) != nil {
		return nil, &persistence.StepError{Op: "GetByID", StepID: id, Err: persistence.ErrStepNotFound}
	}

	query := `SELECT` + stepColumns + `
		FROM sequence_steps
		WHERE id = $1
	`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.StepError{Op: "GetByID", StepID: id, Err: persistence.ErrStepNotFound}
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	return step, nil
}

// Create locks the owning definition row, takes the next order from the
// high-water mark and inserts the step in the same transaction.
func (r *StepRepository) Create(ctx context.Context, step *models.SequenceStep) (err error) {
	if uuid.Validate(step.SequenceID) != nil {
		return persistence.NewSequenceError("AddStep", step.SequenceID, persistence.ErrSequenceNotFound)
	}

	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	now := time.Now().UTC()
	if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lastStepOrder, highestOrder int

	err = tx.QueryRowContext(ctx, `
		SELECT d.last_step_order
		FROM sequence_definitions d
		WHERE d.id = $1
		FOR UPDATE
	`, step.SequenceID).Scan(&lastStepOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewSequenceError("AddStep", step.SequenceID, persistence.ErrSequenceNotFound)
		}

		return fmt.Errorf("failed to lock sequence: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(step_order), 0) FROM sequence_steps WHERE sequence_id = $1",
		step.SequenceID).Scan(&highestOrder)
	if err != nil {
		return fmt.Errorf("failed to read step orders: %w", err)
	}

	step.Order = max(lastStepOrder, highestOrder) + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sequence_steps (id, sequence_id, step_order, delay_days,
trigger_tag, subject, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		step.ID,
		step.SequenceID,
		step.Order,
		step.DelayDays,
		step.TriggerTag,
		step.Subject,
		step.Description,
		step.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &persistence.StepError{Op: "AddStep", SequenceID: step.SequenceID, StepID: step.ID, Err: persistence.ErrStepOrderConflict}
		}

		return fmt.Errorf("failed to insert step: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sequence_definitions SET last_step_order = $2, updated_at = $3 WHERE id = $1",
		step.SequenceID, step.Order, now)
	if err != nil {
		return fmt.Errorf("failed to advance step order mark: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete removes the step. Remaining orders are left as they are.
func (r *StepRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return &persistence.StepError{Op: "Delete", StepID: id, Err: persistence.ErrStepNotFound}
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM sequence_steps WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.StepError{Op: "Delete", StepID: id, Err: persistence.ErrStepNotFound}
	}

	return nil
}

const stepColumns = `
			id
		  , sequence_id
		  , step_order
		  , delay_days
		  , trigger_tag
		  , subject
		  , description
		  , created_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSteps(ctx context.Context, db queryer, logger *slog.Logger, sequenceID string) ([]*models.SequenceStep, error) {
	query := `SELECT` + stepColumns + `
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_order ASC
	`

	rows, err := db.QueryContext(ctx, query, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer closeRows(ctx, logger, rows)

	steps := make([]*models.SequenceStep, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func scanStep(row scanner) (*models.SequenceStep, error) {
	var step models.SequenceStep

	err := row.Scan(
		&step.ID,
		&step.SequenceID,
		&step.Order,
		&step.DelayDays,
		&step.TriggerTag,
		&step.Subject,
		&step.Description,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &step, nil
}
