package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/google/uuid"
)

// AssignmentRepository handles sequence assignment database operations.
type AssignmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *sql.DB, logger *slog.Logger) *AssignmentRepository {
	return &AssignmentRepository{db: db, logger: logger}
}

const assignmentColumns = `
			id
		  , lead_id
		  , sequence_id
		  , current_step_order
		  , status
		  , started_at
		  , last_step_executed_at
		  , next_step_due_at
		  , completed_at
		  , removed_at
		  , removal_reason
		  , failed_attempts
		  , last_error
		  , updated_at`

// Create inserts the assignment. The partial unique index on active
// (lead_id, sequence_id) pairs turns a concurrent duplicate into ErrDuplicateActiveAssignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.SequenceAssignment) error {
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

	query := `
		INSERT INTO sequence_assignments (id, lead_id, sequence_id, current_step_order,
status, started_at, last_step_executed_at, next_step_due_at, completed_at, removed_at,
removal_reason, failed_attempts, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		assignment.ID,
		assignment.LeadID,
		assignment.SequenceID,
		assignment.CurrentStepOrder,
		assignment.Status,
		assignment.StartedAt,
		assignment.LastStepExecutedAt,
		assignment.NextStepDueAt,
		assignment.CompletedAt,
		assignment.RemovedAt,
		assignment.RemovalReason,
		assignment.FailedAttempts,
		assignment.LastError,
		assignment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEnrollmentError("Create", assignment.LeadID, assignment.SequenceID, persistence.ErrDuplicateActiveAssignment)
		}

		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	return nil
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.SequenceAssignment, error) {
	if uuid.Validate(id) != nil {
		return nil, persistence.NewAssignmentError("GetByID", id, persistence.ErrAssignmentNotFound)
	}

	query := `SELECT` + assignmentColumns + `
		FROM sequence_assignments
		WHERE id = $1
	`

	assignment, err := scanAssignment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAssignmentError("GetByID", id, persistence.ErrAssignmentNotFound)
		}

		return nil, fmt.Errorf("failed to scan assignment: %w", err)
	}

	return assignment, nil
}

func (r *AssignmentRepository) List(ctx context.Context, opts persistence.ListAssignmentsOptions) ([]*models.SequenceAssignment, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 5)

	if opts.SequenceID != "" {
		if uuid.Validate(opts.SequenceID) != nil {
			return make([]*models.SequenceAssignment, 0), nil
		}

		args = append(args, opts.SequenceID)
		conditions = append(conditions, "sequence_id = $"+strconv.Itoa(len(args)))
	}

	if opts.LeadID != "" {
		args = append(args, opts.LeadID)
		conditions = append(conditions, "lead_id = $"+strconv.Itoa(len(args)))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT` + assignmentColumns + `
		FROM sequence_assignments`

	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}

	query += "\n\t\tORDER BY started_at DESC, id ASC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	return r.query(ctx, query, args...)
}

func (r *AssignmentRepository) Due(ctx context.Context, asOf time.Time, limit int) ([]*models.SequenceAssignment, error) {
	query := `SELECT` + assignmentColumns + `
		FROM sequence_assignments
		WHERE status = 'active'
		  AND next_step_due_at IS NOT NULL
		  AND next_step_due_at <= $1
		ORDER BY next_step_due_at ASC, id ASC
	`

	args := []any{asOf}

	if limit > 0 {
		query += " LIMIT $2"

		args = append(args, limit)
	}

	return r.query(ctx, query, args...)
}

// UpdateIfActive is a single conditional UPDATE; zero affected rows means
// another writer moved the row first or it is no longer active.
func (r *AssignmentRepository) UpdateIfActive(
	ctx context.Context,
	assignment *models.SequenceAssignment,
	expectedStepOrder int,
) (bool, error) {
	if uuid.Validate(assignment.ID) != nil {
		return false, persistence.NewAssignmentError("Update", assignment.ID, persistence.ErrAssignmentNotFound)
	}

	query := `
		UPDATE sequence_assignments SET
			current_step_order = $3,
			status = $4,
			last_step_executed_at = $5,
			next_step_due_at = $6,
			completed_at = $7,
			removed_at = $8,
			removal_reason = $9,
			failed_attempts = $10,
			last_error = $11,
			updated_at = $12
		WHERE id = $1
		  AND status = 'active'
		  AND current_step_order = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		assignment.ID,
		expectedStepOrder,
		assignment.CurrentStepOrder,
		assignment.Status,
		assignment.LastStepExecutedAt,
		assignment.NextStepDueAt,
		assignment.CompletedAt,
		assignment.RemovedAt,
		assignment.RemovalReason,
		assignment.FailedAttempts,
		assignment.LastError,
		assignment.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update assignment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		return true, nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM sequence_assignments WHERE id = $1)", assignment.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}

	if !exists {
		return false, persistence.NewAssignmentError("Update", assignment.ID, persistence.ErrAssignmentNotFound)
	}

	return false, nil
}

func (r *AssignmentRepository) query(ctx context.Context, query string, args ...any) ([]*models.SequenceAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	assignments := make([]*models.SequenceAssignment, 0)

	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		assignments = append(assignments, assignment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}

func scanAssignment(row scanner) (*models.SequenceAssignment, error) {
	var (
		assignment models.SequenceAssignment
		status     string
	)

	var lastExecuted, nextDue, completedAt, removedAt sql.NullTime

	err := row.Scan(
		&assignment.ID,
		&assignment.LeadID,
		&assignment.SequenceID,
		&assignment.CurrentStepOrder,
		&status,
		&assignment.StartedAt,
		&lastExecuted,
		&nextDue,
		&completedAt,
		&removedAt,
		&assignment.RemovalReason,
		&assignment.FailedAttempts,
		&assignment.LastError,
		&assignment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	assignment.Status = models.AssignmentStatus(status)
	assignment.LastStepExecutedAt = nullTime(lastExecuted)
	assignment.NextStepDueAt = nullTime(nextDue)
	assignment.CompletedAt = nullTime(completedAt)
	assignment.RemovedAt = nullTime(removedAt)

	return &assignment, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time.UTC()

	return &v
}
