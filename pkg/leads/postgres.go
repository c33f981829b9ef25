package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/followup/pkg/models"
)

// PostgresDirectory reads leads from the leads table.
type PostgresDirectory struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresDirectory(db *sql.DB, logger *slog.Logger) *PostgresDirectory {
	return &PostgresDirectory{db: db, logger: logger.With("module", "lead_directory")}
}

func (d *PostgresDirectory) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	query := `
		SELECT
			id
		  , name
		  , email
		  , phone
		  , interest
		  , location
		FROM leads
		WHERE id = $1
	`

	var lead models.Lead

	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Interest,
		&lead.Location,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, ErrLeadNotFound)
		}

		return nil, fmt.Errorf("failed to fetch lead %s: %w", id, err)
	}

	return &lead, nil
}

func (d *PostgresDirectory) SaveLead(ctx context.Context, lead *models.Lead) error {
	query := `
		INSERT INTO leads (id, name, email, phone, interest, location)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			interest = EXCLUDED.interest,
			location = EXCLUDED.location
	`

	_, err := d.db.ExecContext(ctx, query,
		lead.ID,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.Interest,
		lead.Location,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}

	d.logger.DebugContext(ctx, "lead saved", "lead_id", lead.ID)

	return nil
}
