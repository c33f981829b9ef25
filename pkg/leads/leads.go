// Package leads resolves lead identities for the step executor and stores
// leads received through intake.
package leads

import (
	"context"
	"errors"

	"github.com/dukex/followup/pkg/models"
)

// ErrLeadNotFound is returned when the directory has no lead with the given id.
var ErrLeadNotFound = errors.New("lead not found")

// Directory looks leads up by id and records new ones.
type Directory interface {
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	SaveLead(ctx context.Context, lead *models.Lead) error
}

// IsLeadNotFound checks if an error indicates a lead was not found.
func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}
