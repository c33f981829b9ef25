// Package intake handles newly captured leads: it stores them, enrolls them
// into every auto-assign sequence and notifies the operator.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/events"
	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// LeadCreatedSchema is the JSON schema of the lead-created webhook payload.
const LeadCreatedSchema = `{
	"type": "object",
	"required": ["id", "email"],
	"properties": {
		"id":       {"type": "string", "minLength": 1},
		"name":     {"type": "string"},
		"email":    {"type": "string", "format": "email"},
		"phone":    {"type": "string"},
		"interest": {"type": "string"},
		"location": {"type": "string"}
	}
}`

var leadCreatedSchema = gojsonschema.NewStringLoader(LeadCreatedSchema)

// ValidationError reports a payload that does not match LeadCreatedSchema.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "invalid lead payload: " + strings.Join(e.Details, "; ")
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// Enroller enrolls a lead into a loaded sequence definition.
type Enroller interface {
	EnrollInto(ctx context.Context, leadID string, sequence *models.SequenceDefinition) (*models.SequenceAssignment, error)
}

// Notifier announces a new lead without blocking the caller.
type Notifier interface {
	NotifyNewLead(ctx context.Context, lead *models.Lead)
}

// Result describes what a captured lead triggered.
type Result struct {
	Lead     *models.Lead                 `json:"lead"`
	Enrolled []*models.SequenceAssignment `json:"enrolled"`
	// AlreadyActive lists sequences the lead was already running.
	AlreadyActive []string `json:"already_active,omitempty"`
	// Failed lists sequences whose enrollment errored.
	Failed []string `json:"failed,omitempty"`
}

type Intake struct {
	directory leads.Directory
	sequences persistence.SequenceRepository
	enroller  Enroller
	publisher eventbus.EventPublisher
	notifier  Notifier
	logger    *slog.Logger
}

// New creates an Intake. publisher and notifier may be nil.
func New(
	directory leads.Directory,
	sequences persistence.SequenceRepository,
	enroller Enroller,
	publisher eventbus.EventPublisher,
	notifier Notifier,
	logger *slog.Logger,
) *Intake {
	return &Intake{
		directory: directory,
		sequences: sequences,
		enroller:  enroller,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With("module", "intake"),
	}
}

// Decode validates payload against LeadCreatedSchema and returns the lead it describes.
func Decode(payload []byte) (*models.Lead, error) {
	result, err := gojsonschema.Validate(leadCreatedSchema, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, &ValidationError{Details: []string{err.Error()}}
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, &ValidationError{Details: details}
	}

	var lead models.Lead
	if err := json.Unmarshal(payload, &lead); err != nil {
		return nil, &ValidationError{Details: []string{err.Error()}}
	}

	return &lead, nil
}

// LeadCreated handles a raw lead-created webhook payload.
func (i *Intake) LeadCreated(ctx context.Context, payload []byte) (*Result, error) {
	lead, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	return i.Capture(ctx, lead)
}

// Capture stores the lead, sends the operator notification and enrolls the
// lead into every active auto-assign sequence. Enrollment failures are
// logged and reported in the result; they never fail the capture.
func (i *Intake) Capture(ctx context.Context, lead *models.Lead) (*Result, error) {
	if lead.ID == "" {
		return nil, &ValidationError{Details: []string{"id is required"}}
	}

	if err := i.directory.SaveLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}

	if i.notifier != nil {
		i.notifier.NotifyNewLead(ctx, lead)
	}

	sequences, err := i.sequences.AutoAssignable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load auto-assign sequences: %w", err)
	}

	result := &Result{Lead: lead, Enrolled: make([]*models.SequenceAssignment, 0, len(sequences))}

	for _, sequence := range sequences {
		assignment, err := i.enroller.EnrollInto(ctx, lead.ID, sequence)

		switch {
		case err == nil:
			result.Enrolled = append(result.Enrolled, assignment)
			i.publishEnrolled(ctx, assignment)
		case persistence.IsDuplicateActiveAssignment(err):
			result.AlreadyActive = append(result.AlreadyActive, sequence.ID)
		default:
			result.Failed = append(result.Failed, sequence.ID)
			i.logger.ErrorContext(ctx, "auto-enrollment failed",
				"lead_id", lead.ID,
				"sequence_id", sequence.ID,
				"error", err,
			)
		}
	}

	i.logger.InfoContext(ctx, "lead captured",
		"lead_id", lead.ID,
		"enrolled", len(result.Enrolled),
		"already_active", len(result.AlreadyActive),
		"failed", len(result.Failed),
	)

	return result, nil
}

func (i *Intake) publishEnrolled(ctx context.Context, assignment *models.SequenceAssignment) {
	if i.publisher == nil {
		return
	}

	event := events.AssignmentEnrolled{
		BaseEvent: events.NewBaseEvent(events.AssignmentEnrolledEvent, assignment.SequenceID, assignment.ID, assignment.LeadID),
		Source:    "auto",
		NextDueAt: assignment.NextStepDueAt,
	}

	if err := i.publisher.Publish(ctx, assignment.ID, event); err != nil {
		i.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
