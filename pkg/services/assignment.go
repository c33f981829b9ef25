package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/events"
	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/dukex/followup/pkg/tracker"
)

// ErrAssignmentNotFound is returned when an assignment is not found.
var ErrAssignmentNotFound = persistence.ErrAssignmentNotFound

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AssignmentView is an assignment with its lead's display fields resolved.
type AssignmentView struct {
	*models.SequenceAssignment

	LeadName  string `json:"lead_name"`
	LeadEmail string `json:"lead_email"`
}

// ListAssignmentsRequest filters the assignments of one sequence.
type ListAssignmentsRequest struct {
	SequenceID string
	Status     *models.AssignmentStatus
	Limit      int
	Offset     int
}

type Assignment struct {
	persistence persistence.Persistence
	tracker     *tracker.Tracker
	directory   leads.Directory
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewAssignment creates the assignment service. publisher may be nil.
func NewAssignment(
	persistence persistence.Persistence,
	tracker *tracker.Tracker,
	directory leads.Directory,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Assignment {
	return &Assignment{
		persistence: persistence,
		tracker:     tracker,
		directory:   directory,
		publisher:   publisher,
		logger:      logger.With("module", "assignment_service"),
	}
}

// Enroll manually enrolls a known lead into a sequence.
func (s *Assignment) Enroll(ctx context.Context, sequenceID, leadID string) (*AssignmentView, error) {
	if leadID == "" {
		return nil, ErrLeadIDRequired
	}

	lead, err := s.directory.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	assignment, err := s.tracker.Enroll(ctx, leadID, sequenceID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, assignment.ID, events.AssignmentEnrolled{
		BaseEvent: events.NewBaseEvent(events.AssignmentEnrolledEvent, sequenceID, assignment.ID, leadID),
		Source:    "manual",
		NextDueAt: assignment.NextStepDueAt,
	})

	return &AssignmentView{SequenceAssignment: assignment, LeadName: lead.Name, LeadEmail: lead.Email}, nil
}

// Remove takes an assignment out of its sequence. Removing a completed or
// already removed assignment returns it unchanged.
func (s *Assignment) Remove(ctx context.Context, id string) (*AssignmentView, error) {
	before, err := s.tracker.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	assignment, err := s.tracker.Remove(ctx, id)
	if err != nil {
		return nil, err
	}

	if before.IsActive() && assignment.Status == models.AssignmentStatusRemoved {
		s.publish(ctx, assignment.ID, events.AssignmentRemoved{
			BaseEvent: events.NewBaseEvent(events.AssignmentRemovedEvent, assignment.SequenceID, assignment.ID, assignment.LeadID),
			Reason:    assignment.RemovalReason,
		})
	}

	return s.resolve(ctx, []*models.SequenceAssignment{assignment})[0], nil
}

// FetchByID returns one assignment with its lead resolved.
func (s *Assignment) FetchByID(ctx context.Context, id string) (*AssignmentView, error) {
	assignment, err := s.tracker.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.resolve(ctx, []*models.SequenceAssignment{assignment})[0], nil
}

// List returns the assignments of a sequence, newest first. Assignments of
// a deleted sequence are still listed.
func (s *Assignment) List(ctx context.Context, req ListAssignmentsRequest) ([]*AssignmentView, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, NewValidationError("List", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", *req.Status), ErrInvalidStatus)
	}

	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	req.Limit = min(req.Limit, maxListLimit)
	req.Offset = max(req.Offset, 0)

	assignments, err := s.persistence.AssignmentRepository().List(ctx, persistence.ListAssignmentsOptions{
		SequenceID: req.SequenceID,
		Status:     req.Status,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	return s.resolve(ctx, assignments), nil
}

// resolve attaches lead name and email. A missing lead leaves them blank.
func (s *Assignment) resolve(ctx context.Context, assignments []*models.SequenceAssignment) []*AssignmentView {
	views := make([]*AssignmentView, 0, len(assignments))
	seen := make(map[string]*models.Lead)

	for _, assignment := range assignments {
		view := &AssignmentView{SequenceAssignment: assignment}

		lead, ok := seen[assignment.LeadID]
		if !ok {
			var err error

			lead, err = s.directory.GetLead(ctx, assignment.LeadID)
			if err != nil && !leads.IsLeadNotFound(err) {
				s.logger.WarnContext(ctx, "failed to resolve lead", "lead_id", assignment.LeadID, "error", err)
			}

			seen[assignment.LeadID] = lead
		}

		if lead != nil {
			view.LeadName = lead.Name
			view.LeadEmail = lead.Email
		}

		views = append(views, view)
	}

	return views
}

func (s *Assignment) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, key, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
