package gateway

import (
	"context"
	"errors"

	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/events"
)

// EventGateway hands tag requests to the CRM through the event bus.
type EventGateway struct {
	publisher eventbus.EventPublisher
}

func NewEventGateway(publisher eventbus.EventPublisher) *EventGateway {
	return &EventGateway{publisher: publisher}
}

func (g *EventGateway) ApplyTag(ctx context.Context, req TagRequest) error {
	if req.Lead == nil {
		return Permanent(errors.New("lead is required"))
	}

	event := events.LeadTagApplied{
		BaseEvent: events.NewBaseEvent(events.LeadTagAppliedEvent, req.SequenceID, req.AssignmentID, req.Lead.ID),
		Email:     req.Lead.Email,
		Name:      req.Lead.Name,
		Tag:       req.Tag,
		Subject:   req.Subject,
	}
	event.Metadata["step_order"] = req.StepOrder

	err := g.publisher.Publish(ctx, req.Lead.ID, event)
	if err != nil {
		return Transient(err)
	}

	return nil
}
