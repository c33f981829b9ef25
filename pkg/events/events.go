// Package events defines the lifecycle events published while sequences run.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "followup.events"       // Sequence lifecycle events
const TagTopic = "followup.lead.tags" // Tag requests consumed by the CRM side

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Assignment lifecycle events.
	AssignmentEnrolledEvent  EventType = "sequence.assignment.enrolled"
	AssignmentCompletedEvent EventType = "sequence.assignment.completed"
	AssignmentRemovedEvent   EventType = "sequence.assignment.removed"

	// Step execution events.
	StepExecutedEvent EventType = "sequence.step.executed"
	StepFailedEvent   EventType = "sequence.step.failed"

	// Gateway events.
	LeadTagAppliedEvent EventType = "lead.tag.applied"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	SequenceID   string         `json:"sequence_id,omitempty"`
	AssignmentID string         `json:"assignment_id,omitempty"`
	LeadID       string         `json:"lead_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, sequenceID, assignmentID, leadID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		SequenceID:   sequenceID,
		AssignmentID: assignmentID,
		LeadID:       leadID,
		Metadata:     make(map[string]any),
	}
}

type AssignmentEnrolled struct {
	BaseEvent

	Source    string     `json:"source"` // "manual" or "auto"
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
}

func (e AssignmentEnrolled) GetType() EventType {
	return AssignmentEnrolledEvent
}

type AssignmentCompleted struct {
	BaseEvent

	StepsExecuted int       `json:"steps_executed"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (e AssignmentCompleted) GetType() EventType {
	return AssignmentCompletedEvent
}

type AssignmentRemoved struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e AssignmentRemoved) GetType() EventType {
	return AssignmentRemovedEvent
}

type StepExecuted struct {
	BaseEvent

	StepID     string     `json:"step_id"`
	StepOrder  int        `json:"step_order"`
	TriggerTag string     `json:"trigger_tag"`
	ExecutedAt time.Time  `json:"executed_at"`
	NextDueAt  *time.Time `json:"next_due_at,omitempty"`
}

func (e StepExecuted) GetType() EventType {
	return StepExecutedEvent
}

type StepFailed struct {
	BaseEvent

	StepID         string `json:"step_id,omitempty"`
	StepOrder      int    `json:"step_order"`
	TriggerTag     string `json:"trigger_tag,omitempty"`
	Error          string `json:"error"`
	Permanent      bool   `json:"permanent"`
	FailedAttempts int    `json:"failed_attempts"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

// LeadTagApplied asks the CRM side to apply a tag to a lead.
type LeadTagApplied struct {
	BaseEvent

	Email   string `json:"email"`
	Name    string `json:"name"`
	Tag     string `json:"tag"`
	Subject string `json:"subject,omitempty"`
}

func (e LeadTagApplied) GetType() EventType {
	return LeadTagAppliedEvent
}
