// Package models defines the domain models of the lead follow-up sequence engine.
package models

import (
	"sort"
	"time"
)

// Day is the granularity of step delays.
const Day = 24 * time.Hour

// SequenceDefinition is a named, ordered list of delay-gated outreach steps.
type SequenceDefinition struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"                  validate:"required,min=1"`
	Description        string          `json:"description"`
	Active             bool            `json:"active"`
	AutoAssignNewLeads bool            `json:"auto_assign_new_leads"`
	LastStepOrder      int             `json:"last_step_order"` // High-water mark, never reused
	Steps              []*SequenceStep `json:"steps,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SequenceStep is one action within a sequence: a delay plus a trigger tag.
type SequenceStep struct {
	ID          string    `json:"id"`
	SequenceID  string    `json:"sequence_id"`
	Order       int       `json:"order"`
	DelayDays   int       `json:"delay_days"            validate:"min=0"`
	TriggerTag  string    `json:"trigger_tag"           validate:"required"`
	Subject     string    `json:"subject,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Delay returns the wait before this step fires, counted from the previous
// step's execution (or from enrollment for the first step).
func (s *SequenceStep) Delay() time.Duration {
	return time.Duration(s.DelayDays) * Day
}

// NextOrder returns the order the next added step receives. Orders of removed
// steps are never handed out again.
func (d *SequenceDefinition) NextOrder() int {
	highest := d.LastStepOrder

	for _, step := range d.Steps {
		if step.Order > highest {
			highest = step.Order
		}
	}

	return highest + 1
}

// SortSteps returns a copy of steps ordered by Order ascending.
func SortSteps(steps []*SequenceStep) []*SequenceStep {
	sorted := make([]*SequenceStep, len(steps))
	copy(sorted, steps)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	return sorted
}

// StepAfter returns the step with the smallest order strictly greater than
// order, or nil when none exists. Steps need not be sorted.
func StepAfter(steps []*SequenceStep, order int) *SequenceStep {
	var next *SequenceStep

	for _, step := range steps {
		if step.Order <= order {
			continue
		}

		if next == nil || step.Order < next.Order {
			next = step
		}
	}

	return next
}
