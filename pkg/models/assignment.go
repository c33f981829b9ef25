package models

import "time"

// AssignmentStatus is the lifecycle state of a sequence assignment.
type AssignmentStatus string

const (
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCompleted AssignmentStatus = "completed"
	AssignmentStatusRemoved   AssignmentStatus = "removed"
)

// Removal reasons recorded on removed assignments.
const (
	RemovalReasonManual             = "manual"
	RemovalReasonMaxAttemptsReached = "max_attempts_exceeded"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentStatusActive, AssignmentStatusCompleted, AssignmentStatusRemoved:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can happen from s.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusRemoved
}

// SequenceAssignment is one lead's progress through one sequence.
type SequenceAssignment struct {
	ID                 string           `json:"id"`
	LeadID             string           `json:"lead_id"`
	SequenceID         string           `json:"sequence_id"`
	CurrentStepOrder   int              `json:"current_step_order"` // 0 before any step fired
	Status             AssignmentStatus `json:"status"`
	StartedAt          time.Time        `json:"started_at"`
	LastStepExecutedAt *time.Time       `json:"last_step_executed_at,omitempty"`
	NextStepDueAt      *time.Time       `json:"next_step_due_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	RemovedAt          *time.Time       `json:"removed_at,omitempty"`
	RemovalReason      string           `json:"removal_reason,omitempty"`
	FailedAttempts     int              `json:"failed_attempts"`
	LastError          string           `json:"last_error,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (a *SequenceAssignment) IsActive() bool {
	return a.Status == AssignmentStatusActive
}

// IsDue reports whether the assignment has a pending step whose time has come.
func (a *SequenceAssignment) IsDue(now time.Time) bool {
	return a.IsActive() && a.NextStepDueAt != nil && !a.NextStepDueAt.After(now)
}

// Clone returns a deep copy so callers can mutate without aliasing stored rows.
func (a *SequenceAssignment) Clone() *SequenceAssignment {
	c := *a
	c.LastStepExecutedAt = cloneTime(a.LastStepExecutedAt)
	c.NextStepDueAt = cloneTime(a.NextStepDueAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	c.RemovedAt = cloneTime(a.RemovedAt)

	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}
