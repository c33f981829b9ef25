package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepAfter(t *testing.T) {
	steps := []*SequenceStep{
		{ID: "c", Order: 5},
		{ID: "a", Order: 1},
		{ID: "b", Order: 3},
	}

	tests := []struct {
		name   string
		after  int
		wantID string
	}{
		{"before first step", 0, "a"},
		{"skips gap", 1, "b"},
		{"between orders", 4, "c"},
		{"after last step", 5, ""},
		{"beyond any order", 99, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := StepAfter(steps, tt.after)
			if tt.wantID == "" {
				assert.Nil(t, next)

				return
			}

			require.NotNil(t, next)
			assert.Equal(t, tt.wantID, next.ID)
		})
	}
}

func TestStepAfter_Empty(t *testing.T) {
	assert.Nil(t, StepAfter(nil, 0))
}

func TestSortSteps_DoesNotMutateInput(t *testing.T) {
	steps := []*SequenceStep{{Order: 3}, {Order: 1}, {Order: 2}}

	sorted := SortSteps(steps)

	assert.Equal(t, []int{1, 2, 3}, []int{sorted[0].Order, sorted[1].Order, sorted[2].Order})
	assert.Equal(t, 3, steps[0].Order)
}

func TestSequenceDefinition_NextOrder(t *testing.T) {
	t.Run("empty sequence starts at one", func(t *testing.T) {
		def := &SequenceDefinition{}
		assert.Equal(t, 1, def.NextOrder())
	})

	t.Run("follows the highest existing order", func(t *testing.T) {
		def := &SequenceDefinition{Steps: []*SequenceStep{{Order: 1}, {Order: 4}}}
		assert.Equal(t, 5, def.NextOrder())
	})

	t.Run("never reuses a removed order", func(t *testing.T) {
		def := &SequenceDefinition{LastStepOrder: 6, Steps: []*SequenceStep{{Order: 2}}}
		assert.Equal(t, 7, def.NextOrder())
	})
}

func TestSequenceStep_Delay(t *testing.T) {
	step := &SequenceStep{DelayDays: 3}
	assert.Equal(t, 72*time.Hour, step.Delay())
}

func TestSequenceAssignment_IsDue(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name       string
		assignment SequenceAssignment
		want       bool
	}{
		{"active and past due", SequenceAssignment{Status: AssignmentStatusActive, NextStepDueAt: &past}, true},
		{"active and exactly due", SequenceAssignment{Status: AssignmentStatusActive, NextStepDueAt: &now}, true},
		{"active not yet due", SequenceAssignment{Status: AssignmentStatusActive, NextStepDueAt: &future}, false},
		{"active without pending step", SequenceAssignment{Status: AssignmentStatusActive}, false},
		{"removed", SequenceAssignment{Status: AssignmentStatusRemoved, NextStepDueAt: &past}, false},
		{"completed", SequenceAssignment{Status: AssignmentStatusCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.assignment.IsDue(now))
		})
	}
}

func TestSequenceAssignment_Clone(t *testing.T) {
	due := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	original := &SequenceAssignment{ID: "a-1", Status: AssignmentStatusActive, NextStepDueAt: &due}

	clone := original.Clone()
	*clone.NextStepDueAt = due.Add(time.Hour)
	clone.Status = AssignmentStatusRemoved

	assert.Equal(t, due, *original.NextStepDueAt)
	assert.Equal(t, AssignmentStatusActive, original.Status)
}

func TestAssignmentStatus(t *testing.T) {
	assert.True(t, AssignmentStatusActive.Valid())
	assert.False(t, AssignmentStatus("paused").Valid())
	assert.False(t, AssignmentStatusActive.IsTerminal())
	assert.True(t, AssignmentStatusCompleted.IsTerminal())
	assert.True(t, AssignmentStatusRemoved.IsTerminal())
}
