package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/followup/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		sequenceErr := persistence.NewSequenceError("GetByID", "seq-123", persistence.ErrSequenceNotFound)
		assignmentErr := persistence.NewAssignmentError("Remove", "asg-1", persistence.ErrAssignmentNotFound)
		enrollErr := persistence.NewEnrollmentError("Create", "lead-1", "seq-1", persistence.ErrDuplicateActiveAssignment)
		stepErr := &persistence.StepError{Op: "Delete", StepID: "step-1", Err: persistence.ErrStepNotFound}

		assert.True(t, persistence.IsSequenceNotFound(sequenceErr))
		assert.True(t, persistence.IsAssignmentNotFound(assignmentErr))
		assert.True(t, persistence.IsDuplicateActiveAssignment(enrollErr))
		assert.True(t, persistence.IsStepNotFound(stepErr))

		assert.False(t, persistence.IsSequenceNotFound(assignmentErr))
		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", sequenceErr), persistence.ErrSequenceNotFound))
	})

	t.Run("sequence error contains context", func(t *testing.T) {
		err := persistence.NewSequenceError("Delete", "seq-123", persistence.ErrSequenceNotFound)

		assert.Contains(t, err.Error(), "Delete")
		assert.Contains(t, err.Error(), "seq-123")
		assert.Contains(t, err.Error(), "sequence not found")
	})

	t.Run("enrollment error names the pair", func(t *testing.T) {
		err := persistence.NewEnrollmentError("Create", "lead-9", "seq-4", persistence.ErrDuplicateActiveAssignment)

		assert.Contains(t, err.Error(), "lead lead-9")
		assert.Contains(t, err.Error(), "sequence seq-4")
	})

	t.Run("step error includes sequence when known", func(t *testing.T) {
		err := &persistence.StepError{Op: "Create", SequenceID: "seq-1", StepID: "step-2", Err: persistence.ErrStepOrderConflict}

		assert.Contains(t, err.Error(), "in sequence seq-1")
		assert.True(t, persistence.IsStepOrderConflict(err))
		assert.False(t, persistence.IsStepNotFound(err))
	})
}
