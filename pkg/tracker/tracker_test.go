package tracker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/dukex/followup/pkg/persistence/file"
	"github.com/dukex/followup/pkg/tracker"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*tracker.Tracker, persistence.Persistence, *clockwork.FakeClock) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(start)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return tracker.New(p, clock, logger), p, clock
}

func createSequence(ctx context.Context, t *testing.T, p persistence.Persistence, active bool, delays ...int) *models.SequenceDefinition {
	t.Helper()

	sequence := &models.SequenceDefinition{Name: "Onboarding", Active: active}
	require.NoError(t, p.SequenceRepository().Save(ctx, sequence))

	for _, delay := range delays {
		require.NoError(t, p.StepRepository().Create(ctx, &models.SequenceStep{
			SequenceID: sequence.ID,
			DelayDays:  delay,
			TriggerTag: "tag",
		}))
	}

	loaded, err := p.SequenceRepository().GetByID(ctx, sequence.ID)
	require.NoError(t, err)

	return loaded
}

func TestEnroll_FirstStepDueAfterItsDelay(t *testing.T) {
	tr, p, _ := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 2, 5)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentStatusActive, assignment.Status)
	assert.Equal(t, 0, assignment.CurrentStepOrder)
	assert.Equal(t, start, assignment.StartedAt)
	require.NotNil(t, assignment.NextStepDueAt)
	assert.Equal(t, start.Add(2*models.Day), *assignment.NextStepDueAt)
}

func TestEnroll_EmptySequenceCompletesImmediately(t *testing.T) {
	tr, p, _ := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentStatusCompleted, assignment.Status)
	assert.Nil(t, assignment.NextStepDueAt)
	require.NotNil(t, assignment.CompletedAt)
	assert.Equal(t, start, *assignment.CompletedAt)
}

func TestEnroll_Errors(t *testing.T) {
	tr, p, _ := setup(t)
	ctx := t.Context()

	active := createSequence(ctx, t, p, true, 0)
	inactive := createSequence(ctx, t, p, false, 0)

	_, err := tr.Enroll(ctx, "lead-1", "missing")
	assert.ErrorIs(t, err, tracker.ErrDefinitionNotFound)

	_, err = tr.Enroll(ctx, "lead-1", inactive.ID)
	assert.ErrorIs(t, err, tracker.ErrSequenceInactive)

	_, err = tr.Enroll(ctx, "", active.ID)
	assert.ErrorIs(t, err, tracker.ErrLeadIDRequired)

	_, err = tr.Enroll(ctx, "lead-1", active.ID)
	require.NoError(t, err)

	_, err = tr.Enroll(ctx, "lead-1", active.ID)
	assert.ErrorIs(t, err, tracker.ErrDuplicateActiveAssignment)
}

func TestEnroll_AllowedAgainAfterTerminal(t *testing.T) {
	tr, p, _ := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0)

	first, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	_, err = tr.Remove(ctx, first.ID)
	require.NoError(t, err)

	second, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	result, err := tr.Advance(ctx, second.ID, start)
	require.NoError(t, err)
	require.True(t, result.Completed)

	_, err = tr.Enroll(ctx, "lead-1", sequence.ID)
	assert.NoError(t, err)
}

func TestAdvance_OnboardingScenario(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0, 3, 7)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)
	require.Equal(t, start, *assignment.NextStepDueAt)

	result, err := tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	require.True(t, result.Advanced)
	assert.Equal(t, 1, result.Step.Order)
	assert.Equal(t, 1, result.Assignment.CurrentStepOrder)
	assert.Equal(t, start.Add(3*models.Day), *result.Assignment.NextStepDueAt)

	clock.Advance(3 * models.Day)

	due, err := tr.ListDue(ctx, clock.Now(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	result, err = tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	require.True(t, result.Advanced)
	assert.Equal(t, 2, result.Assignment.CurrentStepOrder)
	assert.Equal(t, start.Add(10*models.Day), *result.Assignment.NextStepDueAt)

	clock.Advance(7 * models.Day)

	result, err = tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	require.True(t, result.Advanced)
	assert.True(t, result.Completed)
	assert.Equal(t, 3, result.Assignment.CurrentStepOrder)
	assert.Equal(t, models.AssignmentStatusCompleted, result.Assignment.Status)
	assert.Nil(t, result.Assignment.NextStepDueAt)
	assert.Equal(t, start.Add(10*models.Day), *result.Assignment.CompletedAt)

	due, err = tr.ListDue(ctx, clock.Now().Add(365*models.Day), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestAdvance_NStepsCompleteAfterNExecutions(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		tr, p, clock := setup(t)
		ctx := t.Context()

		delays := make([]int, n)
		sequence := createSequence(ctx, t, p, true, delays...)

		assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
		require.NoError(t, err)

		for i := 1; i <= n; i++ {
			result, err := tr.Advance(ctx, assignment.ID, clock.Now())
			require.NoError(t, err)
			require.True(t, result.Advanced)
			assert.Equal(t, i == n, result.Completed, "n=%d execution=%d", n, i)
		}

		stored, err := tr.Get(ctx, assignment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AssignmentStatusCompleted, stored.Status)
		assert.Equal(t, n, stored.CurrentStepOrder)
	}
}

func TestAdvanceFrom_StaleObservationIsNoop(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0, 1, 1)

	observed, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	first, err := tr.AdvanceFrom(ctx, observed, clock.Now())
	require.NoError(t, err)
	require.True(t, first.Advanced)

	second, err := tr.AdvanceFrom(ctx, observed, clock.Now())
	require.NoError(t, err)
	assert.False(t, second.Advanced)
	assert.Equal(t, 1, second.Assignment.CurrentStepOrder)
}

func TestAdvanceFrom_ConcurrentCallersAdvanceOnce(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0, 1)

	observed, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		advanced atomic.Int32
	)

	for range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := tr.AdvanceFrom(ctx, observed.Clone(), clock.Now())
			assert.NoError(t, err)

			if result != nil && result.Advanced {
				advanced.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), advanced.Load())
}

func TestAdvance_DeletedDefinitionCompletesWithoutStep(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0, 3)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	require.NoError(t, p.SequenceRepository().Delete(ctx, sequence.ID))

	result, err := tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.True(t, result.Completed)
	assert.Nil(t, result.Step)
	assert.Equal(t, 0, result.Assignment.CurrentStepOrder)
	assert.Equal(t, models.AssignmentStatusCompleted, result.Assignment.Status)
}

func TestAdvance_SkipsRemovedStepOrders(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0, 2, 4)
	require.NoError(t, p.StepRepository().Delete(ctx, sequence.Steps[1].ID))

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	result, err := tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assignment.CurrentStepOrder)
	assert.Equal(t, start.Add(4*models.Day), *result.Assignment.NextStepDueAt)

	result, err = tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Assignment.CurrentStepOrder)
	assert.True(t, result.Completed)
}

func TestRemove(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)

	removed, err := tr.Remove(ctx, assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusRemoved, removed.Status)
	assert.Nil(t, removed.NextStepDueAt)
	assert.Equal(t, models.RemovalReasonManual, removed.RemovalReason)
	assert.Equal(t, start.Add(time.Hour), *removed.RemovedAt)

	again, err := tr.Remove(ctx, assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, removed.RemovedAt, again.RemovedAt)

	due, err := tr.ListDue(ctx, clock.Now().Add(models.Day), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	result, err := tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, models.AssignmentStatusRemoved, result.Assignment.Status)

	_, err = tr.Remove(ctx, "missing")
	assert.ErrorIs(t, err, tracker.ErrAssignmentNotFound)
}

func TestRecordFailure(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0, 1)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	failure, err := tr.RecordFailure(ctx, assignment, errors.New("gateway unavailable"), 0)
	require.NoError(t, err)
	assert.True(t, failure.Recorded)

	failed := failure.Assignment
	assert.Equal(t, 1, failed.FailedAttempts)
	assert.Equal(t, "gateway unavailable", failed.LastError)
	assert.Equal(t, models.AssignmentStatusActive, failed.Status)
	assert.Equal(t, assignment.NextStepDueAt, failed.NextStepDueAt, "due date stays so the next scan retries")

	result, err := tr.Advance(ctx, assignment.ID, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Assignment.FailedAttempts)
	assert.Empty(t, result.Assignment.LastError)
}

func TestRecordFailure_MaxAttemptsRemoves(t *testing.T) {
	tr, p, _ := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	for range 2 {
		failure, err := tr.RecordFailure(ctx, assignment, errors.New("boom"), 3)
		require.NoError(t, err)
		assert.Equal(t, models.AssignmentStatusActive, failure.Assignment.Status)
	}

	failure, err := tr.RecordFailure(ctx, assignment, errors.New("boom"), 3)
	require.NoError(t, err)

	removed := failure.Assignment
	assert.Equal(t, models.AssignmentStatusRemoved, removed.Status)
	assert.Equal(t, models.RemovalReasonMaxAttemptsReached, removed.RemovalReason)
	assert.Nil(t, removed.NextStepDueAt)
}

func TestRecordFailure_IgnoredAfterConcurrentAdvance(t *testing.T) {
	tr, p, clock := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0, 3)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	attempted := assignment.Clone()

	advanced, err := tr.AdvanceFrom(ctx, assignment, clock.Now())
	require.NoError(t, err)
	require.True(t, advanced.Advanced)

	failure, err := tr.RecordFailure(ctx, attempted, errors.New("gateway unavailable"), 1)
	require.NoError(t, err)
	assert.False(t, failure.Recorded)
	assert.Equal(t, models.AssignmentStatusActive, failure.Assignment.Status)
	assert.Equal(t, 1, failure.Assignment.CurrentStepOrder)
	assert.Zero(t, failure.Assignment.FailedAttempts)
	assert.Empty(t, failure.Assignment.LastError)

	stored, err := tr.Get(ctx, assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusActive, stored.Status)
	assert.Zero(t, stored.FailedAttempts)
}

func TestRecordFailure_IgnoredOnTerminalRow(t *testing.T) {
	tr, p, _ := setup(t)
	ctx := t.Context()

	sequence := createSequence(ctx, t, p, true, 0)

	assignment, err := tr.Enroll(ctx, "lead-1", sequence.ID)
	require.NoError(t, err)

	_, err = tr.Remove(ctx, assignment.ID)
	require.NoError(t, err)

	failure, err := tr.RecordFailure(ctx, assignment, errors.New("boom"), 1)
	require.NoError(t, err)
	assert.False(t, failure.Recorded)
	assert.Equal(t, models.RemovalReasonManual, failure.Assignment.RemovalReason)
}
