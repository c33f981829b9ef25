package services

import (
	"errors"
	"testing"

	"github.com/dukex/followup/pkg/mocks"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/dukex/followup/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewSequence(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	service := NewSequence(p)

	assert.NotNil(t, service)
	assert.Equal(t, p, service.persistence)
}

func TestSequence_CreateAndFetch(t *testing.T) {
	service := NewSequence(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), CreateSequenceRequest{
		Name:               "  Onboarding  ",
		Description:        "Welcome series",
		AutoAssignNewLeads: true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Onboarding", created.Name)
	assert.True(t, created.Active, "new sequences are active")
	assert.True(t, created.AutoAssignNewLeads)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
	assert.Empty(t, fetched.Steps)
}

func TestSequence_CreateRequiresName(t *testing.T) {
	service := NewSequence(file.NewPersistence(t.TempDir()))

	_, err := service.Create(t.Context(), CreateSequenceRequest{Name: "   "})
	require.ErrorIs(t, err, ErrNameRequired)
	assert.True(t, IsValidationError(err))
}

func TestSequence_UpdatePartial(t *testing.T) {
	service := NewSequence(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), CreateSequenceRequest{Name: "Onboarding", Description: "v1"})
	require.NoError(t, err)

	inactive := false
	updated, err := service.Update(t.Context(), created.ID, UpdateSequenceRequest{Active: &inactive})
	require.NoError(t, err)

	assert.False(t, updated.Active)
	assert.Equal(t, "Onboarding", updated.Name)
	assert.Equal(t, "v1", updated.Description)

	blank := ""
	_, err = service.Update(t.Context(), created.ID, UpdateSequenceRequest{Name: &blank})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = service.Update(t.Context(), "missing", UpdateSequenceRequest{})
	assert.True(t, persistence.IsSequenceNotFound(err))
}

func TestSequence_Steps(t *testing.T) {
	service := NewSequence(file.NewPersistence(t.TempDir()))

	sequence, err := service.Create(t.Context(), CreateSequenceRequest{Name: "Onboarding"})
	require.NoError(t, err)

	first, err := service.AddStep(t.Context(), sequence.ID, AddStepRequest{DelayDays: 0, TriggerTag: "welcome"})
	require.NoError(t, err)
	second, err := service.AddStep(t.Context(), sequence.ID, AddStepRequest{DelayDays: 3, TriggerTag: "reminder", Subject: "Still there?"})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Order)
	assert.Equal(t, 2, second.Order)

	require.NoError(t, service.RemoveStep(t.Context(), sequence.ID, second.ID))

	third, err := service.AddStep(t.Context(), sequence.ID, AddStepRequest{DelayDays: 7, TriggerTag: "final"})
	require.NoError(t, err)
	assert.Equal(t, 3, third.Order, "removed orders are never reused")

	steps, err := service.Steps(t.Context(), sequence.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, []int{1, 3}, []int{steps[0].Order, steps[1].Order})
}

func TestSequence_AddStepValidation(t *testing.T) {
	service := NewSequence(file.NewPersistence(t.TempDir()))

	sequence, err := service.Create(t.Context(), CreateSequenceRequest{Name: "Onboarding"})
	require.NoError(t, err)

	_, err = service.AddStep(t.Context(), sequence.ID, AddStepRequest{DelayDays: -1, TriggerTag: "x"})
	require.ErrorIs(t, err, ErrNegativeDelay)

	_, err = service.AddStep(t.Context(), sequence.ID, AddStepRequest{TriggerTag: " "})
	require.ErrorIs(t, err, ErrTriggerTagRequired)

	_, err = service.AddStep(t.Context(), "missing", AddStepRequest{TriggerTag: "x"})
	assert.True(t, persistence.IsSequenceNotFound(err))
}

func TestSequence_RemoveStepOfOtherSequence(t *testing.T) {
	service := NewSequence(file.NewPersistence(t.TempDir()))

	a, err := service.Create(t.Context(), CreateSequenceRequest{Name: "A"})
	require.NoError(t, err)
	b, err := service.Create(t.Context(), CreateSequenceRequest{Name: "B"})
	require.NoError(t, err)

	step, err := service.AddStep(t.Context(), a.ID, AddStepRequest{TriggerTag: "x"})
	require.NoError(t, err)

	err = service.RemoveStep(t.Context(), b.ID, step.ID)
	assert.True(t, persistence.IsStepNotFound(err))

	err = service.RemoveStep(t.Context(), a.ID, "missing")
	assert.True(t, persistence.IsStepNotFound(err))
}

func TestSequence_Delete(t *testing.T) {
	service := NewSequence(file.NewPersistence(t.TempDir()))

	sequence, err := service.Create(t.Context(), CreateSequenceRequest{Name: "Onboarding"})
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), sequence.ID))

	_, err = service.FetchByID(t.Context(), sequence.ID)
	assert.True(t, persistence.IsSequenceNotFound(err))

	err = service.Delete(t.Context(), sequence.ID)
	assert.True(t, persistence.IsSequenceNotFound(err))
}

func TestSequence_ListPropagatesStorageErrors(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.Sequences.On("GetAll", mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := NewSequence(p).List(t.Context())
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	p.Sequences.AssertExpectations(t)
}

func TestSequence_HealthCheck(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.On("HealthCheck", mock.Anything).Return(errors.New("down")).Once()
	p.On("HealthCheck", mock.Anything).Return(nil)

	service := NewSequence(p)

	message, ok := service.HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Contains(t, message, "down")

	_, ok = service.HealthCheck(t.Context())
	assert.True(t, ok)

	_, ok = NewSequence(nil).HealthCheck(t.Context())
	assert.False(t, ok)
}
