package mocks

import (
	"context"
	"time"

	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence
// returning the embedded repository mocks.
type MockPersistence struct {
	mock.Mock

	Sequences   *MockSequenceRepository
	Steps       *MockStepRepository
	Assignments *MockAssignmentRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Sequences:   &MockSequenceRepository{},
		Steps:       &MockStepRepository{},
		Assignments: &MockAssignmentRepository{},
	}
}

func (m *MockPersistence) SequenceRepository() persistence.SequenceRepository {
	return m.Sequences
}

func (m *MockPersistence) StepRepository() persistence.StepRepository {
	return m.Steps
}

func (m *MockPersistence) AssignmentRepository() persistence.AssignmentRepository {
	return m.Assignments
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockSequenceRepository is a mock implementation of persistence.SequenceRepository interface.
type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) GetAll(ctx context.Context) ([]*models.SequenceDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.SequenceDefinition), args.Error(1)
}

func (m *MockSequenceRepository) GetByID(ctx context.Context, id string) (*models.SequenceDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SequenceDefinition), args.Error(1)
}

func (m *MockSequenceRepository) AutoAssignable(ctx context.Context) ([]*models.SequenceDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.SequenceDefinition), args.Error(1)
}

func (m *MockSequenceRepository) Save(ctx context.Context, sequence *models.SequenceDefinition) error {
	args := m.Called(ctx, sequence)

	return args.Error(0)
}

func (m *MockSequenceRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockStepRepository is a mock implementation of persistence.StepRepository interface.
type MockStepRepository struct {
	mock.Mock
}

func (m *MockStepRepository) GetBySequence(ctx context.Context, sequenceID string) ([]*models.SequenceStep, error) {
	args := m.Called(ctx, sequenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.SequenceStep), args.Error(1)
}

func (m *MockStepRepository) GetByID(ctx context.Context, id string) (*models.SequenceStep, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SequenceStep), args.Error(1)
}

func (m *MockStepRepository) Create(ctx context.Context, step *models.SequenceStep) error {
	args := m.Called(ctx, step)

	return args.Error(0)
}

func (m *MockStepRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockAssignmentRepository is a mock implementation of persistence.AssignmentRepository interface.
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) Create(ctx context.Context, assignment *models.SequenceAssignment) error {
	args := m.Called(ctx, assignment)

	return args.Error(0)
}

func (m *MockAssignmentRepository) GetByID(ctx context.Context, id string) (*models.SequenceAssignment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.SequenceAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) List(
	ctx context.Context,
	opts persistence.ListAssignmentsOptions,
) ([]*models.SequenceAssignment, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.SequenceAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) Due(ctx context.Context, asOf time.Time, limit int) ([]*models.SequenceAssignment, error) {
	args := m.Called(ctx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.SequenceAssignment), args.Error(1)
}

func (m *MockAssignmentRepository) UpdateIfActive(
	ctx context.Context,
	assignment *models.SequenceAssignment,
	expectedStepOrder int,
) (bool, error) {
	args := m.Called(ctx, assignment, expectedStepOrder)

	return args.Bool(0), args.Error(1)
}
