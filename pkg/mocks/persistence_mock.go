package mocks

import (
	"context"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockClientRepository is a mock implementation of persistence.ClientRepository interface.
type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) GetByID(ctx context.Context, id models.ClientID) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClientRepository) Save(ctx context.Context, client *models.Client) error {
	args := m.Called(ctx, client)

	return args.Error(0)
}

// MockAutomationRepository is a mock implementation of persistence.AutomationRepository interface.
type MockAutomationRepository struct {
	mock.Mock
}

func (m *MockAutomationRepository) GetByID(ctx context.Context, id models.AutomationID) (*models.Automation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Automation), args.Error(1)
}

func (m *MockAutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	args := m.Called(ctx, automation)

	return args.Error(0)
}

// MockAssignmentRepository is a mock implementation of persistence.AssignmentRepository interface.
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) Get(
	ctx context.Context,
	clientID models.ClientID,
	automationID models.AutomationID,
) (*models.Assignment, error) {
	args := m.Called(ctx, clientID, automationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Assignment), args.Error(1)
}

func (m *MockAssignmentRepository) Save(ctx context.Context, assignment *models.Assignment) error {
	args := m.Called(ctx, assignment)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Append(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) CommitSuccess(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListByClient(
	ctx context.Context,
	clientID models.ClientID,
	limit int,
) ([]*models.Execution, error) {
	args := m.Called(ctx, clientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Clients     *MockClientRepository
	Automations *MockAutomationRepository
	Assignments *MockAssignmentRepository
	Executions  *MockExecutionRepository
}

// NewMockPersistence creates a mock store with fresh repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Clients:     &MockClientRepository{},
		Automations: &MockAutomationRepository{},
		Assignments: &MockAssignmentRepository{},
		Executions:  &MockExecutionRepository{},
	}
}

func (m *MockPersistence) ClientRepository() persistence.ClientRepository {
	return m.Clients
}

func (m *MockPersistence) AutomationRepository() persistence.AutomationRepository {
	return m.Automations
}

func (m *MockPersistence) AssignmentRepository() persistence.AssignmentRepository {
	return m.Assignments
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// AssertExpectations asserts the expectations of every repository mock.
func (m *MockPersistence) AssertExpectations(t mock.TestingT) bool {
	return m.Mock.AssertExpectations(t) &&
		m.Clients.AssertExpectations(t) &&
		m.Automations.AssertExpectations(t) &&
		m.Assignments.AssertExpectations(t) &&
		m.Executions.AssertExpectations(t)
}
