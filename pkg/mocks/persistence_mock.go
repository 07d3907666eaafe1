package mocks

import (
	"context"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockRouteRepository is a mock implementation of persistence.RouteRepository interface.
type MockRouteRepository struct {
	mock.Mock
}

var _ persistence.RouteRepository = (*MockRouteRepository)(nil)

func (m *MockRouteRepository) Save(ctx context.Context, route *models.GraphRoute) error {
	args := m.Called(ctx, route)

	return args.Error(0)
}

func (m *MockRouteRepository) GetByID(ctx context.Context, id string) (*models.GraphRoute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.GraphRoute), args.Error(1)
}

func (m *MockRouteRepository) GetByState(ctx context.Context, state models.RouteState) ([]*models.GraphRoute, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.GraphRoute), args.Error(1)
}

func (m *MockRouteRepository) GetChildren(ctx context.Context, parentRouteID, nodeID string) ([]*models.GraphRoute, error) {
	args := m.Called(ctx, parentRouteID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.GraphRoute), args.Error(1)
}

func (m *MockRouteRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockTaskRepository is a mock implementation of persistence.TaskRepository interface.
type MockTaskRepository struct {
	mock.Mock
}

var _ persistence.TaskRepository = (*MockTaskRepository)(nil)

func (m *MockTaskRepository) Save(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) GetByRoute(ctx context.Context, routeID string) ([]*models.Task, error) {
	args := m.Called(ctx, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockTaskRepository) GetOpenByActor(ctx context.Context, actor string) ([]*models.Task, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockTaskRepository) GetOpen(ctx context.Context) ([]*models.Task, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Task), args.Error(1)
}

// MockPersistence bundles the repository mocks. HealthErr is returned by HealthCheck.
type MockPersistence struct {
	Routes    *MockRouteRepository
	Tasks     *MockTaskRepository
	HealthErr error
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Routes: &MockRouteRepository{},
		Tasks:  &MockTaskRepository{},
	}
}

func (m *MockPersistence) RouteRepository() persistence.RouteRepository { return m.Routes }

func (m *MockPersistence) TaskRepository() persistence.TaskRepository { return m.Tasks }

func (m *MockPersistence) HealthCheck(_ context.Context) error { return m.HealthErr }

func (m *MockPersistence) Close(_ context.Context) error { return nil }
