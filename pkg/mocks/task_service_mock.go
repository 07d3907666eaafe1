package mocks

import (
	"context"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockTaskService is a mock implementation of protocol.TaskService interface.
type MockTaskService struct {
	mock.Mock
}

var _ protocol.TaskService = (*MockTaskService)(nil)

func (m *MockTaskService) CreateTask(ctx context.Context, req protocol.TaskRequest) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}

func (m *MockTaskService) EndTask(ctx context.Context, taskID, actor, status, comment string) error {
	args := m.Called(ctx, taskID, actor, status, comment)

	return args.Error(0)
}

func (m *MockTaskService) CancelTask(ctx context.Context, taskID, actor string) error {
	args := m.Called(ctx, taskID, actor)

	return args.Error(0)
}

func (m *MockTaskService) Task(ctx context.Context, taskID string) (*models.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Task), args.Error(1)
}

// MockChainRunner is a mock implementation of protocol.ChainRunner interface.
type MockChainRunner struct {
	mock.Mock
}

var _ protocol.ChainRunner = (*MockChainRunner)(nil)

func (m *MockChainRunner) Run(ctx context.Context, chainID string, doc *protocol.DocumentContext) error {
	args := m.Called(ctx, chainID, doc)

	return args.Error(0)
}
