package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/locker"
	"github.com/dukex/graphroute/pkg/mocks"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/persistence/memory"
	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/dukex/graphroute/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func forNode(nodeID string) any {
	return mock.MatchedBy(func(req protocol.TaskRequest) bool {
		return req.NodeID == nodeID
	})
}

func parallelTasksRoute() *models.GraphRoute {
	return testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.To("trans12", "node2"), testutil.To("trans13", "node3")),
		testutil.CreateTestNode("node2", testutil.WithTask("alice"), testutil.To("trans24", "node4")),
		testutil.CreateTestNode("node3", testutil.WithTask("bob"), testutil.To("trans34", "node4")),
		testutil.CreateTestNode("node4", testutil.Merge(models.MergeAll), testutil.Stop()),
	})
}

func TestStart_CompensatesCreatedTasksOnFailure(t *testing.T) {
	store := memory.NewPersistence()
	taskService := &mocks.MockTaskService{}

	taskService.On("CreateTask", mock.Anything, forNode("node2")).Return("task-a", nil).Once()
	taskService.On("CreateTask", mock.Anything, forNode("node3")).Return("", errors.New("task backend down")).Once()
	taskService.On("CancelTask", mock.Anything, "task-a", "system").Return(nil).Once()

	e := engine.New(store.RouteRepository(), engine.WithTaskService(taskService), engine.WithLogger(discardLogger()))

	route := parallelTasksRoute()

	_, err := e.Start(context.Background(), route, nil)

	var nodeErr *engine.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "create task", nodeErr.Op)
	assert.Equal(t, "node3", nodeErr.NodeID)

	_, err = store.RouteRepository().GetByID(context.Background(), route.ID)
	assert.True(t, persistence.IsRouteNotFound(err))

	taskService.AssertExpectations(t)
}

func TestStart_CompensatesWhenSaveFails(t *testing.T) {
	routes := &mocks.MockRouteRepository{}
	taskService := &mocks.MockTaskService{}

	routes.On("Save", mock.Anything, mock.AnythingOfType("*models.GraphRoute")).Return(errors.New("database is gone"))
	taskService.On("CreateTask", mock.Anything, forNode("node1")).Return("task-a", nil).Once()
	taskService.On("CancelTask", mock.Anything, "task-a", "system").Return(nil).Once()

	e := engine.New(routes, engine.WithTaskService(taskService), engine.WithLogger(discardLogger()))

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.WithTask("alice"), testutil.To("t1", "node2")),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	_, err := e.Start(context.Background(), route, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is gone")

	routes.AssertExpectations(t)
	taskService.AssertExpectations(t)
}

func TestCancel_ReportsCleanupFailures(t *testing.T) {
	store := memory.NewPersistence()
	taskService := &mocks.MockTaskService{}

	taskService.On("CreateTask", mock.Anything, forNode("node2")).Return("task-a", nil).Once()
	taskService.On("CreateTask", mock.Anything, forNode("node3")).Return("task-b", nil).Once()
	taskService.On("CancelTask", mock.Anything, "task-a", "system").Return(errors.New("task backend down")).Once()
	taskService.On("CancelTask", mock.Anything, "task-b", "system").Return(nil).Once()

	e := engine.New(store.RouteRepository(), engine.WithTaskService(taskService), engine.WithLogger(discardLogger()))

	route := parallelTasksRoute()

	started, err := e.Start(context.Background(), route, nil)
	require.NoError(t, err)
	require.Equal(t, models.RouteStateRunning, started.State)

	canceled, err := e.Cancel(context.Background(), route.ID)
	require.Error(t, err)

	var cleanup *engine.CleanupError
	require.ErrorAs(t, err, &cleanup)
	assert.Len(t, cleanup.Errs, 1)

	require.NotNil(t, canceled)
	assert.Equal(t, models.RouteStateCanceled, canceled.State)

	stored, err := store.RouteRepository().GetByID(context.Background(), route.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateCanceled, stored.State)

	taskService.AssertExpectations(t)
}

func TestPublishFailureDoesNotFailTheWalk(t *testing.T) {
	store := memory.NewPersistence()
	bus := &mocks.MockEventBus{}

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.Stop()),
	})

	bus.On("Publish", mock.Anything, route.ID, mock.Anything).Return(errors.New("broker down"))

	e := engine.New(store.RouteRepository(), engine.WithPublisher(bus), engine.WithLogger(discardLogger()))

	started, err := e.Start(context.Background(), route, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, started.State)

	bus.AssertNumberOfCalls(t, "Publish", 3)
}

func TestChainFailureIsReported(t *testing.T) {
	store := memory.NewPersistence()
	runner := &mocks.MockChainRunner{}

	runner.On("Run", mock.Anything, "notify", mock.AnythingOfType("*protocol.DocumentContext")).
		Return(errors.New("smtp unavailable"))

	e := engine.New(store.RouteRepository(), engine.WithChainRunner(runner), engine.WithLogger(discardLogger()))

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.WithInputChain("notify"), testutil.Stop()),
	})

	_, err := e.Start(context.Background(), route, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp unavailable")

	runner.AssertExpectations(t)
}

// expiredLocker hands out leases that were already taken over.
type expiredLocker struct{}

func (expiredLocker) Lock(context.Context, string) (locker.Lease, error) {
	return expiredLease{}, nil
}

type expiredLease struct{}

func (expiredLease) Held(context.Context) error { return locker.ErrLockLost }

func (expiredLease) Release() error { return locker.ErrLockLost }

func TestStart_LostLeaseIsNotSaved(t *testing.T) {
	store := memory.NewPersistence()
	taskService := &mocks.MockTaskService{}

	taskService.On("CreateTask", mock.Anything, forNode("node1")).Return("task-a", nil).Once()
	taskService.On("CancelTask", mock.Anything, "task-a", "system").Return(nil).Once()

	e := engine.New(store.RouteRepository(),
		engine.WithTaskService(taskService),
		engine.WithLocker(expiredLocker{}),
		engine.WithLogger(discardLogger()),
	)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.WithTask("alice"), testutil.To("t1", "node2")),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	started, err := e.Start(context.Background(), route, nil)
	require.ErrorIs(t, err, locker.ErrLockLost)
	assert.Nil(t, started)

	_, err = store.RouteRepository().GetByID(context.Background(), route.ID)
	assert.True(t, persistence.IsRouteNotFound(err))

	taskService.AssertExpectations(t)
}
