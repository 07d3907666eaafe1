package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/graphroute/pkg/mocks"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/persistence/memory"
	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newService() *Service {
	return NewService(memory.NewPersistence().TaskRepository(), WithClock(func() time.Time { return now }))
}

func TestService_CreateTask(t *testing.T) {
	service := newService()
	due := now.Add(48 * time.Hour)

	taskID, err := service.CreateTask(t.Context(), protocol.TaskRequest{
		RouteID:    "route-1",
		NodeID:     "review",
		Name:       "Review",
		Assignees:  []string{"jdoe", "bob"},
		DueDate:    &due,
		Permission: "Write",
	})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := service.Task(t.Context(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "route-1", task.RouteID)
	assert.Equal(t, "review", task.NodeID)
	assert.Equal(t, []string{"jdoe", "bob"}, task.Assignees)
	assert.Equal(t, models.TaskStatusOpen, task.Status)
	assert.Equal(t, now, task.CreatedAt)
	assert.True(t, due.Equal(*task.DueDate))
}

func TestService_EndTask(t *testing.T) {
	service := newService()

	taskID, err := service.CreateTask(t.Context(), protocol.TaskRequest{RouteID: "route-1", NodeID: "review"})
	require.NoError(t, err)

	require.NoError(t, service.EndTask(t.Context(), taskID, "jdoe", "validate", "looks good"))

	task, err := service.Task(t.Context(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusEnded, task.Status)
	assert.Equal(t, "jdoe", task.Actor)
	assert.Equal(t, "validate", task.Action)
	assert.Equal(t, "looks good", task.Comment)
	require.NotNil(t, task.EndedAt)

	err = service.EndTask(t.Context(), taskID, "jdoe", "validate", "")
	require.ErrorIs(t, err, ErrTaskClosed)
}

func TestService_CancelTask(t *testing.T) {
	service := newService()

	taskID, err := service.CreateTask(t.Context(), protocol.TaskRequest{RouteID: "route-1", NodeID: "review"})
	require.NoError(t, err)

	require.NoError(t, service.CancelTask(t.Context(), taskID, "system"))

	task, err := service.Task(t.Context(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCanceled, task.Status)
	assert.Empty(t, task.Action)
	assert.Equal(t, "system", task.Actor)

	require.ErrorIs(t, service.CancelTask(t.Context(), taskID, "system"), ErrTaskClosed)
}

func TestService_TaskNotFound(t *testing.T) {
	_, err := newService().Task(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrTaskNotFound)
}

func TestService_OpenTasksAndOverdue(t *testing.T) {
	service := newService()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	late, err := service.CreateTask(t.Context(), protocol.TaskRequest{RouteID: "r", NodeID: "a", Assignees: []string{"jdoe"}, DueDate: &past})
	require.NoError(t, err)

	_, err = service.CreateTask(t.Context(), protocol.TaskRequest{RouteID: "r", NodeID: "b", Assignees: []string{"bob"}, DueDate: &future})
	require.NoError(t, err)

	closed, err := service.CreateTask(t.Context(), protocol.TaskRequest{RouteID: "r", NodeID: "c", Assignees: []string{"jdoe"}, DueDate: &past})
	require.NoError(t, err)
	require.NoError(t, service.EndTask(t.Context(), closed, "jdoe", "ok", ""))

	open, err := service.OpenTasks(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	mine, err := service.OpenTasks(t.Context(), "jdoe")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, late, mine[0].ID)

	overdue, err := service.Overdue(t.Context())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late, overdue[0].ID)

	all, err := service.RouteTasks(t.Context(), "r")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCheckAssignee(t *testing.T) {
	task := &models.Task{ID: "t1", Assignees: []string{"jdoe"}}

	require.NoError(t, CheckAssignee(task, "jdoe"))
	require.ErrorIs(t, CheckAssignee(task, "bob"), ErrNotAssignee)
	require.NoError(t, CheckAssignee(&models.Task{ID: "t2"}, "bob"))
}

func TestCheckCanceler(t *testing.T) {
	task := &models.Task{ID: "t1", Assignees: []string{"jdoe"}}

	require.NoError(t, CheckCanceler(task, "jdoe", "alice"))
	require.NoError(t, CheckCanceler(task, "alice", "alice"))
	require.ErrorIs(t, CheckCanceler(task, "bob", "alice"), ErrNotAssignee)
	require.ErrorIs(t, CheckCanceler(task, "bob", ""), ErrNotAssignee)
}

func TestService_RepositoryFailures(t *testing.T) {
	repository := &mocks.MockTaskRepository{}
	service := NewService(repository, WithClock(func() time.Time { return now }))
	diskFull := errors.New("disk full")

	repository.On("Save", mock.Anything, mock.MatchedBy(func(task *models.Task) bool {
		return task.IsOpen()
	})).Return(diskFull).Once()

	_, err := service.CreateTask(t.Context(), protocol.TaskRequest{RouteID: "route-1", NodeID: "review"})
	require.ErrorIs(t, err, diskFull)

	open := &models.Task{ID: "task-1", RouteID: "route-1", Status: models.TaskStatusOpen}
	repository.On("GetByID", mock.Anything, "task-1").Return(open, nil).Once()
	repository.On("Save", mock.Anything, mock.MatchedBy(func(task *models.Task) bool {
		return task.Status == models.TaskStatusEnded && task.EndedAt != nil
	})).Return(diskFull).Once()

	err = service.EndTask(t.Context(), "task-1", "jdoe", "approve", "")
	require.ErrorIs(t, err, diskFull)

	repository.On("GetOpen", mock.Anything).Return(nil, diskFull).Once()

	_, err = service.Overdue(t.Context())
	require.ErrorIs(t, err, diskFull)

	repository.AssertExpectations(t)
}
