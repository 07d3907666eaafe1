// Package tasks keeps the human task records created for suspended nodes.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/graphroute/pkg/log"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/google/uuid"
)

var (
	ErrTaskClosed  = errors.New("task is already closed")
	ErrNotAssignee = errors.New("actor is not an assignee of the task")
)

// Service implements protocol.TaskService on top of a task repository.
type Service struct {
	repository persistence.TaskRepository
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(repository persistence.TaskRepository, opts ...Option) *Service {
	s := &Service{
		repository: repository,
		logger:     log.WithModule("tasks"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ protocol.TaskService = (*Service)(nil)

func (s *Service) CreateTask(ctx context.Context, req protocol.TaskRequest) (string, error) {
	task := &models.Task{
		ID:         uuid.NewString(),
		RouteID:    req.RouteID,
		NodeID:     req.NodeID,
		Name:       req.Name,
		Assignees:  append([]string(nil), req.Assignees...),
		DueDate:    req.DueDate,
		Permission: req.Permission,
		Status:     models.TaskStatusOpen,
		CreatedAt:  s.now().UTC(),
	}

	err := s.repository.Save(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to create task for route %s node %s: %w", req.RouteID, req.NodeID, err)
	}

	s.logger.InfoContext(ctx, "Task created",
		"task_id", task.ID, "route_id", task.RouteID, "node_id", task.NodeID, "assignees", task.Assignees)

	return task.ID, nil
}

func (s *Service) EndTask(ctx context.Context, taskID, actor, status, comment string) error {
	return s.close(ctx, taskID, func(task *models.Task) {
		task.Status = models.TaskStatusEnded
		task.Actor = actor
		task.Action = status
		task.Comment = comment
	})
}

func (s *Service) CancelTask(ctx context.Context, taskID, actor string) error {
	return s.close(ctx, taskID, func(task *models.Task) {
		task.Status = models.TaskStatusCanceled
		task.Actor = actor
	})
}

func (s *Service) close(ctx context.Context, taskID string, apply func(*models.Task)) error {
	task, err := s.repository.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	if !task.IsOpen() {
		return persistence.NewTaskError("close", taskID, ErrTaskClosed)
	}

	apply(task)

	now := s.now().UTC()
	task.EndedAt = &now

	err = s.repository.Save(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to close task %s: %w", taskID, err)
	}

	s.logger.InfoContext(ctx, "Task closed", "task_id", taskID, "status", task.Status, "actor", task.Actor)

	return nil
}

func (s *Service) Task(ctx context.Context, taskID string) (*models.Task, error) {
	return s.repository.GetByID(ctx, taskID)
}

func (s *Service) RouteTasks(ctx context.Context, routeID string) ([]*models.Task, error) {
	return s.repository.GetByRoute(ctx, routeID)
}

func (s *Service) OpenTasks(ctx context.Context, actor string) ([]*models.Task, error) {
	if actor == "" {
		return s.repository.GetOpen(ctx)
	}

	return s.repository.GetOpenByActor(ctx, actor)
}

// Overdue returns the open tasks whose due date is before now.
func (s *Service) Overdue(ctx context.Context) ([]*models.Task, error) {
	open, err := s.repository.GetOpen(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()

	var overdue []*models.Task

	for _, task := range open {
		if task.IsOverdue(now) {
			overdue = append(overdue, task)
		}
	}

	return overdue, nil
}

// CheckAssignee returns ErrNotAssignee unless actor may act on the task. A
// task without assignees is open to anyone.
func CheckAssignee(task *models.Task, actor string) error {
	if len(task.Assignees) == 0 || task.AssignedTo(actor) {
		return nil
	}

	return fmt.Errorf("task %s, actor %s: %w", task.ID, actor, ErrNotAssignee)
}

// CheckCanceler returns ErrNotAssignee unless actor may cancel the task: an
// assignee or the initiator of its route.
func CheckCanceler(task *models.Task, actor, initiator string) error {
	if initiator != "" && actor == initiator {
		return nil
	}

	return CheckAssignee(task, actor)
}
