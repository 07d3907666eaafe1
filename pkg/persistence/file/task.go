package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
)

// TaskRepository stores one JSON document per task under root/tasks.
type TaskRepository struct {
	store *store
}

func NewTaskRepository(root string) *TaskRepository {
	return &TaskRepository{store: newStore(root, "tasks")}
}

func (tr *TaskRepository) Save(_ context.Context, task *models.Task) error {
	if err := tr.store.write(task.ID, task); err != nil {
		return persistence.NewTaskError("Save", task.ID, err)
	}

	return nil
}

func (tr *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	var task models.Task

	found, err := tr.store.read(id, &task)
	if err != nil {
		return nil, persistence.NewTaskError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
	}

	return &task, nil
}

func (tr *TaskRepository) GetByRoute(ctx context.Context, routeID string) ([]*models.Task, error) {
	return tr.filter(ctx, func(task *models.Task) bool { return task.RouteID == routeID })
}

func (tr *TaskRepository) GetOpenByActor(ctx context.Context, actor string) ([]*models.Task, error) {
	return tr.filter(ctx, func(task *models.Task) bool { return task.IsOpen() && task.AssignedTo(actor) })
}

func (tr *TaskRepository) GetOpen(ctx context.Context) ([]*models.Task, error) {
	return tr.filter(ctx, func(task *models.Task) bool { return task.IsOpen() })
}

func (tr *TaskRepository) filter(ctx context.Context, keep func(*models.Task) bool) ([]*models.Task, error) {
	ids, err := tr.store.ids()
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0)

	for _, id := range ids {
		task, err := tr.GetByID(ctx, id)
		if err != nil {
			if persistence.IsTaskNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load task %s: %w", id, err)
		}

		if keep(task) {
			tasks = append(tasks, task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}
