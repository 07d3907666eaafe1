// Package memory provides an in-process persistence implementation, used by
// tests and single-binary deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
)

type Persistence struct {
	routes *RouteRepository
	tasks  *TaskRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		routes: &RouteRepository{routes: make(map[string]*models.GraphRoute)},
		tasks:  &TaskRepository{tasks: make(map[string]*models.Task)},
	}
}

func (p *Persistence) RouteRepository() persistence.RouteRepository { return p.routes }

func (p *Persistence) TaskRepository() persistence.TaskRepository { return p.tasks }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// RouteRepository keeps deep copies so callers never share state with the store.
type RouteRepository struct {
	mu     sync.RWMutex
	routes map[string]*models.GraphRoute
}

func (r *RouteRepository) Save(_ context.Context, route *models.GraphRoute) error {
	if route.ID == "" {
		return persistence.NewRouteError("Save", route.ID, persistence.ErrInvalidRoute)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[route.ID] = route.Clone()

	return nil
}

func (r *RouteRepository) GetByID(_ context.Context, id string) (*models.GraphRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[id]
	if !ok {
		return nil, persistence.NewRouteError("GetByID", id, persistence.ErrRouteNotFound)
	}

	return route.Clone(), nil
}

func (r *RouteRepository) GetByState(_ context.Context, state models.RouteState) ([]*models.GraphRoute, error) {
	return r.filter(func(route *models.GraphRoute) bool {
		return route.CurrentState() == state
	}), nil
}

func (r *RouteRepository) GetChildren(_ context.Context, parentRouteID, nodeID string) ([]*models.GraphRoute, error) {
	return r.filter(func(route *models.GraphRoute) bool {
		return route.ParentRouteID == parentRouteID && (nodeID == "" || route.ParentNodeID == nodeID)
	}), nil
}

func (r *RouteRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[id]; !ok {
		return persistence.NewRouteError("Delete", id, persistence.ErrRouteNotFound)
	}

	delete(r.routes, id)

	return nil
}

func (r *RouteRepository) filter(keep func(*models.GraphRoute) bool) []*models.GraphRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]*models.GraphRoute, 0)

	for _, route := range r.routes {
		if keep(route) {
			routes = append(routes, route.Clone())
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		return routes[i].CreatedAt.Before(routes[j].CreatedAt)
	})

	return routes
}

type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

func (r *TaskRepository) Save(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.ID] = task.Clone()

	return nil
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
	}

	return task.Clone(), nil
}

func (r *TaskRepository) GetByRoute(_ context.Context, routeID string) ([]*models.Task, error) {
	return r.filter(func(task *models.Task) bool { return task.RouteID == routeID }), nil
}

func (r *TaskRepository) GetOpenByActor(_ context.Context, actor string) ([]*models.Task, error) {
	return r.filter(func(task *models.Task) bool { return task.IsOpen() && task.AssignedTo(actor) }), nil
}

func (r *TaskRepository) GetOpen(_ context.Context) ([]*models.Task, error) {
	return r.filter(func(task *models.Task) bool { return task.IsOpen() }), nil
}

func (r *TaskRepository) filter(keep func(*models.Task) bool) []*models.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]*models.Task, 0)

	for _, task := range r.tasks {
		if keep(task) {
			tasks = append(tasks, task.Clone())
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}

		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks
}
