// Package persistence provides the storage abstraction for route instances and tasks.
package persistence

import (
	"context"

	"github.com/dukex/graphroute/pkg/models"
)

type Persistence interface {
	RouteRepository() RouteRepository
	TaskRepository() TaskRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// RouteRepository stores route instances with their nodes.
type RouteRepository interface {
	Save(ctx context.Context, route *models.GraphRoute) error
	GetByID(ctx context.Context, id string) (*models.GraphRoute, error)
	GetByState(ctx context.Context, state models.RouteState) ([]*models.GraphRoute, error)
	// GetChildren lists sub-route instances of parentRouteID, restricted to
	// the ones started by nodeID when it is not empty.
	GetChildren(ctx context.Context, parentRouteID, nodeID string) ([]*models.GraphRoute, error)
	Delete(ctx context.Context, id string) error
}

type TaskRepository interface {
	Save(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetByRoute(ctx context.Context, routeID string) ([]*models.Task, error)
	// GetOpenByActor lists open tasks the actor is assigned to.
	GetOpenByActor(ctx context.Context, actor string) ([]*models.Task, error)
	GetOpen(ctx context.Context) ([]*models.Task, error)
}
