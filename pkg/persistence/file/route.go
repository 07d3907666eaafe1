package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
)

// RouteRepository stores one JSON document per route instance under root/routes.
type RouteRepository struct {
	store *store
}

func NewRouteRepository(root string) *RouteRepository {
	return &RouteRepository{store: newStore(root, "routes")}
}

func (rr *RouteRepository) Save(_ context.Context, route *models.GraphRoute) error {
	if route.ID == "" {
		return persistence.NewRouteError("Save", route.ID, persistence.ErrInvalidRoute)
	}

	if err := rr.store.write(route.ID, route); err != nil {
		return persistence.NewRouteError("Save", route.ID, err)
	}

	return nil
}

func (rr *RouteRepository) GetByID(_ context.Context, id string) (*models.GraphRoute, error) {
	var route models.GraphRoute

	found, err := rr.store.read(id, &route)
	if err != nil {
		return nil, persistence.NewRouteError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewRouteError("GetByID", id, persistence.ErrRouteNotFound)
	}

	return &route, nil
}

func (rr *RouteRepository) GetByState(ctx context.Context, state models.RouteState) ([]*models.GraphRoute, error) {
	return rr.filter(ctx, func(route *models.GraphRoute) bool {
		return route.CurrentState() == state
	})
}

func (rr *RouteRepository) GetChildren(ctx context.Context, parentRouteID, nodeID string) ([]*models.GraphRoute, error) {
	return rr.filter(ctx, func(route *models.GraphRoute) bool {
		return route.ParentRouteID == parentRouteID && (nodeID == "" || route.ParentNodeID == nodeID)
	})
}

func (rr *RouteRepository) Delete(_ context.Context, id string) error {
	found, err := rr.store.remove(id)
	if err != nil {
		return persistence.NewRouteError("Delete", id, err)
	}

	if !found {
		return persistence.NewRouteError("Delete", id, persistence.ErrRouteNotFound)
	}

	return nil
}

func (rr *RouteRepository) filter(ctx context.Context, keep func(*models.GraphRoute) bool) ([]*models.GraphRoute, error) {
	ids, err := rr.store.ids()
	if err != nil {
		return nil, err
	}

	routes := make([]*models.GraphRoute, 0)

	for _, id := range ids {
		route, err := rr.GetByID(ctx, id)
		if err != nil {
			if persistence.IsRouteNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load route %s: %w", id, err)
		}

		if keep(route) {
			routes = append(routes, route)
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		return routes[i].CreatedAt.Before(routes[j].CreatedAt)
	})

	return routes, nil
}
