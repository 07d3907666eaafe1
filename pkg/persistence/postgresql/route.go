package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
)

const routeColumns = `
			id
		  , name
		  , description
		  , model_id
		  , initiator
		  , parent_route_id
		  , parent_node_id
		  , variables
		  , state
		  , created_at
		  , started_at
		  , ended_at`

// RouteRepository stores routes in graph_routes and their nodes in graph_nodes.
type RouteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRouteRepository(db *sql.DB, logger *slog.Logger) *RouteRepository {
	return &RouteRepository{db: db, logger: logger}
}

// Save upserts the route row and replaces its node rows in one transaction.
func (r *RouteRepository) Save(ctx context.Context, route *models.GraphRoute) (err error) {
	if route.ID == "" {
		return persistence.NewRouteError("Save", route.ID, persistence.ErrInvalidRoute)
	}

	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now().UTC()
	}

	variablesJSON, err := json.Marshal(route.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal route variables: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO graph_routes (`+routeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , model_id = EXCLUDED.model_id
		  , initiator = EXCLUDED.initiator
		  , parent_route_id = EXCLUDED.parent_route_id
		  , parent_node_id = EXCLUDED.parent_node_id
		  , variables = EXCLUDED.variables
		  , state = EXCLUDED.state
		  , started_at = EXCLUDED.started_at
		  , ended_at = EXCLUDED.ended_at
	`,
		route.ID,
		route.Name,
		route.Description,
		route.ModelID,
		route.Initiator,
		nullString(route.ParentRouteID),
		nullString(route.ParentNodeID),
		variablesJSON,
		string(route.CurrentState()),
		route.CreatedAt,
		route.StartedAt,
		route.EndedAt,
	)
	if err != nil {
		return persistence.NewRouteError("Save", route.ID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM graph_nodes WHERE route_id = $1", route.ID)
	if err != nil {
		return persistence.NewRouteError("Save", route.ID, fmt.Errorf("failed to clear nodes: %w", err))
	}

	for position, node := range route.Nodes {
		var nodeJSON []byte

		nodeJSON, err = json.Marshal(node)
		if err != nil {
			return fmt.Errorf("failed to marshal node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO graph_nodes (route_id, id, position, state, data) VALUES ($1, $2, $3, $4, $5)",
			route.ID, node.ID, position, string(node.CurrentState()), nodeJSON)
		if err != nil {
			return persistence.NewRouteError("Save", route.ID, fmt.Errorf("failed to insert node %s: %w", node.ID, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *RouteRepository) GetByID(ctx context.Context, id string) (*models.GraphRoute, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+routeColumns+" FROM graph_routes WHERE id = $1", id)

	route, err := scanRoute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRouteError("GetByID", id, persistence.ErrRouteNotFound)
		}

		return nil, persistence.NewRouteError("GetByID", id, err)
	}

	if err := r.loadNodes(ctx, route); err != nil {
		return nil, persistence.NewRouteError("GetByID", id, err)
	}

	return route, nil
}

func (r *RouteRepository) GetByState(ctx context.Context, state models.RouteState) ([]*models.GraphRoute, error) {
	return r.query(ctx,
		"SELECT "+routeColumns+" FROM graph_routes WHERE state = $1 ORDER BY created_at",
		string(state))
}

func (r *RouteRepository) GetChildren(ctx context.Context, parentRouteID, nodeID string) ([]*models.GraphRoute, error) {
	if nodeID == "" {
		return r.query(ctx,
			"SELECT "+routeColumns+" FROM graph_routes WHERE parent_route_id = $1 ORDER BY created_at",
			parentRouteID)
	}

	return r.query(ctx,
		"SELECT "+routeColumns+" FROM graph_routes WHERE parent_route_id = $1 AND parent_node_id = $2 ORDER BY created_at",
		parentRouteID, nodeID)
}

func (r *RouteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM graph_routes WHERE id = $1", id)
	if err != nil {
		return persistence.NewRouteError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRouteError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewRouteError("Delete", id, persistence.ErrRouteNotFound)
	}

	return nil
}

func (r *RouteRepository) query(ctx context.Context, query string, args ...any) ([]*models.GraphRoute, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	routes := make([]*models.GraphRoute, 0)

	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}

		routes = append(routes, route)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routes: %w", err)
	}

	for _, route := range routes {
		if err := r.loadNodes(ctx, route); err != nil {
			return nil, err
		}
	}

	return routes, nil
}

func (r *RouteRepository) loadNodes(ctx context.Context, route *models.GraphRoute) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT data FROM graph_nodes WHERE route_id = $1 ORDER BY position", route.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	route.Nodes = make([]*models.GraphNode, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		var node models.GraphNode
		if err := json.Unmarshal(data, &node); err != nil {
			return fmt.Errorf("failed to unmarshal node: %w", err)
		}

		route.Nodes = append(route.Nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	return nil
}

func scanRoute(row rowScanner) (*models.GraphRoute, error) {
	var (
		route         models.GraphRoute
		parentRouteID sql.NullString
		parentNodeID  sql.NullString
		variables     []byte
		state         string
		startedAt     sql.NullTime
		endedAt       sql.NullTime
	)

	err := row.Scan(
		&route.ID,
		&route.Name,
		&route.Description,
		&route.ModelID,
		&route.Initiator,
		&parentRouteID,
		&parentNodeID,
		&variables,
		&state,
		&route.CreatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	route.ParentRouteID = parentRouteID.String
	route.ParentNodeID = parentNodeID.String
	route.State = models.RouteState(state)
	route.CreatedAt = route.CreatedAt.UTC()

	if startedAt.Valid {
		t := startedAt.Time.UTC()
		route.StartedAt = &t
	}

	if endedAt.Valid {
		t := endedAt.Time.UTC()
		route.EndedAt = &t
	}

	if len(variables) > 0 && string(variables) != "null" {
		route.Variables = models.NewVariableScope()
		if err := json.Unmarshal(variables, route.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal route variables: %w", err)
		}
	}

	return &route, nil
}
