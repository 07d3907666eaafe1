package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
)

const taskColumns = `
			id
		  , route_id
		  , node_id
		  , name
		  , assignees
		  , due_date
		  , permission
		  , status
		  , actor
		  , action
		  , comment
		  , created_at
		  , ended_at`

// TaskRepository stores task records in route_tasks.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	assignees := task.Assignees
	if assignees == nil {
		assignees = []string{}
	}

	assigneesJSON, err := json.Marshal(assignees)
	if err != nil {
		return fmt.Errorf("failed to marshal task assignees: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO route_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , assignees = EXCLUDED.assignees
		  , due_date = EXCLUDED.due_date
		  , permission = EXCLUDED.permission
		  , status = EXCLUDED.status
		  , actor = EXCLUDED.actor
		  , action = EXCLUDED.action
		  , comment = EXCLUDED.comment
		  , ended_at = EXCLUDED.ended_at
	`,
		task.ID,
		task.RouteID,
		task.NodeID,
		task.Name,
		assigneesJSON,
		task.DueDate,
		task.Permission,
		string(task.Status),
		task.Actor,
		task.Action,
		task.Comment,
		task.CreatedAt,
		task.EndedAt,
	)
	if err != nil {
		return persistence.NewTaskError("Save", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM route_tasks WHERE id = $1", id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
		}

		return nil, persistence.NewTaskError("GetByID", id, err)
	}

	return task, nil
}

func (r *TaskRepository) GetByRoute(ctx context.Context, routeID string) ([]*models.Task, error) {
	return r.query(ctx,
		"SELECT "+taskColumns+" FROM route_tasks WHERE route_id = $1 ORDER BY created_at, id",
		routeID)
}

func (r *TaskRepository) GetOpenByActor(ctx context.Context, actor string) ([]*models.Task, error) {
	return r.query(ctx,
		"SELECT "+taskColumns+" FROM route_tasks WHERE status = $1 AND assignees @> jsonb_build_array($2::text) ORDER BY created_at, id",
		string(models.TaskStatusOpen), actor)
}

func (r *TaskRepository) GetOpen(ctx context.Context) ([]*models.Task, error) {
	return r.query(ctx,
		"SELECT "+taskColumns+" FROM route_tasks WHERE status = $1 ORDER BY created_at, id",
		string(models.TaskStatusOpen))
}

func (r *TaskRepository) query(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task      models.Task
		assignees []byte
		dueDate   sql.NullTime
		status    string
		endedAt   sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.RouteID,
		&task.NodeID,
		&task.Name,
		&assignees,
		&dueDate,
		&task.Permission,
		&status,
		&task.Actor,
		&task.Action,
		&task.Comment,
		&task.CreatedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	task.CreatedAt = task.CreatedAt.UTC()

	if dueDate.Valid {
		t := dueDate.Time.UTC()
		task.DueDate = &t
	}

	if endedAt.Valid {
		t := endedAt.Time.UTC()
		task.EndedAt = &t
	}

	if err := json.Unmarshal(assignees, &task.Assignees); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task assignees: %w", err)
	}

	if len(task.Assignees) == 0 {
		task.Assignees = nil
	}

	return &task, nil
}
