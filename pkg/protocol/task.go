package protocol

import (
	"context"
	"time"

	"github.com/dukex/graphroute/pkg/models"
)

type TaskRequest struct {
	RouteID    string
	NodeID     string
	Name       string
	Assignees  []string
	DueDate    *time.Time
	Permission string
	Variables  map[string]any
}

// TaskService creates and closes human tasks on behalf of suspended nodes.
type TaskService interface {
	CreateTask(ctx context.Context, req TaskRequest) (string, error)
	EndTask(ctx context.Context, taskID, actor, status, comment string) error
	CancelTask(ctx context.Context, taskID, actor string) error
	Task(ctx context.Context, taskID string) (*models.Task, error)
}
