package protocol

import (
	"context"

	"github.com/dukex/graphroute/pkg/models"
)

// ModelProvider resolves route models used to instantiate sub-routes.
type ModelProvider interface {
	Model(ctx context.Context, id string) (*models.GraphRoute, error)
}
