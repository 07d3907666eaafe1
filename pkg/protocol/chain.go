// Package protocol declares the collaborators the route engine calls out to.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/graphroute/pkg/models"
)

// DocumentContext is what a chain sees and may mutate. Writes to the variable
// scopes are visible to the walk once the chain returns.
type DocumentContext struct {
	RouteID      string
	RouteName    string
	NodeID       string
	TransitionID string
	Initiator    string

	RouteVariables *models.VariableScope
	NodeVariables  *models.VariableScope
}

// Chain is an opaque side-effecting step run on node input, node output or
// transition.
type Chain interface {
	Run(ctx context.Context, doc *DocumentContext, logger *slog.Logger) error
}

type ChainFactory interface {
	Create(config map[string]any) (Chain, error)
	ID() string
}

// ChainRunner runs a configured chain by id.
type ChainRunner interface {
	Run(ctx context.Context, chainID string, doc *DocumentContext) error
}
