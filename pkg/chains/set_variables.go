package chains

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/dukex/graphroute/pkg/template"
)

var ErrInvalidConfig = errors.New("invalid chain configuration")

func NewSetVariablesChainFactory() *SetVariablesChainFactory {
	return &SetVariablesChainFactory{}
}

type SetVariablesChainFactory struct{}

func (*SetVariablesChainFactory) ID() string {
	return "set-variables"
}

// Create reads "route" and "node" maps of variable name to value. String
// values are rendered as templates against the document.
func (f *SetVariablesChainFactory) Create(config map[string]any) (protocol.Chain, error) {
	routeVars, err := mapEntry(config, "route")
	if err != nil {
		return nil, err
	}

	nodeVars, err := mapEntry(config, "node")
	if err != nil {
		return nil, err
	}

	if len(routeVars) == 0 && len(nodeVars) == 0 {
		return nil, fmt.Errorf("%w: set-variables needs a route or node map", ErrInvalidConfig)
	}

	return &SetVariablesChain{route: routeVars, node: nodeVars}, nil
}

func mapEntry(config map[string]any, key string) (map[string]any, error) {
	switch entry := config[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return entry, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a map, got %T", ErrInvalidConfig, key, entry)
	}
}

// SetVariablesChain writes variables to the route and node scopes.
type SetVariablesChain struct {
	route map[string]any
	node  map[string]any
}

func (c *SetVariablesChain) Run(_ context.Context, doc *protocol.DocumentContext, logger *slog.Logger) error {
	for name, raw := range c.route {
		value, err := render(raw, doc)
		if err != nil {
			return fmt.Errorf("route variable %q: %w", name, err)
		}

		err = doc.RouteVariables.SetAny(name, value)
		if err != nil {
			return fmt.Errorf("route variable %q: %w", name, err)
		}
	}

	for name, raw := range c.node {
		value, err := render(raw, doc)
		if err != nil {
			return fmt.Errorf("node variable %q: %w", name, err)
		}

		err = doc.NodeVariables.SetAny(name, value)
		if err != nil {
			return fmt.Errorf("node variable %q: %w", name, err)
		}
	}

	logger.Debug("Variables set", "route", len(c.route), "node", len(c.node))

	return nil
}

func render(raw any, doc *protocol.DocumentContext) (any, error) {
	s, ok := raw.(string)
	if !ok || !template.NeedsTemplating(s) {
		return raw, nil
	}

	return template.RenderDocument(s, doc)
}
