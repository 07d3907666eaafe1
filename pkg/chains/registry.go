// Package chains runs the side-effecting steps attached to node input, node
// output and transitions.
package chains

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/graphroute/pkg/protocol"
)

// Registry holds chain factories and the chains configured from them.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[string]protocol.ChainFactory
	chains    map[string]protocol.Chain
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[string]protocol.ChainFactory),
		chains:    make(map[string]protocol.Chain),
	}
}

// NewDefaultRegistry registers the built-in factories.
func NewDefaultRegistry(log *slog.Logger) *Registry {
	r := NewRegistry(log)
	r.RegisterFactory(NewLogChainFactory())
	r.RegisterFactory(NewSetVariablesChainFactory())
	r.RegisterFactory(NewHTTPRequestChainFactory())

	return r
}

var _ protocol.ChainRunner = (*Registry)(nil)

func (r *Registry) RegisterFactory(factory protocol.ChainFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
}

// Register binds a ready-made chain to chainID.
func (r *Registry) Register(chainID string, chain protocol.Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chains[chainID] = chain
}

// Define configures chainID from a registered factory.
func (r *Registry) Define(chainID, factoryID string, config map[string]any) error {
	r.mu.RLock()
	factory, ok := r.factories[factoryID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("chain factory '%s' not registered", factoryID)
	}

	chain, err := factory.Create(config)
	if err != nil {
		return fmt.Errorf("failed to create chain '%s': %w", chainID, err)
	}

	r.Register(chainID, chain)

	return nil
}

// Definition is the serialized form of a configured chain.
type Definition struct {
	ID      string         `json:"id"      validate:"required"`
	Factory string         `json:"factory" validate:"required"`
	Config  map[string]any `json:"config,omitempty"`
}

func (r *Registry) DefineAll(definitions []Definition) error {
	for _, definition := range definitions {
		err := r.Define(definition.ID, definition.Factory, definition.Config)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) Run(ctx context.Context, chainID string, doc *protocol.DocumentContext) error {
	r.mu.RLock()
	chain, ok := r.chains[chainID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("chain '%s' not registered", chainID)
	}

	logger := r.logger.With("chain_id", chainID, "route_id", doc.RouteID, "node_id", doc.NodeID)
	if doc.TransitionID != "" {
		logger = logger.With("transition_id", doc.TransitionID)
	}

	return chain.Run(ctx, doc, logger)
}

// Func adapts a function to protocol.Chain.
type Func func(ctx context.Context, doc *protocol.DocumentContext, logger *slog.Logger) error

func (f Func) Run(ctx context.Context, doc *protocol.DocumentContext, logger *slog.Logger) error {
	return f(ctx, doc, logger)
}
