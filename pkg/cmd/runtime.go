package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/graphroute/pkg/catalog"
	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/expression/javascript"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/tasks"
	"go.opentelemetry.io/otel/trace"
)

// Config gathers the settings shared by the api and the worker binaries.
type Config struct {
	ServiceName  string
	DatabaseURL  string
	ModelsPath   string
	ChainsPath   string
	EventBus     string
	KafkaBrokers []string
	RedisURL     string
	OtelEnabled  bool
}

// Runtime is the engine with everything it depends on.
type Runtime struct {
	Persistence persistence.Persistence
	Catalog     *catalog.Catalog
	Tasks       *tasks.Service
	EventBus    eventbus.EventBus
	Tracer      trace.Tracer
	Engine      *engine.Engine

	closers []func(ctx context.Context) error
}

func NewRuntime(ctx context.Context, logger *slog.Logger, config Config) (*Runtime, error) {
	r := &Runtime{}

	err := r.init(ctx, logger, config)
	if err != nil {
		return nil, errors.Join(err, r.Close(ctx))
	}

	return r, nil
}

func (r *Runtime) init(ctx context.Context, logger *slog.Logger, config Config) error {
	tracer, err := NewTracer(ctx, config.OtelEnabled, config.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	r.Tracer = tracer

	r.Persistence, err = NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return err
	}

	r.closers = append(r.closers, r.Persistence.Close)

	r.Catalog, err = catalog.New(logger)
	if err != nil {
		return err
	}

	if config.ModelsPath != "" {
		err = r.Catalog.LoadDir(ctx, config.ModelsPath)
		if err != nil {
			return err
		}
	}

	chainRegistry, err := NewChainRegistry(logger, config.ChainsPath)
	if err != nil {
		return err
	}

	r.EventBus, err = NewEventBus(config.EventBus, config.KafkaBrokers, config.ServiceName, logger)
	if err != nil {
		return err
	}

	r.closers = append(r.closers, func(context.Context) error { return r.EventBus.Close() })

	lock, closeLock, err := NewLocker(ctx, config.RedisURL)
	if err != nil {
		return err
	}

	r.closers = append(r.closers, func(context.Context) error { return closeLock() })

	r.Tasks = tasks.NewService(r.Persistence.TaskRepository(), tasks.WithLogger(logger.With("module", "tasks")))

	r.Engine = engine.New(r.Persistence.RouteRepository(),
		engine.WithEvaluator(javascript.New()),
		engine.WithTaskService(r.Tasks),
		engine.WithChainRunner(chainRegistry),
		engine.WithModelProvider(r.Catalog),
		engine.WithLocker(lock),
		engine.WithPublisher(r.EventBus),
		engine.WithTracer(tracer),
		engine.WithLogger(logger.With("module", "engine")),
	)

	return nil
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.closers = nil

	return errors.Join(errs...)
}
