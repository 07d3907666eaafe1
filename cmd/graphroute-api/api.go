// Package main provides the graphroute API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/graphroute/pkg/catalog"
	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/tasks"
	"github.com/dukex/graphroute/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	engine      *engine.Engine
	catalog     *catalog.Catalog
	tasks       *tasks.Service
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	engine *engine.Engine,
	catalog *catalog.Catalog,
	tasks *tasks.Service,
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
) *API {
	return &API{
		logger:      logger,
		engine:      engine,
		catalog:     catalog,
		tasks:       tasks,
		persistence: persistence,
		publisher:   publisher,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.catalog, a.tasks, a.persistence, a.publisher, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("graphroute API")
	})

	app.Get("/health", handlers.HealthCheck)

	m := app.Group("/models")
	m.Get("/", handlers.GetModels)
	m.Get("/:id", handlers.GetModel)

	r := app.Group("/routes")
	r.Get("/", handlers.GetRoutes)
	r.Post("/", handlers.StartRoute)
	r.Get("/:id", handlers.GetRoute)
	r.Get("/:id/children", handlers.GetRouteChildren)
	r.Get("/:id/tasks", handlers.GetRouteTasks)
	r.Post("/:id/cancel", handlers.CancelRoute)
	r.Post("/:id/nodes/:nodeId/resume", handlers.ResumeNode)

	t := app.Group("/tasks")
	t.Get("/", handlers.GetTasks)
	t.Get("/:taskId", handlers.GetTask)
	t.Post("/:taskId/cancel", handlers.CancelTask)
	t.Put("/:taskId/:action", handlers.CompleteTask)

	return app
}

// Start serves the API until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
