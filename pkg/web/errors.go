package web

import (
	"errors"

	"github.com/dukex/graphroute/pkg/catalog"
	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func problem(c fiber.Ctx, status int, problemType string, err error) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(status).JSON(p)
}

// handleEngineError maps engine, store and catalog errors to problem documents.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsRouteNotFound(err):
		return notFound(c, "Route not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "Task not found")

	case errors.Is(err, catalog.ErrModelNotFound):
		return notFound(c, "Route model not found")

	case errors.Is(err, engine.ErrNodeNotFound):
		return notFound(c, "Node not found")

	case errors.Is(err, tasks.ErrNotAssignee):
		return problem(c, fiber.StatusForbidden, "not_assignee", err)

	case errors.Is(err, engine.ErrRouteNotRunning),
		errors.Is(err, engine.ErrRouteAlreadyStarted),
		errors.Is(err, engine.ErrNodeNotResumable),
		errors.Is(err, engine.ErrTaskNotOpen),
		errors.Is(err, tasks.ErrTaskClosed):
		return problem(c, fiber.StatusConflict, "conflict", err)

	case errors.Is(err, engine.ErrNoStartNode),
		errors.Is(err, engine.ErrNoTrueTransition),
		errors.Is(err, engine.ErrInvalidConditionType),
		errors.Is(err, engine.ErrLoopingExecution):
		return problem(c, fiber.StatusUnprocessableEntity, "route_model_error", err)

	default:
		p := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
