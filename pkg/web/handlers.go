// Package web provides HTTP handlers and REST API endpoints for route instances and tasks.
package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/graphroute/pkg/catalog"
	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/events"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/tasks"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	engine      *engine.Engine
	catalog     *catalog.Catalog
	tasks       *tasks.Service
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
}

func NewAPIHandlers(
	engine *engine.Engine,
	catalog *catalog.Catalog,
	tasks *tasks.Service,
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		catalog:     catalog,
		tasks:       tasks,
		persistence: persistence,
		publisher:   publisher,
		validator:   validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "graphroute API is healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "graphroute API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"models":     len(h.catalog.List(c.Context())),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetModels(c fiber.Ctx) error {
	list := h.catalog.List(c.Context())

	summaries := make([]ModelSummary, 0, len(list))
	for _, model := range list {
		summaries = append(summaries, summarize(model))
	}

	return c.JSON(summaries)
}

func (h *APIHandlers) GetModel(c fiber.Ctx) error {
	model, err := h.catalog.Model(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(model)
}

// StartRoute instantiates a catalog model and walks it from its start node.
func (h *APIHandlers) StartRoute(c fiber.Ctx) error {
	var req StartRouteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	model, err := h.catalog.Model(c.Context(), req.ModelID)
	if err != nil {
		return handleEngineError(c, err)
	}

	instance := models.NewInstance(model, time.Now().UTC())
	instance.Initiator = req.Initiator

	started, err := h.engine.Start(c.Context(), instance, req.Variables)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(started)
}

// GetRoutes lists route instances in the state given by the state query parameter, running by default.
func (h *APIHandlers) GetRoutes(c fiber.Ctx) error {
	state := models.RouteState(c.Query("state", string(models.RouteStateRunning)))

	switch state {
	case models.RouteStateReady, models.RouteStateRunning, models.RouteStateDone, models.RouteStateCanceled:
	default:
		return badRequest(c, "Invalid state: "+string(state))
	}

	routes, err := h.persistence.RouteRepository().GetByState(c.Context(), state)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(routes)
}

func (h *APIHandlers) GetRoute(c fiber.Ctx) error {
	route, err := h.engine.Route(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(route)
}

func (h *APIHandlers) GetRouteChildren(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.engine.Route(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	children, err := h.persistence.RouteRepository().GetChildren(c.Context(), id, c.Query("nodeId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(children)
}

func (h *APIHandlers) GetRouteTasks(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.engine.Route(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	list, err := h.tasks.RouteTasks(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(list)
}

// CancelRoute cancels a running route.
func (h *APIHandlers) CancelRoute(c fiber.Ctx) error {
	route, err := h.engine.Cancel(c.Context(), c.Params("id"))

	return committed(c, route, err)
}

// committed answers with the route an operation saved. Failures that happened
// after the save are listed next to it since retrying would be rejected.
func committed(c fiber.Ctx, route *models.GraphRoute, err error) error {
	if route == nil {
		if err == nil {
			err = errors.New("operation returned no route")
		}

		return handleEngineError(c, err)
	}

	response := RouteResponse{Route: route}

	if err != nil {
		for _, failure := range unjoin(err) {
			response.Errors = append(response.Errors, failure.Error())
		}
	}

	return c.JSON(response)
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error

		for _, e := range joined.Unwrap() {
			if e != nil {
				out = append(out, unjoin(e)...)
			}
		}

		return out
	}

	return []error{err}
}

// ResumeNode resumes a suspended or waiting node. With async=true the request
// is queued for the worker.
func (h *APIHandlers) ResumeNode(c fiber.Ctx) error {
	var req ResumeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	routeID := c.Params("id")
	nodeID := c.Params("nodeId")

	if isAsync(c) {
		event := events.RouteResumeRequested{
			BaseEvent:   events.NewBaseEvent(events.RouteResumeRequestedEvent, routeID),
			NodeID:      nodeID,
			ForceResume: req.ForceResume,
			Data:        req.CompletionData().Map(),
		}

		return h.accept(c, routeID, event.ID, event)
	}

	route, err := h.engine.Resume(c.Context(), routeID, nodeID, req.CompletionData(), req.ForceResume)

	return committed(c, route, err)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	list, err := h.tasks.OpenTasks(c.Context(), c.Query("assignee"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(list)
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.tasks.Task(c.Context(), c.Params("taskId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(task)
}

// CompleteTask ends a task with the action given in the path. The action
// becomes the task status seen by transition conditions.
func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	actor := c.Get(ActorHeader)
	if actor == "" {
		return badRequest(c, ActorHeader+" header is required")
	}

	var req TaskCompletionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	task, err := h.tasks.Task(c.Context(), c.Params("taskId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	if err := tasks.CheckAssignee(task, actor); err != nil {
		return handleEngineError(c, err)
	}

	action := c.Params("action")

	if isAsync(c) {
		event := events.TaskCompletionRequested{
			BaseEvent:         events.NewBaseEvent(events.TaskCompletionRequestedEvent, task.RouteID),
			TaskID:            task.ID,
			Actor:             actor,
			Status:            action,
			Comment:           req.Comment,
			NodeVariables:     req.NodeVariables,
			WorkflowVariables: req.WorkflowVariables,
			JSONFormat:        req.JSONFormat,
		}

		return h.accept(c, task.RouteID, event.ID, event)
	}

	route, err := h.engine.EndTask(c.Context(), task.ID, actor, action, req.CompletionData())

	return committed(c, route, err)
}

// CancelTask cancels an open task. Only an assignee or the route initiator may
// cancel it.
func (h *APIHandlers) CancelTask(c fiber.Ctx) error {
	actor := c.Get(ActorHeader)
	if actor == "" {
		return badRequest(c, ActorHeader+" header is required")
	}

	task, err := h.tasks.Task(c.Context(), c.Params("taskId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	route, err := h.engine.Route(c.Context(), task.RouteID)
	if err != nil {
		return handleEngineError(c, err)
	}

	if err := tasks.CheckCanceler(task, actor, route.Initiator); err != nil {
		return handleEngineError(c, err)
	}

	updated, err := h.engine.CancelTask(c.Context(), task.ID, actor)

	return committed(c, updated, err)
}

func (h *APIHandlers) accept(c fiber.Ctx, routeID, eventID string, event eventbus.Event) error {
	if err := h.publisher.Publish(c.Context(), routeID, event); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{EventID: eventID, RouteID: routeID})
}

func isAsync(c fiber.Ctx) bool {
	async, err := strconv.ParseBool(c.Query("async", "false"))

	return err == nil && async
}
