// Package engine drives graph route instances: it walks nodes, forks and
// merges branches, suspends on tasks and sub-routes, and resumes or cancels
// instances on request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/expression"
	"github.com/dukex/graphroute/pkg/locker"
	"github.com/dukex/graphroute/pkg/log"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/otelhelper"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPrincipal = "system"

// Engine runs graph route instances against a route store. Every operation
// loads the instance, works on it under the instance lock and saves it back.
type Engine struct {
	routes    persistence.RouteRepository
	evaluator expression.Evaluator
	tasks     protocol.TaskService
	chains    protocol.ChainRunner
	models    protocol.ModelProvider
	locker    locker.Locker
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	principal string
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator sets the evaluator of conditions and node expressions.
// Without it only literals and variable names are understood.
func WithEvaluator(evaluator expression.Evaluator) Option {
	return func(e *Engine) { e.evaluator = evaluator }
}

// WithTaskService sets the collaborator that opens and closes tasks.
func WithTaskService(tasks protocol.TaskService) Option {
	return func(e *Engine) { e.tasks = tasks }
}

// WithChainRunner sets the runner of node and transition chains.
func WithChainRunner(chains protocol.ChainRunner) Option {
	return func(e *Engine) { e.chains = chains }
}

// WithModelProvider sets where sub-route models are loaded from.
func WithModelProvider(provider protocol.ModelProvider) Option {
	return func(e *Engine) { e.models = provider }
}

// WithLocker replaces the in-process instance lock.
func WithLocker(l locker.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithPublisher sets where route events go once an instance is saved.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPrincipal names the actor recorded when the engine itself cancels tasks.
func WithPrincipal(principal string) Option {
	return func(e *Engine) { e.principal = principal }
}

// New creates an engine over the given route store.
func New(routes persistence.RouteRepository, opts ...Option) *Engine {
	e := &Engine{
		routes:    routes,
		evaluator: expression.Literal{},
		locker:    locker.NewLocal(),
		publisher: eventbus.NopPublisher{},
		tracer:    otel.Tracer("graphroute/engine"),
		logger:    log.WithModule("engine"),
		now:       time.Now,
		principal: defaultPrincipal,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Route returns the stored state of a route instance.
func (e *Engine) Route(ctx context.Context, routeID string) (*models.GraphRoute, error) {
	return e.routes.GetByID(ctx, routeID)
}

// Start runs a new instance from its start node until every branch is
// done, suspended or waiting. Nothing is saved when the walk fails.
func (e *Engine) Start(ctx context.Context, route *models.GraphRoute, variables map[string]any) (*models.GraphRoute, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start",
		attribute.String(otelhelper.RouteIDKey, route.ID),
		attribute.String(otelhelper.RouteNameKey, route.Name),
	)
	defer span.End()

	started, err := e.start(ctx, route, variables)
	if err != nil {
		otelhelper.SetError(span, err)

		return started, err
	}

	return started, nil
}

func (e *Engine) start(ctx context.Context, route *models.GraphRoute, variables map[string]any) (*models.GraphRoute, error) {
	route = route.Clone()
	if route.ID == "" {
		route.ID = uuid.NewString()
	}

	if route.CurrentState() != models.RouteStateReady {
		return nil, fmt.Errorf("route %s: %w", route.ID, ErrRouteAlreadyStarted)
	}

	starts := route.StartNodes()
	if len(starts) != 1 {
		return nil, &NoStartNodeError{RouteID: route.ID, Found: len(starts)}
	}

	err := route.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid route %s: %w", route.ID, err)
	}

	initial, err := models.ScopeFromMap(variables)
	if err != nil {
		return nil, fmt.Errorf("invalid variables for route %s: %w", route.ID, err)
	}

	lease, err := e.locker.Lock(ctx, route.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock route %s: %w", route.ID, err)
	}
	defer e.release(ctx, route.ID, lease)

	p := e.newPass(route)
	logger := p.logger

	if route.Variables == nil {
		route.Variables = models.NewVariableScope()
	}

	route.Variables.Merge(initial)

	now := p.now
	route.State = models.RouteStateRunning
	route.StartedAt = &now

	if route.CreatedAt.IsZero() {
		route.CreatedAt = now
	}

	p.emit(routeStarted(route))
	p.enqueue(arrival{nodeID: starts[0].ID})

	err = p.drain(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Route failed to start", "error", err)
		p.compensate(ctx)

		return nil, err
	}

	logger.InfoContext(ctx, "Route started", "state", route.State)

	return e.commit(ctx, p, lease)
}

// Resume re-enters a suspended or waiting node with the given completion
// data. forceResume runs a waiting merge node before every branch arrived.
func (e *Engine) Resume(
	ctx context.Context,
	routeID, nodeID string,
	data models.CompletionData,
	forceResume bool,
) (*models.GraphRoute, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume",
		attribute.String(otelhelper.RouteIDKey, routeID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.Bool(otelhelper.ForceResumeKey, forceResume),
	)
	defer span.End()

	route, err := e.update(ctx, routeID, func(ctx context.Context, p *pass) error {
		return p.resume(ctx, nodeID, data, forceResume)
	})
	if err != nil && route == nil {
		err = e.reconcile(ctx, routeID, err)
	}

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return route, err
}

// EndTask closes an open task with the chosen status and resumes its node.
func (e *Engine) EndTask(
	ctx context.Context,
	taskID, actor, status string,
	data models.CompletionData,
) (*models.GraphRoute, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.end_task",
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.ActorKey, actor),
	)
	defer span.End()

	task, err := e.task(ctx, taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	route, err := e.update(ctx, task.RouteID, func(ctx context.Context, p *pass) error {
		return p.endTask(ctx, task, actor, status, data)
	})
	if err != nil && route == nil {
		err = e.reconcile(ctx, task.RouteID, err)
	}

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return route, err
}

// CancelTask cancels one open task. Its node is not resumed, except for a
// multi-task node left without open tasks whose transitions now hold.
func (e *Engine) CancelTask(ctx context.Context, taskID, actor string) (*models.GraphRoute, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.cancel_task",
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.ActorKey, actor),
	)
	defer span.End()

	task, err := e.task(ctx, taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	route, err := e.update(ctx, task.RouteID, func(ctx context.Context, p *pass) error {
		return p.cancelTask(ctx, task, actor)
	})
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return route, err
}

// Cancel terminates a running route. Open tasks and sub-routes are canceled
// on a best-effort basis; every failure is reported in a CleanupError while
// the route is still saved as canceled.
func (e *Engine) Cancel(ctx context.Context, routeID string) (*models.GraphRoute, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.cancel",
		attribute.String(otelhelper.RouteIDKey, routeID),
	)
	defer span.End()

	route, err := e.update(ctx, routeID, func(ctx context.Context, p *pass) error {
		return p.cancel(ctx)
	})
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return route, err
}

func (e *Engine) task(ctx context.Context, taskID string) (*models.Task, error) {
	if e.tasks == nil {
		return nil, ErrNoTaskService
	}

	task, err := e.tasks.Task(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}

	return task, nil
}

// update runs op on a fresh copy of the stored route under the instance lock.
// A failing op leaves the stored route untouched.
func (e *Engine) update(ctx context.Context, routeID string, op func(context.Context, *pass) error) (*models.GraphRoute, error) {
	lease, err := e.locker.Lock(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock route %s: %w", routeID, err)
	}

	route, err := e.routes.GetByID(ctx, routeID)
	if err != nil {
		e.release(ctx, routeID, lease)

		return nil, err
	}

	p := e.newPass(route)

	err = op(ctx, p)
	if err != nil {
		p.logger.ErrorContext(ctx, "Route operation failed", "error", err)
		p.compensate(ctx)
		e.release(ctx, routeID, lease)

		return nil, err
	}

	saved, commitErr := e.commit(ctx, p, lease)

	e.release(ctx, routeID, lease)

	if saved == nil {
		return nil, commitErr
	}

	return saved, errors.Join(commitErr, e.afterCommit(ctx, saved))
}

// commit saves the route, then issues the effects deferred by the pass and
// publishes its events. Nothing is saved once the lease is lost.
func (e *Engine) commit(ctx context.Context, p *pass, lease locker.Lease) (*models.GraphRoute, error) {
	err := lease.Held(ctx)
	if err != nil {
		p.compensate(ctx)

		return nil, fmt.Errorf("route %s not saved: %w", p.route.ID, err)
	}

	err = e.routes.Save(ctx, p.route)
	if err != nil {
		p.compensate(ctx)

		return nil, fmt.Errorf("failed to save route %s: %w", p.route.ID, err)
	}

	var errs []error

	for _, effect := range p.effects {
		err := effect(ctx)
		if err != nil {
			p.logger.WarnContext(ctx, "Deferred effect failed", "error", err)
			errs = append(errs, err)
		}
	}

	for _, event := range p.events {
		err := e.publisher.Publish(ctx, p.route.ID, event)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to publish route event", "error", err, "event_type", event.GetType())
		}
	}

	if len(errs) > 0 {
		return p.route, &CleanupError{RouteID: p.route.ID, Errs: errs}
	}

	return p.route, nil
}

// afterCommit resumes the parent node of a sub-route that just finished. It
// runs once the child lock is released.
func (e *Engine) afterCommit(ctx context.Context, route *models.GraphRoute) error {
	if !route.IsSubRoute() || route.State != models.RouteStateDone {
		return nil
	}

	_, err := e.update(ctx, route.ParentRouteID, func(ctx context.Context, p *pass) error {
		return p.resumeFromSubRoute(ctx, route.ParentNodeID, route.ID)
	})
	if errors.Is(err, ErrRouteNotRunning) || errors.Is(err, ErrNodeNotResumable) {
		e.logger.InfoContext(ctx, "Parent route no longer waits for sub-route",
			"route_id", route.ParentRouteID, "node_id", route.ParentNodeID, "sub_route_id", route.ID)

		return nil
	}

	if err != nil {
		return &ParentResumeError{RouteID: route.ParentRouteID, NodeID: route.ParentNodeID, SubRouteID: route.ID, Err: err}
	}

	return nil
}

// reconcile retries the parent resume of a finished sub-route when an
// operation finds the child already done. It covers a child saved as done
// whose parent resume failed, so a redelivered command completes the parent.
// The original error is kept unless the retry fails.
func (e *Engine) reconcile(ctx context.Context, routeID string, err error) error {
	if !errors.Is(err, ErrRouteNotRunning) {
		return err
	}

	route, getErr := e.routes.GetByID(ctx, routeID)
	if getErr != nil {
		return err
	}

	retryErr := e.afterCommit(ctx, route)
	if retryErr != nil {
		return retryErr
	}

	return err
}

// cancelRoute cancels a sub-route on behalf of its parent. A route that is
// already finished is left alone.
func (e *Engine) cancelRoute(ctx context.Context, routeID string) error {
	_, err := e.Cancel(ctx, routeID)
	if errors.Is(err, ErrRouteNotRunning) {
		return nil
	}

	return err
}

func (e *Engine) release(ctx context.Context, routeID string, lease locker.Lease) {
	err := lease.Release()
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to release route lock", "route_id", routeID, "error", err)
	}
}
