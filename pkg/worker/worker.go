// Package worker consumes the asynchronous route commands published by the API
// and periodically reports overdue tasks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/graphroute/pkg/catalog"
	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/events"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/otelhelper"
	"github.com/dukex/graphroute/pkg/persistence"
	"github.com/dukex/graphroute/pkg/tasks"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultOverdueSchedule runs the overdue sweep every five minutes.
const DefaultOverdueSchedule = "*/5 * * * *"

type Worker struct {
	id       string
	engine   *engine.Engine
	tasks    *tasks.Service
	eventBus eventbus.EventBus
	logger   *slog.Logger
	tracer   trace.Tracer
	schedule string

	cron *cron.Cron

	mu       sync.Mutex
	notified map[string]struct{}
}

type Option func(*Worker)

// WithOverdueSchedule sets the cron expression of the overdue sweep. An empty
// expression disables the sweep.
func WithOverdueSchedule(schedule string) Option {
	return func(w *Worker) { w.schedule = schedule }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Worker) { w.tracer = tracer }
}

func New(
	id string,
	engine *engine.Engine,
	tasks *tasks.Service,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	opts ...Option,
) *Worker {
	w := &Worker{
		id:       id,
		engine:   engine,
		tasks:    tasks,
		eventBus: eventBus,
		logger:   logger.With("module", "worker", "worker_id", id),
		tracer:   noop.NewTracerProvider().Tracer("worker"),
		schedule: DefaultOverdueSchedule,
		notified: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start registers the command handlers, subscribes to the bus and schedules
// the overdue sweep. It returns once everything is running.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	err := w.eventBus.Handle(events.TaskCompletionRequestedEvent, w.handleTaskCompletion)
	if err != nil {
		return fmt.Errorf("failed to register task completion handler: %w", err)
	}

	err = w.eventBus.Handle(events.RouteResumeRequestedEvent, w.handleRouteResume)
	if err != nil {
		return fmt.Errorf("failed to register route resume handler: %w", err)
	}

	if w.schedule != "" {
		w.cron = cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		))

		_, err = w.cron.AddFunc(w.schedule, func() {
			if err := w.SweepOverdue(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Overdue sweep failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid overdue schedule '%s': %w", w.schedule, err)
		}
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	if w.cron != nil {
		w.cron.Start()
	}

	w.logger.InfoContext(ctx, "Worker started", "overdue_schedule", w.schedule)

	return nil
}

// Stop halts the overdue sweep and waits for a running sweep to finish.
func (w *Worker) Stop(ctx context.Context) {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}

	w.logger.InfoContext(ctx, "Worker stopped")
}

func (w *Worker) handleTaskCompletion(ctx context.Context, event any) error {
	request, ok := event.(*events.TaskCompletionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for TaskCompletionRequested")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.task_completion",
		attribute.String(otelhelper.EventIDKey, request.ID),
		attribute.String(otelhelper.TaskIDKey, request.TaskID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("event_id", request.ID, "route_id", request.RouteID, "task_id", request.TaskID)
	logger.InfoContext(ctx, "Processing task completion request", "actor", request.Actor, "status", request.Status)

	data := models.CompletionData{
		WorkflowVariables: request.WorkflowVariables,
		NodeVariables:     request.NodeVariables,
		JSONFormat:        request.JSONFormat,
		Comment:           request.Comment,
	}

	_, err := w.engine.EndTask(ctx, request.TaskID, request.Actor, request.Status, data)

	return w.settle(ctx, logger, span, "task completion", err)
}

func (w *Worker) handleRouteResume(ctx context.Context, event any) error {
	request, ok := event.(*events.RouteResumeRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RouteResumeRequested")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.route_resume",
		attribute.String(otelhelper.EventIDKey, request.ID),
		attribute.String(otelhelper.RouteIDKey, request.RouteID),
		attribute.String(otelhelper.NodeIDKey, request.NodeID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("event_id", request.ID, "route_id", request.RouteID, "node_id", request.NodeID)
	logger.InfoContext(ctx, "Processing route resume request", "force_resume", request.ForceResume)

	data, err := models.ParseCompletionData(request.Data)
	if err != nil {
		return w.settle(ctx, logger, span, "route resume", fmt.Errorf("%w: %w", errMalformedRequest, err))
	}

	_, err = w.engine.Resume(ctx, request.RouteID, request.NodeID, data, request.ForceResume)

	return w.settle(ctx, logger, span, "route resume", err)
}

var errMalformedRequest = errors.New("malformed request")

// settle decides whether a failed command is retried. Rejections that would
// fail again on redelivery are logged and acknowledged.
func (w *Worker) settle(ctx context.Context, logger *slog.Logger, span trace.Span, what string, err error) error {
	if err == nil {
		logger.InfoContext(ctx, "Processed "+what)

		return nil
	}

	otelhelper.SetError(span, err)

	var parent *engine.ParentResumeError
	if errors.As(err, &parent) && !rejected(parent.Err) {
		logger.ErrorContext(ctx, "Failed to resume parent route after "+what, "error", err, "parent_route_id", parent.RouteID)

		return err
	}

	var cleanup *engine.CleanupError
	if errors.As(err, &cleanup) {
		logger.WarnContext(ctx, "Processed "+what+" with cleanup failures", "error", err)

		return nil
	}

	if rejected(err) {
		logger.WarnContext(ctx, "Rejected "+what, "error", err)

		return nil
	}

	logger.ErrorContext(ctx, "Failed to process "+what, "error", err)

	return err
}

func rejected(err error) bool {
	return persistence.IsRouteNotFound(err) ||
		persistence.IsTaskNotFound(err) ||
		errors.Is(err, errMalformedRequest) ||
		errors.Is(err, catalog.ErrModelNotFound) ||
		errors.Is(err, engine.ErrNodeNotFound) ||
		errors.Is(err, engine.ErrRouteNotRunning) ||
		errors.Is(err, engine.ErrNodeNotResumable) ||
		errors.Is(err, engine.ErrTaskNotOpen) ||
		errors.Is(err, engine.ErrNoStartNode) ||
		errors.Is(err, engine.ErrNoTrueTransition) ||
		errors.Is(err, engine.ErrInvalidConditionType) ||
		errors.Is(err, engine.ErrLoopingExecution) ||
		errors.Is(err, tasks.ErrTaskClosed)
}

// SweepOverdue publishes one task.overdue event per open task past its due
// date. A task is reported once while it stays overdue.
func (w *Worker) SweepOverdue(ctx context.Context) error {
	overdue, err := w.tasks.Overdue(ctx)
	if err != nil {
		return fmt.Errorf("failed to list overdue tasks: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]struct{}, len(overdue))

	var errs []error

	for _, task := range overdue {
		current[task.ID] = struct{}{}

		if _, done := w.notified[task.ID]; done {
			continue
		}

		event := events.TaskOverdue{
			BaseEvent: events.NewBaseEvent(events.TaskOverdueEvent, task.RouteID),
			NodeID:    task.NodeID,
			TaskID:    task.ID,
			Assignees: task.Assignees,
			DueDate:   *task.DueDate,
		}
		event.WorkerID = w.id

		if err := w.eventBus.Publish(ctx, task.RouteID, event); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))

			delete(current, task.ID)

			continue
		}

		w.logger.InfoContext(ctx, "Task overdue", "route_id", task.RouteID, "task_id", task.ID, "due_date", task.DueDate)
	}

	w.notified = current

	return errors.Join(errs...)
}
