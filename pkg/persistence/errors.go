package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRouteNotFound indicates a route instance was not found by the given identifier.
	ErrRouteNotFound = errors.New("route not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidRoute indicates a route cannot be stored as given.
	ErrInvalidRoute = errors.New("invalid route")
)

// RouteError wraps route-related errors with additional context.
type RouteError struct {
	Op      string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	RouteID string
	Err     error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s operation failed for route %s: %v", e.Op, e.RouteID, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for route errors.
func (e *RouteError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRouteError(op, routeID string, err error) *RouteError {
	return &RouteError{Op: op, RouteID: routeID, Err: err}
}

// TaskError wraps task-related errors with additional context.
type TaskError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewTaskError(op, taskID string, err error) *TaskError {
	return &TaskError{Op: op, TaskID: taskID, Err: err}
}

// IsRouteNotFound checks if an error indicates a route was not found.
func IsRouteNotFound(err error) bool {
	return errors.Is(err, ErrRouteNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
