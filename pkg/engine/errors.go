package engine

import (
	"errors"
	"fmt"
)

// Model errors. They abort the walk and are never retried.
var (
	ErrNoStartNode          = errors.New("no start node for graph")
	ErrNoTrueTransition     = errors.New("no transition evaluated to true")
	ErrInvalidConditionType = errors.New("condition does not evaluate to a boolean")
	ErrLoopingExecution     = errors.New("execution is looping")
)

// Call errors.
var (
	ErrRouteNotRunning     = errors.New("route is not running")
	ErrRouteAlreadyStarted = errors.New("route already started")
	ErrNodeNotFound        = errors.New("node not found")
	ErrNodeNotResumable    = errors.New("node is neither suspended nor waiting")
	ErrTaskNotOpen         = errors.New("task is not open")
	ErrNoTaskService       = errors.New("no task service configured")
	ErrNoModelProvider     = errors.New("no model provider configured")
)

type NoStartNodeError struct {
	RouteID string
	Found   int
}

func (e *NoStartNodeError) Error() string {
	return fmt.Sprintf("route %s: %v (found %d)", e.RouteID, ErrNoStartNode, e.Found)
}

func (e *NoStartNodeError) Unwrap() error {
	return ErrNoStartNode
}

type NoTrueTransitionError struct {
	RouteID string
	NodeID  string
}

func (e *NoTrueTransitionError) Error() string {
	return fmt.Sprintf("route %s node %s: %v", e.RouteID, e.NodeID, ErrNoTrueTransition)
}

func (e *NoTrueTransitionError) Unwrap() error {
	return ErrNoTrueTransition
}

type InvalidConditionTypeError struct {
	RouteID      string
	NodeID       string
	TransitionID string
	Condition    string
	Result       any
}

func (e *InvalidConditionTypeError) Error() string {
	return fmt.Sprintf("route %s node %s transition %s: %v: %q returned %T",
		e.RouteID, e.NodeID, e.TransitionID, ErrInvalidConditionType, e.Condition, e.Result)
}

func (e *InvalidConditionTypeError) Unwrap() error {
	return ErrInvalidConditionType
}

// LoopingExecutionError is raised when one synchronous pass re-executes more
// nodes than the graph holds.
type LoopingExecutionError struct {
	RouteID string
	NodeID  string
	Loops   int
}

func (e *LoopingExecutionError) Error() string {
	return fmt.Sprintf("route %s node %s: %v after %d re-executions", e.RouteID, e.NodeID, ErrLoopingExecution, e.Loops)
}

func (e *LoopingExecutionError) Unwrap() error {
	return ErrLoopingExecution
}

// NodeError adds route and node context to a collaborator failure.
type NodeError struct {
	Op      string
	RouteID string
	NodeID  string
	Err     error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s route %s node %s: %v", e.Op, e.RouteID, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// ParentResumeError reports a sub-route saved as done whose parent node could
// not be resumed. Repeating the operation on the sub-route retries the resume.
type ParentResumeError struct {
	RouteID    string
	NodeID     string
	SubRouteID string
	Err        error
}

func (e *ParentResumeError) Error() string {
	return fmt.Sprintf("resume parent route %s node %s after sub-route %s: %v", e.RouteID, e.NodeID, e.SubRouteID, e.Err)
}

func (e *ParentResumeError) Unwrap() error {
	return e.Err
}

// CleanupError collects failures of best-effort effects issued after the route
// was saved. The route state returned alongside it is committed.
type CleanupError struct {
	RouteID string
	Errs    []error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("route %s: %d cleanup failures: %v", e.RouteID, len(e.Errs), errors.Join(e.Errs...))
}

func (e *CleanupError) Unwrap() []error {
	return e.Errs
}
