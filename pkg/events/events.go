// Package events defines event types and structures for route lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every route event.
const Topic = "graphroute.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Route lifecycle events.
	RouteStartedEvent   EventType = "route.started"
	RouteCompletedEvent EventType = "route.completed"
	RouteCanceledEvent  EventType = "route.canceled"

	// Node events.
	NodeSuspendedEvent EventType = "node.suspended"
	NodeWaitingEvent   EventType = "node.waiting"
	NodeCompletedEvent EventType = "node.completed"
	NodeCanceledEvent  EventType = "node.canceled"

	// Task events.
	TaskCreatedEvent  EventType = "task.created"
	TaskEndedEvent    EventType = "task.ended"
	TaskCanceledEvent EventType = "task.canceled"
	TaskOverdueEvent  EventType = "task.overdue"

	// Commands consumed by the worker.
	TaskCompletionRequestedEvent EventType = "task.completion.requested"
	RouteResumeRequestedEvent    EventType = "route.resume.requested"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RouteID   string         `json:"route_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RouteStarted struct {
	BaseEvent

	Name          string `json:"name"`
	ModelID       string `json:"model_id,omitempty"`
	Initiator     string `json:"initiator,omitempty"`
	ParentRouteID string `json:"parent_route_id,omitempty"`
}

func (e RouteStarted) GetType() EventType {
	return RouteStartedEvent
}

type RouteCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RouteCompleted) GetType() EventType {
	return RouteCompletedEvent
}

type RouteCanceled struct {
	BaseEvent

	Actor string `json:"actor,omitempty"`
}

func (e RouteCanceled) GetType() EventType {
	return RouteCanceledEvent
}

type NodeSuspended struct {
	BaseEvent

	NodeID             string   `json:"node_id"`
	TaskIDs            []string `json:"task_ids,omitempty"`
	SubRouteInstanceID string   `json:"sub_route_instance_id,omitempty"`
}

func (e NodeSuspended) GetType() EventType {
	return NodeSuspendedEvent
}

type NodeWaiting struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	Arrived  int    `json:"arrived"`
	Expected int    `json:"expected"`
}

func (e NodeWaiting) GetType() EventType {
	return NodeWaitingEvent
}

type NodeCompleted struct {
	BaseEvent

	NodeID      string   `json:"node_id"`
	Count       int      `json:"count"`
	Transitions []string `json:"transitions,omitempty"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeCanceled struct {
	BaseEvent

	NodeID string `json:"node_id"`
}

func (e NodeCanceled) GetType() EventType {
	return NodeCanceledEvent
}

type TaskCreated struct {
	BaseEvent

	NodeID    string     `json:"node_id"`
	TaskID    string     `json:"task_id"`
	Assignees []string   `json:"assignees,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
}

func (e TaskCreated) GetType() EventType {
	return TaskCreatedEvent
}

type TaskEnded struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	TaskID  string `json:"task_id"`
	Actor   string `json:"actor"`
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

func (e TaskEnded) GetType() EventType {
	return TaskEndedEvent
}

type TaskCanceled struct {
	BaseEvent

	NodeID string `json:"node_id"`
	TaskID string `json:"task_id"`
	Actor  string `json:"actor"`
}

func (e TaskCanceled) GetType() EventType {
	return TaskCanceledEvent
}

type TaskOverdue struct {
	BaseEvent

	NodeID    string    `json:"node_id"`
	TaskID    string    `json:"task_id"`
	Assignees []string  `json:"assignees,omitempty"`
	DueDate   time.Time `json:"due_date"`
}

func (e TaskOverdue) GetType() EventType {
	return TaskOverdueEvent
}

// TaskCompletionRequested asks the worker to end a task and resume its route.
type TaskCompletionRequested struct {
	BaseEvent

	TaskID            string         `json:"task_id"`
	Actor             string         `json:"actor"`
	Status            string         `json:"status"`
	Comment           string         `json:"comment,omitempty"`
	NodeVariables     map[string]any `json:"node_variables,omitempty"`
	WorkflowVariables map[string]any `json:"workflow_variables,omitempty"`
	JSONFormat        bool           `json:"json_format,omitempty"`
}

func (e TaskCompletionRequested) GetType() EventType {
	return TaskCompletionRequestedEvent
}

// RouteResumeRequested asks the worker to resume a suspended or waiting node.
type RouteResumeRequested struct {
	BaseEvent

	NodeID      string         `json:"node_id"`
	ForceResume bool           `json:"force_resume"`
	Data        map[string]any `json:"data,omitempty"`
}

func (e RouteResumeRequested) GetType() EventType {
	return RouteResumeRequestedEvent
}

func NewBaseEvent(eventType EventType, routeID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RouteID:   routeID,
		Metadata:  make(map[string]any),
	}
}
