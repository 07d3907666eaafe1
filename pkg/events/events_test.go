package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(RouteStartedEvent, "route-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, RouteStartedEvent, event.Type)
	assert.Equal(t, "route-1", event.RouteID)
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
	assert.NotNil(t, event.Metadata)
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event    interface{ GetType() EventType }
		expected EventType
	}{
		{RouteStarted{}, RouteStartedEvent},
		{RouteCompleted{}, RouteCompletedEvent},
		{RouteCanceled{}, RouteCanceledEvent},
		{NodeSuspended{}, NodeSuspendedEvent},
		{NodeWaiting{}, NodeWaitingEvent},
		{NodeCompleted{}, NodeCompletedEvent},
		{NodeCanceled{}, NodeCanceledEvent},
		{TaskCreated{}, TaskCreatedEvent},
		{TaskEnded{}, TaskEndedEvent},
		{TaskCanceled{}, TaskCanceledEvent},
		{TaskOverdue{}, TaskOverdueEvent},
		{TaskCompletionRequested{}, TaskCompletionRequestedEvent},
		{RouteResumeRequested{}, RouteResumeRequestedEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.expected), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.GetType())
		})
	}
}

func TestTaskCompletionRequested_JSONSerialization(t *testing.T) {
	original := &TaskCompletionRequested{
		BaseEvent:         NewBaseEvent(TaskCompletionRequestedEvent, "route-1"),
		TaskID:            "task-1",
		Actor:             "jdoe",
		Status:            "validate",
		Comment:           "ok for me",
		NodeVariables:     map[string]any{"amount": "12"},
		WorkflowVariables: map[string]any{"approved": "true"},
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"task.completion.requested"`)
	assert.Contains(t, string(jsonData), `"task_id":"task-1"`)
	assert.Contains(t, string(jsonData), `"route_id":"route-1"`)

	var deserialized TaskCompletionRequested

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.TaskID, deserialized.TaskID)
	assert.Equal(t, original.Actor, deserialized.Actor)
	assert.Equal(t, original.Status, deserialized.Status)
	assert.Equal(t, original.NodeVariables, deserialized.NodeVariables)
	assert.Equal(t, original.WorkflowVariables, deserialized.WorkflowVariables)
}

func TestNodeWaiting_JSONSerialization(t *testing.T) {
	original := NodeWaiting{
		BaseEvent: NewBaseEvent(NodeWaitingEvent, "route-2"),
		NodeID:    "merge",
		Arrived:   1,
		Expected:  2,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)

	var deserialized NodeWaiting

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.NodeID, deserialized.NodeID)
	assert.Equal(t, 1, deserialized.Arrived)
	assert.Equal(t, 2, deserialized.Expected)
}
