package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/graphroute/pkg/channels/gochannel"
	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newBus(t)
	received := make(chan *events.TaskCompletionRequested, 1)

	err := bus.Handle(events.TaskCompletionRequestedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.TaskCompletionRequested)

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	published := events.TaskCompletionRequested{
		BaseEvent: events.NewBaseEvent(events.TaskCompletionRequestedEvent, "route-1"),
		TaskID:    "task-1",
		Actor:     "jdoe",
		Status:    "validate",
	}
	require.NoError(t, bus.Publish(t.Context(), "route-1", published))

	select {
	case event := <-received:
		assert.Equal(t, "task-1", event.TaskID)
		assert.Equal(t, "route-1", event.RouteID)
		assert.Equal(t, "validate", event.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	bus := newBus(t)
	received := make(chan any, 2)

	require.NoError(t, bus.Handle(events.RouteCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, bus.Publish(t.Context(), "route-1", events.RouteStarted{
		BaseEvent: events.NewBaseEvent(events.RouteStartedEvent, "route-1"),
	}))
	require.NoError(t, bus.Publish(t.Context(), "route-1", events.RouteCompleted{
		BaseEvent: events.NewBaseEvent(events.RouteCompletedEvent, "route-1"),
	}))

	select {
	case event := <-received:
		_, ok := event.(*events.RouteCompleted)
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
