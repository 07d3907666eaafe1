package engine

import (
	"time"

	"github.com/dukex/graphroute/pkg/events"
	"github.com/dukex/graphroute/pkg/models"
)

func routeStarted(route *models.GraphRoute) events.RouteStarted {
	return events.RouteStarted{
		BaseEvent:     events.NewBaseEvent(events.RouteStartedEvent, route.ID),
		Name:          route.Name,
		ModelID:       route.ModelID,
		Initiator:     route.Initiator,
		ParentRouteID: route.ParentRouteID,
	}
}

func routeCompleted(route *models.GraphRoute) events.RouteCompleted {
	var duration time.Duration
	if route.StartedAt != nil && route.EndedAt != nil {
		duration = route.EndedAt.Sub(*route.StartedAt)
	}

	return events.RouteCompleted{
		BaseEvent: events.NewBaseEvent(events.RouteCompletedEvent, route.ID),
		Duration:  duration,
	}
}

func routeCanceled(route *models.GraphRoute, actor string) events.RouteCanceled {
	return events.RouteCanceled{
		BaseEvent: events.NewBaseEvent(events.RouteCanceledEvent, route.ID),
		Actor:     actor,
	}
}

func nodeSuspended(route *models.GraphRoute, node *models.GraphNode) events.NodeSuspended {
	taskIDs := make([]string, 0, len(node.TaskInfos))
	for _, info := range node.TaskInfos {
		taskIDs = append(taskIDs, info.TaskID)
	}

	return events.NodeSuspended{
		BaseEvent:          events.NewBaseEvent(events.NodeSuspendedEvent, route.ID),
		NodeID:             node.ID,
		TaskIDs:            taskIDs,
		SubRouteInstanceID: node.SubRouteInstanceID,
	}
}

func nodeWaiting(route *models.GraphRoute, node *models.GraphNode, expected int) events.NodeWaiting {
	return events.NodeWaiting{
		BaseEvent: events.NewBaseEvent(events.NodeWaitingEvent, route.ID),
		NodeID:    node.ID,
		Arrived:   len(node.Arrivals),
		Expected:  expected,
	}
}

func nodeCompleted(route *models.GraphRoute, node *models.GraphNode, fired []*models.Transition) events.NodeCompleted {
	transitions := make([]string, 0, len(fired))
	for _, transition := range fired {
		transitions = append(transitions, transition.ID)
	}

	return events.NodeCompleted{
		BaseEvent:   events.NewBaseEvent(events.NodeCompletedEvent, route.ID),
		NodeID:      node.ID,
		Count:       node.Count,
		Transitions: transitions,
	}
}

func nodeCanceled(route *models.GraphRoute, node *models.GraphNode) events.NodeCanceled {
	return events.NodeCanceled{
		BaseEvent: events.NewBaseEvent(events.NodeCanceledEvent, route.ID),
		NodeID:    node.ID,
	}
}

func taskCreated(route *models.GraphRoute, node *models.GraphNode, taskID string, assignees []string, dueDate *time.Time) events.TaskCreated {
	return events.TaskCreated{
		BaseEvent: events.NewBaseEvent(events.TaskCreatedEvent, route.ID),
		NodeID:    node.ID,
		TaskID:    taskID,
		Assignees: assignees,
		DueDate:   dueDate,
	}
}

func taskEnded(route *models.GraphRoute, node *models.GraphNode, info *models.TaskInfo) events.TaskEnded {
	return events.TaskEnded{
		BaseEvent: events.NewBaseEvent(events.TaskEndedEvent, route.ID),
		NodeID:    node.ID,
		TaskID:    info.TaskID,
		Actor:     info.Actor,
		Status:    info.Status,
		Comment:   info.Comment,
	}
}

func taskCanceled(route *models.GraphRoute, node *models.GraphNode, taskID, actor string) events.TaskCanceled {
	return events.TaskCanceled{
		BaseEvent: events.NewBaseEvent(events.TaskCanceledEvent, route.ID),
		NodeID:    node.ID,
		TaskID:    taskID,
		Actor:     actor,
	}
}
