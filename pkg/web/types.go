package web

import (
	"github.com/dukex/graphroute/pkg/models"
)

// ActorHeader names the user acting on a task.
const ActorHeader = "X-Actor"

// StartRouteRequest starts a new instance of a route model.
type StartRouteRequest struct {
	ModelID   string         `json:"modelId"   validate:"required"`
	Initiator string         `json:"initiator" validate:"required"`
	Variables map[string]any `json:"variables,omitempty"`
}

// TaskCompletionRequest is the body of a task completion or a node resume.
type TaskCompletionRequest struct {
	Comment           string         `json:"comment,omitempty"`
	NodeVariables     map[string]any `json:"nodeVariables,omitempty"`
	WorkflowVariables map[string]any `json:"workflowVariables,omitempty"`
	// JSONFormat marks string variable values as JSON documents to decode.
	JSONFormat bool `json:"jsonFormat,omitempty"`
}

func (r TaskCompletionRequest) CompletionData() models.CompletionData {
	return models.CompletionData{
		Comment:           r.Comment,
		NodeVariables:     r.NodeVariables,
		WorkflowVariables: r.WorkflowVariables,
		JSONFormat:        r.JSONFormat,
	}
}

type ResumeRequest struct {
	TaskCompletionRequest

	ForceResume bool `json:"forceResume,omitempty"`
}

// AcceptedResponse is returned when a request was queued for the worker.
type AcceptedResponse struct {
	EventID string `json:"eventId"`
	RouteID string `json:"routeId"`
}

// RouteResponse carries a route saved by an operation. Errors lists what
// failed after the save: cleanup of tasks and sub-routes or the resume of a
// parent route. The saved state stands either way.
type RouteResponse struct {
	Route  *models.GraphRoute `json:"route"`
	Errors []string           `json:"errors,omitempty"`
}

// ModelSummary describes a route model without its nodes.
type ModelSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Nodes       int    `json:"nodes"`
}

func summarize(model *models.GraphRoute) ModelSummary {
	return ModelSummary{
		ID:          model.ID,
		Name:        model.Name,
		Description: model.Description,
		Nodes:       len(model.Nodes),
	}
}
