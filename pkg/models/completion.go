package models

import (
	"encoding/json"
	"fmt"
)

// Reserved keys of the completion data map.
const (
	WorkflowVariablesKey = "WorkflowVariables"
	NodeVariablesKey     = "NodeVariables"
	JSONFormatKey        = "_MAP_VAR_FORMAT_JSON"
	CommentKey           = "comment"
)

// Node variables written by the engine when a task ends.
const (
	ButtonVariable = "button"
	TasksVariable  = "tasks"
)

// CompletionData carries what a task completion or resume injects into a route.
type CompletionData struct {
	WorkflowVariables map[string]any
	NodeVariables     map[string]any
	// JSONFormat marks string variable values as JSON documents.
	JSONFormat bool
	Comment    string
}

// ParseCompletionData reads the reserved keys of a raw completion map.
func ParseCompletionData(raw map[string]any) (CompletionData, error) {
	var data CompletionData

	if raw == nil {
		return data, nil
	}

	if marker, ok := raw[JSONFormatKey].(bool); ok {
		data.JSONFormat = marker
	}

	if comment, ok := raw[CommentKey].(string); ok {
		data.Comment = comment
	}

	var err error

	data.WorkflowVariables, err = variablesEntry(raw, WorkflowVariablesKey)
	if err != nil {
		return data, err
	}

	data.NodeVariables, err = variablesEntry(raw, NodeVariablesKey)
	if err != nil {
		return data, err
	}

	return data, nil
}

func variablesEntry(raw map[string]any, key string) (map[string]any, error) {
	switch entry := raw[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return entry, nil
	case map[string]string:
		out := make(map[string]any, len(entry))
		for k, v := range entry {
			out[k] = v
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected a map, got %T", key, entry)
	}
}

// Map returns the reserved-key representation.
func (d CompletionData) Map() map[string]any {
	out := map[string]any{}

	if d.WorkflowVariables != nil {
		out[WorkflowVariablesKey] = d.WorkflowVariables
	}

	if d.NodeVariables != nil {
		out[NodeVariablesKey] = d.NodeVariables
	}

	if d.JSONFormat {
		out[JSONFormatKey] = true
	}

	if d.Comment != "" {
		out[CommentKey] = d.Comment
	}

	return out
}

// Decode returns the variables to inject, decoding JSON string values when the
// JSON marker is set.
func (d CompletionData) Decode() (workflow, node map[string]any, err error) {
	workflow, err = d.decode(d.WorkflowVariables)
	if err != nil {
		return nil, nil, fmt.Errorf("workflow variables: %w", err)
	}

	node, err = d.decode(d.NodeVariables)
	if err != nil {
		return nil, nil, fmt.Errorf("node variables: %w", err)
	}

	return workflow, node, nil
}

func (d CompletionData) decode(vars map[string]any) (map[string]any, error) {
	if !d.JSONFormat || vars == nil {
		return vars, nil
	}

	out := make(map[string]any, len(vars))

	for key, value := range vars {
		s, ok := value.(string)
		if !ok {
			out[key] = value

			continue
		}

		var decoded any

		err := json.Unmarshal([]byte(s), &decoded)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", key, err)
		}

		out[key] = decoded
	}

	return out, nil
}
