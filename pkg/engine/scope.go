package engine

import (
	"fmt"

	"github.com/dukex/graphroute/pkg/models"
)

// Names bound in every evaluation scope next to the variables themselves.
const (
	scopeWorkflowVariables = "WorkflowVariables"
	scopeNodeVariables     = "NodeVariables"
	scopeRouteID           = "workflowInstanceId"
	scopeNodeID            = "nodeId"
	scopeInitiator         = "workflowInitiator"
	scopeCurrentDate       = "CurrentDate"
)

// evaluationScope flattens route variables, then node variables on top, and
// binds both maps under their own names. Task nodes also expose the task
// aggregate as the "tasks" node variable.
func (p *pass) evaluationScope(node *models.GraphNode, withTasks bool) map[string]any {
	routeVars := p.route.Variables.Map()
	nodeVars := node.Variables.Map()

	if withTasks && node.HasTasks() {
		nodeVars[models.TasksVariable] = node.Tasks().Map()
	}

	scope := make(map[string]any, len(routeVars)+len(nodeVars)+6)

	for key, value := range routeVars {
		scope[key] = value
	}

	for key, value := range nodeVars {
		scope[key] = value
	}

	scope[scopeWorkflowVariables] = routeVars
	scope[scopeNodeVariables] = nodeVars
	scope[scopeRouteID] = p.route.ID
	scope[scopeNodeID] = node.ID
	scope[scopeInitiator] = p.route.Initiator
	scope[scopeCurrentDate] = p.now

	return scope
}

// inject merges completion data into the route and node scopes.
func (p *pass) inject(node *models.GraphNode, data models.CompletionData) error {
	workflow, nodeVars, err := data.Decode()
	if err != nil {
		return &NodeError{Op: "inject data", RouteID: p.route.ID, NodeID: node.ID, Err: err}
	}

	routeScope, err := models.ScopeFromMap(workflow)
	if err != nil {
		return &NodeError{Op: "inject data", RouteID: p.route.ID, NodeID: node.ID, Err: fmt.Errorf("workflow variables: %w", err)}
	}

	nodeScope, err := models.ScopeFromMap(nodeVars)
	if err != nil {
		return &NodeError{Op: "inject data", RouteID: p.route.ID, NodeID: node.ID, Err: fmt.Errorf("node variables: %w", err)}
	}

	p.route.Variables.Merge(routeScope)
	node.Variables.Merge(nodeScope)

	if data.Comment != "" {
		node.Variables.Set(models.CommentKey, models.String(data.Comment))
	}

	return nil
}
