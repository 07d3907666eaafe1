// Package testutil provides route builders for tests.
package testutil

import (
	"time"

	"github.com/dukex/graphroute/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a GraphNode with default values that can be overridden.
func CreateTestNode(id string, overrides ...func(*models.GraphNode)) *models.GraphNode {
	node := &models.GraphNode{
		ID:        id,
		Title:     id,
		Variables: models.NewVariableScope(),
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// CreateTestRoute creates a ready GraphRoute holding nodes.
func CreateTestRoute(nodes []*models.GraphNode, overrides ...func(*models.GraphRoute)) *models.GraphRoute {
	route := &models.GraphRoute{
		ID:        uuid.New().String(),
		Name:      "Test Route",
		Initiator: "jdoe",
		Nodes:     nodes,
		Variables: models.NewVariableScope(),
		State:     models.RouteStateReady,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, override := range overrides {
		override(route)
	}

	return route
}

// Start flags the node as the start node.
func Start() func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.Start = true
	}
}

// Stop flags the node as a stop node.
func Stop() func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.Stop = true
	}
}

// Merge sets the merge policy.
func Merge(policy models.MergePolicy) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.Merge = policy
	}
}

// OnlyFirstTransition makes the node follow its first true transition only.
func OnlyFirstTransition() func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.ExecuteOnlyFirstTransition = true
	}
}

// To appends an unconditional transition.
func To(id, target string) func(*models.GraphNode) {
	return When(id, target, "")
}

// When appends a conditional transition.
func When(id, target, condition string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.Transitions = append(n.Transitions, &models.Transition{ID: id, Target: target, Condition: condition})
	}
}

// WithTransitionChain appends a transition running chain when followed.
func WithTransitionChain(id, target, condition, chain string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.Transitions = append(n.Transitions, &models.Transition{ID: id, Target: target, Condition: condition, Chain: chain})
	}
}

// WithInputChain sets the chain run when the node starts.
func WithInputChain(chain string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.InputChain = chain
	}
}

// WithOutputChain sets the chain run when the node completes.
func WithOutputChain(chain string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.OutputChain = chain
	}
}

// WithTask makes the node open one task for every assignee.
func WithTask(assignees ...string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.HasTask = true
		n.TaskAssignees = assignees
	}
}

// WithMultipleTasks makes the node open one task per assignee.
func WithMultipleTasks(assignees ...string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.HasMultipleTasks = true
		n.TaskAssignees = assignees
	}
}

// WithAssigneesExpr sets the assignee expression.
func WithAssigneesExpr(expr string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.TaskAssigneesExpr = expr
	}
}

// WithDueDateExpr sets the due date expression.
func WithDueDateExpr(expr string) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.TaskDueDateExpr = expr
	}
}

// WithSubRoute binds the node to a sub-route model.
func WithSubRoute(modelID string, mappings ...models.KeyValue) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.SubRouteModel = modelID
		n.SubRouteVariables = mappings
	}
}

// WithNodeVariable sets a node variable.
func WithNodeVariable(key string, value models.Value) func(*models.GraphNode) {
	return func(n *models.GraphNode) {
		n.Variables.Set(key, value)
	}
}

// WithRouteVariable sets a route variable.
func WithRouteVariable(key string, value models.Value) func(*models.GraphRoute) {
	return func(r *models.GraphRoute) {
		r.Variables.Set(key, value)
	}
}

// WithRouteID sets the route id.
func WithRouteID(id string) func(*models.GraphRoute) {
	return func(r *models.GraphRoute) {
		r.ID = id
	}
}

// WithRouteName sets the route name.
func WithRouteName(name string) func(*models.GraphRoute) {
	return func(r *models.GraphRoute) {
		r.Name = name
	}
}
