// Package models holds the graph route data model shared by the engine and its collaborators.
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type RouteState string

const (
	RouteStateReady    RouteState = "ready"
	RouteStateRunning  RouteState = "running"
	RouteStateDone     RouteState = "done"
	RouteStateCanceled RouteState = "canceled"
)

var (
	ErrDuplicateNode     = errors.New("duplicate node id")
	ErrUnknownTarget     = errors.New("transition targets unknown node")
	ErrSeveralStartNodes = errors.New("more than one start node")
	ErrUnknownMerge      = errors.New("unknown merge policy")
)

// GraphRoute is one workflow instance (or a route model when State is empty).
type GraphRoute struct {
	ID          string `json:"id"`
	Name        string `json:"name"                validate:"required"`
	Description string `json:"description,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	Initiator   string `json:"initiator,omitempty"`

	ParentRouteID string `json:"parent_route_id,omitempty"`
	ParentNodeID  string `json:"parent_node_id,omitempty"`

	Nodes     []*GraphNode   `json:"nodes"               validate:"required,min=1,dive"`
	Variables *VariableScope `json:"variables,omitempty"`

	State     RouteState `json:"state,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (r *GraphRoute) CurrentState() RouteState {
	if r.State == "" {
		return RouteStateReady
	}

	return r.State
}

func (r *GraphRoute) IsSubRoute() bool {
	return r.ParentRouteID != ""
}

func (r *GraphRoute) Node(id string) *GraphNode {
	for _, node := range r.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// StartNodes returns every node flagged as start.
func (r *GraphRoute) StartNodes() []*GraphNode {
	var starts []*GraphNode

	for _, node := range r.Nodes {
		if node.Start {
			starts = append(starts, node)
		}
	}

	return starts
}

// Incoming returns the references of every transition targeting nodeID.
func (r *GraphRoute) Incoming(nodeID string) []string {
	var refs []string

	for _, node := range r.Nodes {
		for _, transition := range node.Transitions {
			if transition.Target == nodeID {
				refs = append(refs, TransitionRef(node.ID, transition.ID))
			}
		}
	}

	return refs
}

// Converging returns the incoming references that converge on nodeID together
// with ref. Loop transitions coming back to nodeID form their own wave, apart
// from the transitions entering it the first time. An unknown ref yields every
// incoming reference.
func (r *GraphRoute) Converging(nodeID, ref string) []string {
	loops := r.LoopTransitions()
	incoming := r.Incoming(nodeID)

	if !slices.Contains(incoming, ref) {
		return incoming
	}

	refs := make([]string, 0, len(incoming))

	for _, candidate := range incoming {
		if loops[candidate] == loops[ref] {
			refs = append(refs, candidate)
		}
	}

	return refs
}

// LoopTransitions returns the references of the transitions closing a cycle,
// found by a depth-first walk from the start node in declared order.
func (r *GraphRoute) LoopTransitions() map[string]bool {
	const (
		unvisited = iota
		active
		finished
	)

	state := make(map[string]int, len(r.Nodes))
	loops := make(map[string]bool)

	var visit func(node *GraphNode)

	visit = func(node *GraphNode) {
		state[node.ID] = active

		for _, transition := range node.Transitions {
			switch state[transition.Target] {
			case active:
				loops[TransitionRef(node.ID, transition.ID)] = true
			case unvisited:
				if target := r.Node(transition.Target); target != nil {
					visit(target)
				}
			}
		}

		state[node.ID] = finished
	}

	roots := append(r.StartNodes(), r.Nodes...)
	for _, node := range roots {
		if state[node.ID] == unvisited {
			visit(node)
		}
	}

	return loops
}

// Reaches reports whether target is reachable from source following transitions.
// A node reaches itself.
func (r *GraphRoute) Reaches(source, target string) bool {
	seen := map[string]bool{source: true}
	queue := []string{source}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == target {
			return true
		}

		node := r.Node(current)
		if node == nil {
			continue
		}

		for _, transition := range node.Transitions {
			if !seen[transition.Target] {
				seen[transition.Target] = true
				queue = append(queue, transition.Target)
			}
		}
	}

	return false
}

// Validate checks the structural invariants of the graph.
// A missing start node is only detected when the route starts.
func (r *GraphRoute) Validate() error {
	ids := make(map[string]bool, len(r.Nodes))

	for _, node := range r.Nodes {
		if ids[node.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
		}

		ids[node.ID] = true

		if !node.Merge.Valid() {
			return fmt.Errorf("%w: %q on node %s", ErrUnknownMerge, node.Merge, node.ID)
		}
	}

	for _, node := range r.Nodes {
		for _, transition := range node.Transitions {
			if !ids[transition.Target] {
				return fmt.Errorf("%w: %s -> %s", ErrUnknownTarget, node.ID, transition.Target)
			}
		}
	}

	if len(r.StartNodes()) > 1 {
		return ErrSeveralStartNodes
	}

	return nil
}

func (r *GraphRoute) Clone() *GraphRoute {
	clone := *r

	clone.Variables = r.Variables.Clone()
	clone.StartedAt = cloneTime(r.StartedAt)
	clone.EndedAt = cloneTime(r.EndedAt)

	clone.Nodes = make([]*GraphNode, len(r.Nodes))
	for i, node := range r.Nodes {
		clone.Nodes[i] = node.Clone()
	}

	return &clone
}

// NewInstance creates a fresh, not yet started instance from a route model.
func NewInstance(model *GraphRoute, now time.Time) *GraphRoute {
	instance := model.Clone()
	instance.ID = uuid.NewString()
	instance.ModelID = model.ID
	instance.State = RouteStateReady
	instance.CreatedAt = now
	instance.StartedAt = nil
	instance.EndedAt = nil

	if instance.ModelID == "" {
		instance.ModelID = model.Name
	}

	for _, node := range instance.Nodes {
		node.State = NodeStateReady
		node.Count = 0
		node.StartDate = nil
		node.EndDate = nil
		node.TaskInfos = nil
		node.SubRouteInstanceID = ""
		node.ResetMerge()
	}

	return instance
}
