package models

import (
	"time"
)

type NodeState string

const (
	NodeStateReady     NodeState = "ready"
	NodeStateRunning   NodeState = "running"
	NodeStateSuspended NodeState = "suspended"
	NodeStateWaiting   NodeState = "waiting"
	NodeStateCanceled  NodeState = "canceled"
	NodeStateDone      NodeState = "done"
)

// MergePolicy decides how a node treats several incoming branches.
type MergePolicy string

const (
	MergeNone MergePolicy = ""
	MergeAll  MergePolicy = "all"
	MergeOne  MergePolicy = "one"
)

func (m MergePolicy) Valid() bool {
	return m == MergeNone || m == MergeAll || m == MergeOne
}

// Transition is a directed edge guarded by a boolean condition.
type Transition struct {
	ID        string `json:"id"        validate:"required"`
	Target    string `json:"target"    validate:"required"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
	Chain     string `json:"chain,omitempty"`
}

// KeyValue is an ordered key/expression pair.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type GraphNode struct {
	ID    string `json:"id"              validate:"required"`
	Title string `json:"title,omitempty"`

	Start                      bool        `json:"start,omitempty"`
	Stop                       bool        `json:"stop,omitempty"`
	Merge                      MergePolicy `json:"merge,omitempty"`
	ExecuteOnlyFirstTransition bool        `json:"execute_only_first_transition,omitempty"`

	InputChain  string        `json:"input_chain,omitempty"`
	OutputChain string        `json:"output_chain,omitempty"`
	Transitions []*Transition `json:"transitions,omitempty"`

	HasTask           bool     `json:"has_task,omitempty"`
	HasMultipleTasks  bool     `json:"has_multiple_tasks,omitempty"`
	TaskName          string   `json:"task_name,omitempty"`
	TaskAssignees     []string `json:"task_assignees,omitempty"`
	TaskAssigneesExpr string   `json:"task_assignees_expr,omitempty"`
	TaskDueDateExpr   string   `json:"task_due_date_expr,omitempty"`
	TaskPermission    string   `json:"task_permission,omitempty"`

	SubRouteModel      string     `json:"sub_route_model,omitempty"`
	SubRouteVariables  []KeyValue `json:"sub_route_variables,omitempty"`
	SubRouteInstanceID string     `json:"sub_route_instance_id,omitempty"`

	Variables *VariableScope `json:"variables,omitempty"`

	State     NodeState   `json:"state,omitempty"`
	StartDate *time.Time  `json:"start_date,omitempty"`
	EndDate   *time.Time  `json:"end_date,omitempty"`
	Count     int         `json:"count"`
	TaskInfos []*TaskInfo `json:"task_infos,omitempty"`

	Arrivals        []string       `json:"arrivals,omitempty"`
	MergedVariables *VariableScope `json:"merged_variables,omitempty"`
}

func (n *GraphNode) CurrentState() NodeState {
	if n.State == "" {
		return NodeStateReady
	}

	return n.State
}

func (n *GraphNode) HasSubRoute() bool {
	return n.SubRouteModel != ""
}

func (n *GraphNode) HasTasks() bool {
	return n.HasTask || n.HasMultipleTasks
}

func (n *GraphNode) Transition(id string) *Transition {
	for _, transition := range n.Transitions {
		if transition.ID == id {
			return transition
		}
	}

	return nil
}

// TaskInfo returns the bookkeeping entry for taskID in the current generation.
func (n *GraphNode) TaskInfo(taskID string) *TaskInfo {
	for _, info := range n.TaskInfos {
		if info.TaskID == taskID {
			return info
		}
	}

	return nil
}

// OpenTasks returns the task infos not yet ended or canceled.
func (n *GraphNode) OpenTasks() []*TaskInfo {
	var open []*TaskInfo

	for _, info := range n.TaskInfos {
		if !info.Ended {
			open = append(open, info)
		}
	}

	return open
}

func (n *GraphNode) Tasks() TasksInfo {
	return NewTasksInfo(n.TaskInfos)
}

// HasArrived reports whether the transition reference was recorded in the current wave.
func (n *GraphNode) HasArrived(ref string) bool {
	for _, arrived := range n.Arrivals {
		if arrived == ref {
			return true
		}
	}

	return false
}

func (n *GraphNode) ResetMerge() {
	n.Arrivals = nil
	n.MergedVariables = nil
}

func (n *GraphNode) Clone() *GraphNode {
	clone := *n

	clone.Transitions = make([]*Transition, len(n.Transitions))
	for i, transition := range n.Transitions {
		t := *transition
		clone.Transitions[i] = &t
	}

	clone.TaskAssignees = append([]string(nil), n.TaskAssignees...)
	clone.SubRouteVariables = append([]KeyValue(nil), n.SubRouteVariables...)
	clone.Arrivals = append([]string(nil), n.Arrivals...)
	clone.Variables = n.Variables.Clone()

	if n.MergedVariables != nil {
		clone.MergedVariables = n.MergedVariables.Clone()
	}

	clone.StartDate = cloneTime(n.StartDate)
	clone.EndDate = cloneTime(n.EndDate)

	clone.TaskInfos = make([]*TaskInfo, len(n.TaskInfos))
	for i, info := range n.TaskInfos {
		clone.TaskInfos[i] = info.Clone()
	}

	return &clone
}

// TransitionRef identifies one incoming edge of a node.
func TransitionRef(sourceNodeID, transitionID string) string {
	return sourceNodeID + "/" + transitionID
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}
