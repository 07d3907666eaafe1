package engine

import (
	"context"
	"slices"

	"github.com/dukex/graphroute/pkg/expression"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/protocol"
)

// createTasks opens the node tasks and suspends it. A multi-task node with no
// assignee has nothing to wait for and proceeds.
func (p *pass) createTasks(ctx context.Context, node *models.GraphNode) (bool, error) {
	if p.engine.tasks == nil {
		return false, &NodeError{Op: "create task", RouteID: p.route.ID, NodeID: node.ID, Err: ErrNoTaskService}
	}

	scope := p.evaluationScope(node, false)

	assignees, err := p.assignees(ctx, node, scope)
	if err != nil {
		return false, err
	}

	dueDate, err := expression.Time(ctx, p.engine.evaluator, node.TaskDueDateExpr, scope)
	if err != nil {
		return false, &NodeError{Op: "evaluate due date", RouteID: p.route.ID, NodeID: node.ID, Err: err}
	}

	var groups [][]string

	if node.HasMultipleTasks {
		for _, assignee := range assignees {
			groups = append(groups, []string{assignee})
		}
	} else {
		groups = [][]string{assignees}
	}

	if len(groups) == 0 {
		p.logger.InfoContext(ctx, "No assignee for multiple tasks, node proceeds", "node_id", node.ID)

		return false, nil
	}

	for _, group := range groups {
		taskID, err := p.engine.tasks.CreateTask(ctx, protocol.TaskRequest{
			RouteID:    p.route.ID,
			NodeID:     node.ID,
			Name:       taskName(node),
			Assignees:  group,
			DueDate:    dueDate,
			Permission: node.TaskPermission,
			Variables:  node.Variables.Map(),
		})
		if err != nil {
			return false, &NodeError{Op: "create task", RouteID: p.route.ID, NodeID: node.ID, Err: err}
		}

		p.createdTasks = append(p.createdTasks, taskID)
		node.TaskInfos = append(node.TaskInfos, &models.TaskInfo{TaskID: taskID})

		p.emit(taskCreated(p.route, node, taskID, group, dueDate))
	}

	p.suspend(node)

	return true, nil
}

// assignees merges the static assignees with the expression result, keeping
// the first occurrence of each.
func (p *pass) assignees(ctx context.Context, node *models.GraphNode, scope map[string]any) ([]string, error) {
	evaluated, err := expression.Strings(ctx, p.engine.evaluator, node.TaskAssigneesExpr, scope)
	if err != nil {
		return nil, &NodeError{Op: "evaluate assignees", RouteID: p.route.ID, NodeID: node.ID, Err: err}
	}

	var assignees []string

	for _, assignee := range slices.Concat(node.TaskAssignees, evaluated) {
		if assignee != "" && !slices.Contains(assignees, assignee) {
			assignees = append(assignees, assignee)
		}
	}

	return assignees, nil
}

func taskName(node *models.GraphNode) string {
	switch {
	case node.TaskName != "":
		return node.TaskName
	case node.Title != "":
		return node.Title
	default:
		return node.ID
	}
}

// startSubRoute instantiates and starts the bound model. The node suspends
// unless the child finished synchronously.
func (p *pass) startSubRoute(ctx context.Context, node *models.GraphNode) (bool, error) {
	if p.engine.models == nil {
		return false, &NodeError{Op: "start sub-route", RouteID: p.route.ID, NodeID: node.ID, Err: ErrNoModelProvider}
	}

	model, err := p.engine.models.Model(ctx, node.SubRouteModel)
	if err != nil {
		return false, &NodeError{Op: "load sub-route model " + node.SubRouteModel, RouteID: p.route.ID, NodeID: node.ID, Err: err}
	}

	scope := p.evaluationScope(node, false)
	variables := make(map[string]any, len(node.SubRouteVariables))

	for _, mapping := range node.SubRouteVariables {
		value, err := p.engine.evaluator.Evaluate(ctx, mapping.Value, scope)
		if err != nil {
			return false, &NodeError{Op: "evaluate sub-route variable " + mapping.Key, RouteID: p.route.ID, NodeID: node.ID, Err: err}
		}

		variables[mapping.Key] = value
	}

	child := models.NewInstance(model, p.now)
	child.ParentRouteID = p.route.ID
	child.ParentNodeID = node.ID
	child.Initiator = p.route.Initiator

	started, err := p.engine.start(ctx, child, variables)
	if err != nil {
		return false, &NodeError{Op: "start sub-route", RouteID: p.route.ID, NodeID: node.ID, Err: err}
	}

	p.startedSubRoutes = append(p.startedSubRoutes, started.ID)
	node.SubRouteInstanceID = started.ID

	if started.State == models.RouteStateDone {
		p.logger.DebugContext(ctx, "Sub-route finished synchronously", "node_id", node.ID, "sub_route_id", started.ID)

		return false, nil
	}

	p.suspend(node)

	return true, nil
}

func (p *pass) suspend(node *models.GraphNode) {
	node.State = models.NodeStateSuspended
	p.emit(nodeSuspended(p.route, node))
}

// closeWork cancels the open tasks of a node and its running sub-route once
// the route is saved. Canceled tasks keep an empty status.
func (p *pass) closeWork(node *models.GraphNode) {
	principal := p.engine.principal

	for _, info := range node.OpenTasks() {
		now := p.now
		info.Ended = true
		info.Actor = principal
		info.Status = ""
		info.EndDate = &now

		taskID := info.TaskID

		p.afterSave(func(ctx context.Context) error {
			return p.engine.tasks.CancelTask(ctx, taskID, principal)
		})
		p.emit(taskCanceled(p.route, node, taskID, principal))
	}

	if node.SubRouteInstanceID != "" && node.CurrentState() == models.NodeStateSuspended {
		childID := node.SubRouteInstanceID

		p.afterSave(func(ctx context.Context) error {
			return p.engine.cancelRoute(ctx, childID)
		})
	}
}
