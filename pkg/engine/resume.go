package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/graphroute/pkg/models"
)

func (p *pass) requireRunning() error {
	if p.route.CurrentState() != models.RouteStateRunning {
		return fmt.Errorf("route %s is %s: %w", p.route.ID, p.route.CurrentState(), ErrRouteNotRunning)
	}

	return nil
}

func (p *pass) node(op, nodeID string) (*models.GraphNode, error) {
	node := p.route.Node(nodeID)
	if node == nil {
		return nil, &NodeError{Op: op, RouteID: p.route.ID, NodeID: nodeID, Err: ErrNodeNotFound}
	}

	return node, nil
}

func (p *pass) resume(ctx context.Context, nodeID string, data models.CompletionData, forceResume bool) error {
	err := p.requireRunning()
	if err != nil {
		return err
	}

	node, err := p.node("resume", nodeID)
	if err != nil {
		return err
	}

	switch node.CurrentState() {
	case models.NodeStateWaiting:
		err := p.inject(node, data)
		if err != nil {
			return err
		}

		if !forceResume && p.stillWaiting(node) {
			p.logger.InfoContext(ctx, "Node still waiting for branches", "node_id", node.ID)

			return nil
		}

		err = p.execute(ctx, node, nil)
		if err != nil {
			return err
		}

		return p.drain(ctx)
	case models.NodeStateSuspended:
		err := p.inject(node, data)
		if err != nil {
			return err
		}

		return p.continueSuspended(ctx, node)
	default:
		return &NodeError{Op: "resume", RouteID: p.route.ID, NodeID: node.ID, Err: ErrNodeNotResumable}
	}
}

func (p *pass) stillWaiting(node *models.GraphNode) bool {
	if len(node.Arrivals) == 0 {
		return len(p.route.Incoming(node.ID)) > 0
	}

	arrived, expected := p.converged(node, node.Arrivals[0])

	return arrived < expected
}

func (p *pass) resumeFromSubRoute(ctx context.Context, nodeID, subRouteID string) error {
	err := p.requireRunning()
	if err != nil {
		return err
	}

	node, err := p.node("resume", nodeID)
	if err != nil {
		return err
	}

	if node.CurrentState() != models.NodeStateSuspended || node.SubRouteInstanceID != subRouteID {
		return &NodeError{Op: "resume", RouteID: p.route.ID, NodeID: node.ID, Err: ErrNodeNotResumable}
	}

	return p.continueSuspended(ctx, node)
}

// continueSuspended completes a suspended node and walks on. A multi-task
// node stays suspended while no transition holds and tasks remain open. Its
// transitions are evaluated once, before the remaining tasks are canceled.
func (p *pass) continueSuspended(ctx context.Context, node *models.GraphNode) error {
	lineage := map[string]bool{node.ID: true}

	if !node.HasMultipleTasks || node.Stop {
		if node.HasMultipleTasks && len(node.OpenTasks()) > 0 {
			return nil
		}

		p.closeWork(node)

		err := p.complete(ctx, node, lineage)
		if err != nil {
			return err
		}

		return p.drain(ctx)
	}

	fired, err := p.evaluateTransitions(ctx, node)
	if err != nil {
		return err
	}

	if len(fired) == 0 {
		if len(node.OpenTasks()) > 0 {
			return nil
		}

		return &NoTrueTransitionError{RouteID: p.route.ID, NodeID: node.ID}
	}

	p.closeWork(node)

	err = p.runChain(ctx, node.OutputChain, node, "")
	if err != nil {
		return err
	}

	err = p.follow(ctx, node, fired, lineage)
	if err != nil {
		return err
	}

	return p.drain(ctx)
}

func (p *pass) endTask(ctx context.Context, task *models.Task, actor, status string, data models.CompletionData) error {
	err := p.requireRunning()
	if err != nil {
		return err
	}

	node, info, err := p.openTask(task)
	if err != nil {
		return err
	}

	if node.CurrentState() != models.NodeStateSuspended {
		return &NodeError{Op: "end task", RouteID: p.route.ID, NodeID: node.ID, Err: ErrNodeNotResumable}
	}

	now := p.now
	info.Ended = true
	info.Actor = actor
	info.Status = status
	info.Comment = data.Comment
	info.EndDate = &now

	node.Variables.Set(models.ButtonVariable, models.String(status))

	err = p.inject(node, data)
	if err != nil {
		return err
	}

	taskID := task.ID

	p.afterSave(func(ctx context.Context) error {
		return p.engine.tasks.EndTask(ctx, taskID, actor, status, data.Comment)
	})
	p.emit(taskEnded(p.route, node, info))

	p.logger.InfoContext(ctx, "Task ended", "node_id", node.ID, "task_id", taskID, "actor", actor, "status", status)

	return p.continueSuspended(ctx, node)
}

func (p *pass) cancelTask(ctx context.Context, task *models.Task, actor string) error {
	err := p.requireRunning()
	if err != nil {
		return err
	}

	node, info, err := p.openTask(task)
	if err != nil {
		return err
	}

	now := p.now
	info.Ended = true
	info.Actor = actor
	info.Status = ""
	info.EndDate = &now

	taskID := task.ID

	p.afterSave(func(ctx context.Context) error {
		return p.engine.tasks.CancelTask(ctx, taskID, actor)
	})
	p.emit(taskCanceled(p.route, node, taskID, actor))

	if !node.HasMultipleTasks || node.CurrentState() != models.NodeStateSuspended || len(node.OpenTasks()) > 0 {
		return nil
	}

	return p.settleMultipleTasks(ctx, node)
}

// settleMultipleTasks moves a multi-task node whose last open task was
// canceled. Without a true transition it stays suspended until resumed.
func (p *pass) settleMultipleTasks(ctx context.Context, node *models.GraphNode) error {
	err := p.continueSuspended(ctx, node)

	var noTrue *NoTrueTransitionError
	if errors.As(err, &noTrue) && noTrue.NodeID == node.ID && node.CurrentState() == models.NodeStateSuspended {
		p.logger.WarnContext(ctx, "No open task and no true transition, node stays suspended", "node_id", node.ID)

		return nil
	}

	return err
}

// openTask finds the open task info of task in the current node generation.
func (p *pass) openTask(task *models.Task) (*models.GraphNode, *models.TaskInfo, error) {
	node, err := p.node("task", task.NodeID)
	if err != nil {
		return nil, nil, err
	}

	info := node.TaskInfo(task.ID)
	if info == nil || info.Ended {
		return nil, nil, fmt.Errorf("task %s: %w", task.ID, ErrTaskNotOpen)
	}

	return node, info, nil
}

// cancel terminates the route. Every node not done is canceled with its open
// tasks and sub-route.
func (p *pass) cancel(ctx context.Context) error {
	err := p.requireRunning()
	if err != nil {
		return err
	}

	now := p.now
	p.route.State = models.RouteStateCanceled
	p.route.EndedAt = &now

	for _, node := range p.route.Nodes {
		state := node.CurrentState()
		if state == models.NodeStateDone || state == models.NodeStateCanceled {
			continue
		}

		p.abort(node)
	}

	p.logger.InfoContext(ctx, "Route canceled")
	p.emit(routeCanceled(p.route, p.engine.principal))

	return nil
}
