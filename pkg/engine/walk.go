package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/expression"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/protocol"
)

// arrival is one branch reaching a node through a transition.
type arrival struct {
	nodeID string
	// ref is empty when the node is entered directly (start, resume).
	ref    string
	branch *models.VariableScope
	// lineage holds the nodes executed on the path that led here in this pass.
	lineage map[string]bool
}

// pass is one synchronous walk over a route instance. Side effects that must
// not happen unless the route is saved are deferred to commit.
type pass struct {
	engine *Engine
	route  *models.GraphRoute
	logger *slog.Logger
	now    time.Time

	queue   []arrival
	stopped bool
	loops   int

	createdTasks     []string
	startedSubRoutes []string
	effects          []func(context.Context) error
	events           []eventbus.Event
}

func (e *Engine) newPass(route *models.GraphRoute) *pass {
	if route.Variables == nil {
		route.Variables = models.NewVariableScope()
	}

	for _, node := range route.Nodes {
		if node.Variables == nil {
			node.Variables = models.NewVariableScope()
		}
	}

	return &pass{
		engine: e,
		route:  route,
		logger: e.logger.With("route_id", route.ID),
		now:    e.now().UTC(),
	}
}

func (p *pass) enqueue(a arrival) {
	p.queue = append(p.queue, a)
}

func (p *pass) afterSave(effect func(context.Context) error) {
	p.effects = append(p.effects, effect)
}

func (p *pass) emit(event eventbus.Event) {
	p.events = append(p.events, event)
}

// drain processes arrivals in FIFO order. Once the queue is empty and a stop
// node completed, the route is done.
func (p *pass) drain(ctx context.Context) error {
	for len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]

		err := p.arrive(ctx, next)
		if err != nil {
			return err
		}
	}

	if p.stopped && p.route.State == models.RouteStateRunning {
		p.finish()
	}

	return nil
}

func (p *pass) arrive(ctx context.Context, a arrival) error {
	node := p.route.Node(a.nodeID)
	if node == nil {
		return &NodeError{Op: "arrive", RouteID: p.route.ID, NodeID: a.nodeID, Err: ErrNodeNotFound}
	}

	switch node.Merge {
	case models.MergeAll:
		if a.ref == "" {
			return p.execute(ctx, node, a.lineage)
		}

		if !node.HasArrived(a.ref) {
			node.Arrivals = append(node.Arrivals, a.ref)
		}

		if node.MergedVariables == nil {
			node.MergedVariables = models.NewVariableScope()
		}

		node.MergedVariables.Merge(a.branch)

		arrived, expected := p.converged(node, a.ref)
		if arrived < expected {
			p.wait(node, expected)

			return nil
		}

		return p.execute(ctx, node, a.lineage)
	case models.MergeOne:
		p.discardRacingBranches(node)

		return p.execute(ctx, node, a.lineage)
	default:
		return p.execute(ctx, node, a.lineage)
	}
}

// converged counts the arrivals recorded on node within the wave of ref.
func (p *pass) converged(node *models.GraphNode, ref string) (arrived, expected int) {
	refs := p.route.Converging(node.ID, ref)

	for _, r := range refs {
		if node.HasArrived(r) {
			arrived++
		}
	}

	return arrived, len(refs)
}

func (p *pass) wait(node *models.GraphNode, expected int) {
	if node.CurrentState() == models.NodeStateWaiting {
		return
	}

	node.State = models.NodeStateWaiting
	p.logger.Debug("Node waiting for branches", "node_id", node.ID, "arrived", len(node.Arrivals), "expected", expected)
	p.emit(nodeWaiting(p.route, node, expected))
}

// discardRacingBranches drops every other branch that could still reach
// target: queued arrivals and suspended or waiting nodes upstream.
func (p *pass) discardRacingBranches(target *models.GraphNode) {
	kept := p.queue[:0]

	for _, queued := range p.queue {
		if queued.nodeID == target.ID || p.route.Reaches(queued.nodeID, target.ID) {
			p.logger.Debug("Discarding branch", "node_id", queued.nodeID, "merge_node_id", target.ID)

			continue
		}

		kept = append(kept, queued)
	}

	p.queue = kept

	for _, node := range p.route.Nodes {
		if node.ID == target.ID {
			continue
		}

		state := node.CurrentState()
		if state != models.NodeStateSuspended && state != models.NodeStateWaiting {
			continue
		}

		if p.route.Reaches(node.ID, target.ID) {
			p.abort(node)
		}
	}
}

// execute runs a node: input chain, then tasks or sub-route, then completion.
func (p *pass) execute(ctx context.Context, node *models.GraphNode, lineage map[string]bool) error {
	if node.CurrentState() == models.NodeStateSuspended {
		p.closeWork(node)
	}

	if lineage[node.ID] {
		p.loops++

		if p.loops > len(p.route.Nodes) {
			return &LoopingExecutionError{RouteID: p.route.ID, NodeID: node.ID, Loops: p.loops}
		}
	}

	lineage = extend(lineage, node.ID)

	now := p.now
	node.State = models.NodeStateRunning
	node.Count++
	node.StartDate = &now
	node.EndDate = nil
	node.TaskInfos = nil
	node.SubRouteInstanceID = ""

	if node.Merge == models.MergeAll {
		node.Variables.Merge(node.MergedVariables)
		node.ResetMerge()
	}

	p.logger.Debug("Executing node", "node_id", node.ID, "count", node.Count)

	err := p.runChain(ctx, node.InputChain, node, "")
	if err != nil {
		return err
	}

	switch {
	case node.HasTasks():
		suspended, err := p.createTasks(ctx, node)
		if err != nil {
			return err
		}

		if suspended {
			return nil
		}
	case node.HasSubRoute():
		suspended, err := p.startSubRoute(ctx, node)
		if err != nil {
			return err
		}

		if suspended {
			return nil
		}
	}

	return p.complete(ctx, node, lineage)
}

// complete runs the output chain and follows the true transitions.
func (p *pass) complete(ctx context.Context, node *models.GraphNode, lineage map[string]bool) error {
	err := p.runChain(ctx, node.OutputChain, node, "")
	if err != nil {
		return err
	}

	if node.Stop {
		p.done(node, nil)
		p.stopped = true

		return nil
	}

	fired, err := p.evaluateTransitions(ctx, node)
	if err != nil {
		return err
	}

	if len(fired) == 0 {
		return &NoTrueTransitionError{RouteID: p.route.ID, NodeID: node.ID}
	}

	return p.follow(ctx, node, fired, lineage)
}

// follow marks the node done and sends a branch down every fired transition.
func (p *pass) follow(ctx context.Context, node *models.GraphNode, fired []*models.Transition, lineage map[string]bool) error {
	p.done(node, fired)

	for _, transition := range fired {
		err := p.runChain(ctx, transition.Chain, node, transition.ID)
		if err != nil {
			return err
		}

		p.enqueue(arrival{
			nodeID:  transition.Target,
			ref:     models.TransitionRef(node.ID, transition.ID),
			branch:  node.Variables.Clone(),
			lineage: lineage,
		})
	}

	return nil
}

func (p *pass) done(node *models.GraphNode, fired []*models.Transition) {
	now := p.now
	node.State = models.NodeStateDone
	node.EndDate = &now

	p.emit(nodeCompleted(p.route, node, fired))
}

// evaluateTransitions returns the transitions whose condition holds, in
// declared order. An empty condition always holds.
func (p *pass) evaluateTransitions(ctx context.Context, node *models.GraphNode) ([]*models.Transition, error) {
	scope := p.evaluationScope(node, true)

	var fired []*models.Transition

	for _, transition := range node.Transitions {
		ok := true

		if strings.TrimSpace(transition.Condition) != "" {
			var err error

			ok, err = expression.Bool(ctx, p.engine.evaluator, transition.Condition, scope)
			if err != nil {
				var typeErr *expression.TypeError
				if errors.As(err, &typeErr) && errors.Is(err, expression.ErrNotBoolean) {
					return nil, &InvalidConditionTypeError{
						RouteID:      p.route.ID,
						NodeID:       node.ID,
						TransitionID: transition.ID,
						Condition:    transition.Condition,
						Result:       typeErr.Result,
					}
				}

				return nil, &NodeError{Op: "evaluate transition " + transition.ID, RouteID: p.route.ID, NodeID: node.ID, Err: err}
			}
		}

		if !ok {
			continue
		}

		fired = append(fired, transition)

		if node.ExecuteOnlyFirstTransition {
			break
		}
	}

	return fired, nil
}

func (p *pass) runChain(ctx context.Context, chainID string, node *models.GraphNode, transitionID string) error {
	if chainID == "" {
		return nil
	}

	if p.engine.chains == nil {
		return &NodeError{Op: "run chain " + chainID, RouteID: p.route.ID, NodeID: node.ID, Err: errors.New("no chain runner configured")}
	}

	doc := &protocol.DocumentContext{
		RouteID:        p.route.ID,
		RouteName:      p.route.Name,
		NodeID:         node.ID,
		TransitionID:   transitionID,
		Initiator:      p.route.Initiator,
		RouteVariables: p.route.Variables,
		NodeVariables:  node.Variables,
	}

	err := p.engine.chains.Run(ctx, chainID, doc)
	if err != nil {
		return &NodeError{Op: "run chain " + chainID, RouteID: p.route.ID, NodeID: node.ID, Err: err}
	}

	return nil
}

// finish marks the route done and cancels the branches still suspended or
// waiting.
func (p *pass) finish() {
	now := p.now
	p.route.State = models.RouteStateDone
	p.route.EndedAt = &now

	for _, node := range p.route.Nodes {
		state := node.CurrentState()
		if state == models.NodeStateSuspended || state == models.NodeStateWaiting {
			p.abort(node)
		}
	}

	p.logger.Info("Route done")
	p.emit(routeCompleted(p.route))
}

// abort cancels a node that will not run again in its current generation.
func (p *pass) abort(node *models.GraphNode) {
	p.closeWork(node)

	now := p.now
	node.State = models.NodeStateCanceled
	node.EndDate = &now
	node.ResetMerge()

	p.emit(nodeCanceled(p.route, node))
}

// compensate undoes the collaborator calls of a pass that will not be saved.
func (p *pass) compensate(ctx context.Context) {
	for _, taskID := range p.createdTasks {
		err := p.engine.tasks.CancelTask(ctx, taskID, p.engine.principal)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to cancel task of failed walk", "task_id", taskID, "error", err)
		}
	}

	for _, routeID := range p.startedSubRoutes {
		err := p.engine.cancelRoute(ctx, routeID)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to cancel sub-route of failed walk", "sub_route_id", routeID, "error", err)
		}
	}

	p.createdTasks = nil
	p.startedSubRoutes = nil
}

func extend(lineage map[string]bool, nodeID string) map[string]bool {
	out := make(map[string]bool, len(lineage)+1)

	for id := range lineage {
		out[id] = true
	}

	out[nodeID] = true

	return out
}
