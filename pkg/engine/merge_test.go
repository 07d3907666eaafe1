package engine_test

import (
	"context"
	"testing"

	"github.com/dukex/graphroute/pkg/events"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkMergeAll(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithTransitionChain("trans1", "node2", "true", "title"),
			testutil.WithTransitionChain("trans2", "node2", "true", "descr"),
		),
		testutil.CreateTestNode("node2", testutil.Merge(models.MergeAll), testutil.WithInputChain("rights"), testutil.Stop()),
	})

	started := h.start(t, route)

	assert.Equal(t, models.RouteStateDone, started.State)
	assert.Equal(t, 1, started.Node("node2").Count)
	assert.Empty(t, started.Node("node2").Arrivals)
	assert.Equal(t, "title 1", routeVariable(t, started, "title"))
	assert.Equal(t, "descr 1", routeVariable(t, started, "description"))
	assert.Equal(t, "rights 1", routeVariable(t, started, "rights"))
}

func TestForkMergeAll_MergesBranchVariables(t *testing.T) {
	h := newHarness(t)
	h.chains.Register("left", setNodeVariable("left", models.Bool(true)))
	h.chains.Register("right", setNodeVariable("right", models.String("done")))

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.To("trans1", "node2"), testutil.To("trans2", "node3")),
		testutil.CreateTestNode("node2", testutil.WithInputChain("left"), testutil.To("trans1", "node4")),
		testutil.CreateTestNode("node3", testutil.WithInputChain("right"), testutil.To("trans2", "node4")),
		testutil.CreateTestNode("node4", testutil.Merge(models.MergeAll), testutil.WithInputChain("rights"), testutil.Stop()),
	})

	started := h.start(t, route)

	assert.Equal(t, models.RouteStateDone, started.State)

	node4 := started.Node("node4")
	assert.Equal(t, 1, node4.Count)

	left, ok := node4.Variables.Get("left")
	require.True(t, ok)
	assert.Equal(t, true, left.Any())

	right, ok := node4.Variables.Get("right")
	require.True(t, ok)
	assert.Equal(t, "done", right.Any())

	assert.Contains(t, h.publisher.types(), events.NodeWaitingEvent)
}

func TestForkMergeAllWithTasks(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.To("trans1", "node2"), testutil.To("trans2", "node3")),
		testutil.CreateTestNode("node2", testutil.WithTask("user1"), testutil.To("trans1", "node4")),
		testutil.CreateTestNode("node3", testutil.WithTask("user2"), testutil.To("trans2", "node4")),
		testutil.CreateTestNode("node4", testutil.Merge(models.MergeAll), testutil.Stop()),
	})

	h.start(t, route)

	task := h.openTask(t, route.ID, "node2", "user1")

	route1, err := h.engine.EndTask(context.Background(), task.ID, "user1", "ok", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateRunning, route1.State)
	assert.Equal(t, models.NodeStateWaiting, route1.Node("node4").State)
	assert.Equal(t, []string{models.TransitionRef("node2", "trans1")}, route1.Node("node4").Arrivals)

	task = h.openTask(t, route.ID, "node3", "user2")

	route2, err := h.engine.EndTask(context.Background(), task.ID, "user2", "ok", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, route2.State)
	assert.Equal(t, models.NodeStateDone, route2.Node("node4").State)
	assert.Equal(t, 1, route2.Node("node4").Count)
}

func TestForkMergeWithLoopTransition(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithTransitionChain("trans1", "node2", "true", "title"),
			testutil.WithTransitionChain("trans2", "node2", "true", "descr"),
		),
		testutil.CreateTestNode("node2",
			testutil.Merge(models.MergeAll),
			testutil.WithInputChain("rights"),
			testutil.Stop(),
			testutil.When("transloop", "node1", "false"),
		),
	})

	started := h.start(t, route)

	assert.Equal(t, models.RouteStateDone, started.State)
	assert.Equal(t, 1, started.Node("node1").Count)
	assert.Equal(t, 1, started.Node("node2").Count)
	assert.Equal(t, "rights 1", routeVariable(t, started, "rights"))
}

func TestForkMergeWithTasksAndLoopTransitions(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("startNode", testutil.Start(),
			testutil.To("transToParallel1", "parallelNode1"),
			testutil.To("transToParallel2", "parallelNode2"),
		),
		testutil.CreateTestNode("parallelNode1", testutil.WithTask("user1"),
			testutil.When("transLoop", "parallelNode1", `NodeVariables["button"] == "loop"`),
			testutil.When("transToMerge", "mergeNode", `NodeVariables["button"] == "toMerge"`),
		),
		testutil.CreateTestNode("parallelNode2", testutil.WithTask("user2"),
			testutil.When("transLoop", "parallelNode2", `NodeVariables["button"] == "loop"`),
			testutil.When("transToMerge", "mergeNode", `NodeVariables["button"] == "toMerge"`),
		),
		testutil.CreateTestNode("mergeNode", testutil.Merge(models.MergeAll), testutil.WithTask("user1"),
			testutil.When("transLoop", "startNode", `NodeVariables["button"] == "loop"`),
			testutil.When("transEnd", "endNode", `NodeVariables["button"] == "end"`),
		),
		testutil.CreateTestNode("endNode", testutil.Stop()),
	})

	h.start(t, route)

	endTask := func(nodeID, actor, status string) *models.GraphRoute {
		t.Helper()

		task := h.openTask(t, route.ID, nodeID, actor)

		updated, err := h.engine.EndTask(context.Background(), task.ID, actor, status, models.CompletionData{})
		require.NoError(t, err)

		return updated
	}

	endTask("parallelNode1", "user1", "toMerge")
	endTask("parallelNode2", "user2", "toMerge")
	looped := endTask("mergeNode", "user1", "loop")

	assert.Equal(t, 2, looped.Node("startNode").Count)
	assert.Equal(t, models.NodeStateSuspended, looped.Node("parallelNode1").State)
	assert.Equal(t, models.NodeStateSuspended, looped.Node("parallelNode2").State)
	assert.Empty(t, looped.Node("mergeNode").Arrivals)

	endTask("parallelNode1", "user1", "toMerge")
	endTask("parallelNode2", "user2", "toMerge")
	done := endTask("mergeNode", "user1", "end")

	assert.Equal(t, models.RouteStateDone, done.State)
	assert.Equal(t, 2, done.Node("parallelNode1").Count)
	assert.Equal(t, 2, done.Node("mergeNode").Count)
	assert.Equal(t, 1, done.Node("endNode").Count)
	assert.Equal(t, 0, countTasks(h.routeTasks(t, route.ID), models.TaskStatusOpen))
}

func TestForkMergeOne(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.To("trans12", "node2"), testutil.To("trans13", "node3")),
		testutil.CreateTestNode("node2", testutil.WithInputChain("title"), testutil.To("trans25", "node5")),
		testutil.CreateTestNode("node3", testutil.WithInputChain("descr"), testutil.To("trans34", "node4")),
		testutil.CreateTestNode("node4", testutil.WithInputChain("rights"), testutil.To("trans45", "node5")),
		testutil.CreateTestNode("node5", testutil.Merge(models.MergeOne), testutil.Stop()),
	})

	started := h.start(t, route)

	assert.Equal(t, models.RouteStateDone, started.State)
	assert.Equal(t, 1, started.Node("node3").Count)
	// node4 is discarded once node5 ran from node2
	assert.Equal(t, 0, started.Node("node4").Count)
	assert.Equal(t, models.NodeStateReady, started.Node("node4").CurrentState())
	assert.Equal(t, 1, started.Node("node5").Count)

	assert.Equal(t, "title 1", routeVariable(t, started, "title"))
	assert.Equal(t, "descr 1", routeVariable(t, started, "description"))

	_, ok := started.Variables.Get("rights")
	assert.False(t, ok)
}

func TestMergeOneWhenHavingOpenedTasks(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.To("trans12", "node2"), testutil.To("trans13", "node3")),
		testutil.CreateTestNode("node2", testutil.WithTask(), testutil.To("trans25", "node5")),
		testutil.CreateTestNode("node3", testutil.To("trans34", "node4")),
		testutil.CreateTestNode("node4", testutil.WithTask("user1"), testutil.To("trans45", "node5")),
		testutil.CreateTestNode("node5", testutil.Merge(models.MergeOne), testutil.Stop()),
	})

	h.start(t, route)
	require.Equal(t, 2, countTasks(h.routeTasks(t, route.ID), models.TaskStatusOpen))

	task := h.openTask(t, route.ID, "node4", "user1")

	done, err := h.engine.EndTask(context.Background(), task.ID, "user1", "", models.CompletionData{})
	require.NoError(t, err)

	assert.Equal(t, models.RouteStateDone, done.State)
	assert.Equal(t, models.NodeStateCanceled, done.Node("node2").State)

	list := h.routeTasks(t, route.ID)
	assert.Equal(t, 0, countTasks(list, models.TaskStatusOpen))
	assert.Equal(t, 1, countTasks(list, models.TaskStatusCanceled))
	assert.Equal(t, 1, countTasks(list, models.TaskStatusEnded))
}

func TestMergeNoneExecutesPerArrival(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.To("trans12", "node2"), testutil.To("trans13", "node3")),
		testutil.CreateTestNode("node2", testutil.To("trans24", "node4")),
		testutil.CreateTestNode("node3", testutil.To("trans34", "node4")),
		testutil.CreateTestNode("node4", testutil.To("trans45", "node5")),
		testutil.CreateTestNode("node5", testutil.Stop()),
	})

	started := h.start(t, route)

	assert.Equal(t, models.RouteStateDone, started.State)
	assert.Equal(t, 2, started.Node("node4").Count)
	assert.Equal(t, 2, started.Node("node5").Count)
}

func TestForceResumeOnMerge(t *testing.T) {
	h := newHarness(t)

	model := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.To("trans12", "node2"), testutil.To("trans13", "node3")),
		testutil.CreateTestNode("node2", testutil.WithInputChain("title"), testutil.WithTask(), testutil.To("trans25", "node5")),
		testutil.CreateTestNode("node3", testutil.WithInputChain("descr"), testutil.To("trans34", "node4")),
		testutil.CreateTestNode("node4", testutil.To("trans45", "node5")),
		testutil.CreateTestNode("node5", testutil.Merge(models.MergeAll), testutil.WithInputChain("rights"), testutil.Stop()),
	})

	// forcing a suspended node only resumes it
	first := h.start(t, models.NewInstance(model, fixedNow))
	assert.Equal(t, models.NodeStateWaiting, first.Node("node5").State)

	resumed, err := h.engine.Resume(context.Background(), first.ID, "node2", models.CompletionData{}, true)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, resumed.State)
	assert.Equal(t, 1, resumed.Node("node5").Count)

	second := h.start(t, models.NewInstance(model, fixedNow))
	require.Equal(t, models.NodeStateWaiting, second.Node("node5").State)

	unchanged, err := h.engine.Resume(context.Background(), second.ID, "node5", models.CompletionData{}, false)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateRunning, unchanged.State)
	assert.Equal(t, models.NodeStateWaiting, unchanged.Node("node5").State)

	forced, err := h.engine.Resume(context.Background(), second.ID, "node5", models.CompletionData{}, true)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, forced.State)
	assert.Equal(t, models.NodeStateDone, forced.Node("node5").State)
	// the branch still suspended on node2 is canceled with its task
	assert.Equal(t, models.NodeStateCanceled, forced.Node("node2").State)

	list := h.routeTasks(t, second.ID)
	require.Len(t, list, 1)
	assert.Equal(t, models.TaskStatusCanceled, list[0].Status)
}

func TestCancelTasksWhenRouteDone(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.WithTask("Administrator"),
			testutil.WithTransitionChain("trans1", "node12", `NodeVariables["button"] == "trans1"`, "title"),
			testutil.WithTransitionChain("trans1b", "node22", `NodeVariables["button"] == "trans1"`, "title"),
			testutil.When("trans2", "node2", "true"),
		),
		testutil.CreateTestNode("node12", testutil.WithTask(), testutil.To("trans12", "node2")),
		testutil.CreateTestNode("node22", testutil.WithTask(), testutil.To("trans22", "node2")),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	h.start(t, route)

	list := h.routeTasks(t, route.ID)
	require.Len(t, list, 1)

	done, err := h.engine.EndTask(context.Background(), list[0].ID, "Administrator", "trans1", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, done.State)

	list = h.routeTasks(t, route.ID)
	assert.Equal(t, 0, countTasks(list, models.TaskStatusOpen))
	assert.Equal(t, 2, countTasks(list, models.TaskStatusCanceled))
	assert.Equal(t, models.NodeStateCanceled, done.Node("node12").State)
	assert.Equal(t, models.NodeStateCanceled, done.Node("node22").State)
}

func TestForkMergeAll_ReentryThroughLoopTransition(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("start", testutil.Start(), testutil.To("tb", "b"), testutil.To("tc", "c")),
		testutil.CreateTestNode("b", testutil.To("tb", "m")),
		testutil.CreateTestNode("c", testutil.To("tc", "m")),
		testutil.CreateTestNode("m", testutil.Merge(models.MergeAll), testutil.To("tr", "r")),
		testutil.CreateTestNode("r", testutil.WithTask("user1"),
			testutil.When("again", "m", `NodeVariables["button"] == "again"`),
			testutil.When("end", "stop", `NodeVariables["button"] == "end"`),
		),
		testutil.CreateTestNode("stop", testutil.Stop()),
	})

	started := h.start(t, route)
	assert.Equal(t, models.RouteStateRunning, started.State)
	assert.Equal(t, models.NodeStateDone, started.Node("m").State)
	assert.Equal(t, 1, started.Node("m").Count)
	assert.Empty(t, started.Node("m").Arrivals)
	assert.Equal(t, models.NodeStateSuspended, started.Node("r").State)

	task := h.openTask(t, route.ID, "r", "user1")

	looped, err := h.engine.EndTask(context.Background(), task.ID, "user1", "again", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, 2, looped.Node("m").Count)
	assert.Equal(t, 2, looped.Node("r").Count)
	assert.Equal(t, models.NodeStateSuspended, looped.Node("r").State)

	task = h.openTask(t, route.ID, "r", "user1")

	done, err := h.engine.EndTask(context.Background(), task.ID, "user1", "end", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, done.State)
	assert.Equal(t, 1, done.Node("stop").Count)
}
