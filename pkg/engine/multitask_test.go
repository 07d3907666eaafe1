package engine_test

import (
	"context"
	"testing"

	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteWithMultipleTasks(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithMultipleTasks("user1", "user2", "user3"),
			testutil.WithOutputChain("rights"),
			testutil.When("trans1", "node2", "NodeVariables.tasks.status.trans1 == 1"),
		),
		testutil.CreateTestNode("node2", testutil.Merge(models.MergeAll), testutil.Stop()),
	})

	started := h.start(t, route)
	require.Len(t, h.routeTasks(t, route.ID), 3)
	assert.Len(t, started.Node("node1").TaskInfos, 3)

	task1 := h.openTask(t, route.ID, "node1", "user1")
	task2 := h.openTask(t, route.ID, "node1", "user2")
	task3 := h.openTask(t, route.ID, "node1", "user3")
	assert.Equal(t, []string{"user1"}, task1.Assignees)

	updated, err := h.engine.EndTask(context.Background(), task1.ID, "user1", "faketrans1", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateRunning, updated.State)
	assert.Equal(t, models.NodeStateSuspended, updated.Node("node1").State)
	assert.Equal(t, 1, updated.Node("node1").Tasks().NumberEnded())
	assert.Equal(t, 1, updated.Node("node1").Tasks().NumberProcessed())

	updated, err = h.engine.CancelTask(context.Background(), task3.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateRunning, updated.State)
	assert.Equal(t, 2, updated.Node("node1").Tasks().NumberEnded())

	done, err := h.engine.EndTask(context.Background(), task2.ID, "user2", "trans1", models.CompletionData{Comment: "testcomment"})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, done.State)
	assert.Equal(t, 1, done.Node("node2").Count)
	assert.Equal(t, "rights 1", routeVariable(t, done, "rights"))

	node1 := done.Node("node1")
	assert.Equal(t, 3, node1.Tasks().NumberEnded())
	assert.Equal(t, 2, node1.Tasks().NumberProcessed())
	require.Len(t, node1.TaskInfos, 3)

	info1 := node1.TaskInfo(task1.ID)
	assert.Equal(t, "user1", info1.Actor)
	assert.Equal(t, "faketrans1", info1.Status)

	info2 := node1.TaskInfo(task2.ID)
	assert.Equal(t, "user2", info2.Actor)
	assert.Equal(t, "trans1", info2.Status)
	assert.Equal(t, "testcomment", info2.Comment)

	info3 := node1.TaskInfo(task3.ID)
	assert.Equal(t, "admin", info3.Actor)
	assert.Empty(t, info3.Status)
}

func TestMultipleTasks_RemainingTasksCanceledOnTrueTransition(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithMultipleTasks("user1", "user2", "user3"),
			testutil.When("quorum", "node2", "NodeVariables.tasks.processed >= 2"),
		),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	h.start(t, route)

	task1 := h.openTask(t, route.ID, "node1", "user1")
	task2 := h.openTask(t, route.ID, "node1", "user2")
	task3 := h.openTask(t, route.ID, "node1", "user3")

	_, err := h.engine.EndTask(context.Background(), task1.ID, "user1", "approve", models.CompletionData{})
	require.NoError(t, err)

	done, err := h.engine.EndTask(context.Background(), task2.ID, "user2", "approve", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, done.State)

	info3 := done.Node("node1").TaskInfo(task3.ID)
	require.NotNil(t, info3)
	assert.True(t, info3.Ended)
	assert.Equal(t, "system", info3.Actor)
	assert.Empty(t, info3.Status)

	stored, err := h.tasks.Task(context.Background(), task3.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCanceled, stored.Status)
}

func TestMultipleTasks_NoAssigneeProceeds(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.WithMultipleTasks(), testutil.To("t1", "node2")),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	started := h.start(t, route)

	assert.Equal(t, models.RouteStateDone, started.State)
	assert.Empty(t, started.Node("node1").TaskInfos)
	assert.Empty(t, h.routeTasks(t, route.ID))
}

func TestMultipleTasks_StopNodeWaitsForEveryTask(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(), testutil.Stop(), testutil.WithMultipleTasks("user1", "user2")),
	})

	h.start(t, route)

	task1 := h.openTask(t, route.ID, "node1", "user1")
	task2 := h.openTask(t, route.ID, "node1", "user2")

	updated, err := h.engine.EndTask(context.Background(), task1.ID, "user1", "ok", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateRunning, updated.State)

	done, err := h.engine.EndTask(context.Background(), task2.ID, "user2", "ok", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, done.State)
}

func TestMultipleTasks_NoTrueTransitionOnceEveryTaskEnded(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithMultipleTasks("user1", "user2"),
			testutil.When("unanimous", "node2", "NodeVariables.tasks.status.approve == 2"),
		),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	h.start(t, route)

	task1 := h.openTask(t, route.ID, "node1", "user1")
	task2 := h.openTask(t, route.ID, "node1", "user2")

	_, err := h.engine.EndTask(context.Background(), task1.ID, "user1", "approve", models.CompletionData{})
	require.NoError(t, err)

	_, err = h.engine.EndTask(context.Background(), task2.ID, "user2", "reject", models.CompletionData{})
	require.ErrorIs(t, err, engine.ErrNoTrueTransition)

	stored := h.route(t, route.ID)
	assert.Equal(t, models.NodeStateSuspended, stored.Node("node1").State)
	assert.Equal(t, 1, stored.Node("node1").Tasks().NumberOpen())

	_, err = h.engine.EndTask(context.Background(), task1.ID, "user1", "approve", models.CompletionData{})
	assert.ErrorIs(t, err, engine.ErrTaskNotOpen)
}

func TestMultipleTasks_ConditionOnTaskCountsIsEvaluatedOnce(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithMultipleTasks("user1", "user2", "user3"),
			testutil.WithOutputChain("rights"),
			testutil.When("two", "node2", "NodeVariables.tasks.ended == 2"),
		),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	h.start(t, route)

	task1 := h.openTask(t, route.ID, "node1", "user1")
	task2 := h.openTask(t, route.ID, "node1", "user2")
	task3 := h.openTask(t, route.ID, "node1", "user3")

	_, err := h.engine.EndTask(context.Background(), task1.ID, "user1", "ok", models.CompletionData{})
	require.NoError(t, err)

	done, err := h.engine.EndTask(context.Background(), task2.ID, "user2", "ok", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, done.State)
	assert.Equal(t, "rights 1", routeVariable(t, done, "rights"))
	assert.Equal(t, 3, done.Node("node1").Tasks().NumberEnded())

	stored, err := h.tasks.Task(context.Background(), task3.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCanceled, stored.Status)
}

func TestMultipleTasks_CancelingLastOpenTaskMovesOn(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithMultipleTasks("user1", "user2"),
			testutil.When("settled", "node2", "NodeVariables.tasks.open == 0"),
		),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	h.start(t, route)

	task1 := h.openTask(t, route.ID, "node1", "user1")
	task2 := h.openTask(t, route.ID, "node1", "user2")

	updated, err := h.engine.EndTask(context.Background(), task1.ID, "user1", "ok", models.CompletionData{})
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateSuspended, updated.Node("node1").State)

	done, err := h.engine.CancelTask(context.Background(), task2.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateDone, done.State)
	assert.Equal(t, "admin", done.Node("node1").TaskInfo(task2.ID).Actor)
}

func TestMultipleTasks_CancelingLastOpenTaskWithoutTrueTransition(t *testing.T) {
	h := newHarness(t)

	route := testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("node1", testutil.Start(),
			testutil.WithMultipleTasks("user1"),
			testutil.When("approved", "node2", "NodeVariables.tasks.status.approve == 1"),
		),
		testutil.CreateTestNode("node2", testutil.Stop()),
	})

	h.start(t, route)

	task := h.openTask(t, route.ID, "node1", "user1")

	canceled, err := h.engine.CancelTask(context.Background(), task.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RouteStateRunning, canceled.State)
	assert.Equal(t, models.NodeStateSuspended, canceled.Node("node1").State)
	assert.Equal(t, 0, canceled.Node("node1").Tasks().NumberOpen())
}
