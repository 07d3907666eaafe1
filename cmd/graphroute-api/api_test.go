package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/graphroute/pkg/catalog"
	"github.com/dukex/graphroute/pkg/engine"
	"github.com/dukex/graphroute/pkg/eventbus"
	"github.com/dukex/graphroute/pkg/expression/javascript"
	"github.com/dukex/graphroute/pkg/models"
	"github.com/dukex/graphroute/pkg/persistence/file"
	"github.com/dukex/graphroute/pkg/tasks"
	"github.com/dukex/graphroute/pkg/testutil"
	"github.com/dukex/graphroute/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())

	modelCatalog, err := catalog.New(logger)
	require.NoError(t, err)

	err = modelCatalog.Register(testutil.CreateTestRoute([]*models.GraphNode{
		testutil.CreateTestNode("draft", testutil.Start(), testutil.To("toSign", "sign")),
		testutil.CreateTestNode("sign", testutil.WithTask("legal"), testutil.To("toArchive", "archive")),
		testutil.CreateTestNode("archive", testutil.Stop()),
	}, testutil.WithRouteID("contract"), testutil.WithRouteName("Contract")))
	require.NoError(t, err)

	taskService := tasks.NewService(persistence.TaskRepository(), tasks.WithLogger(logger))

	e := engine.New(persistence.RouteRepository(),
		engine.WithEvaluator(javascript.New()),
		engine.WithTaskService(taskService),
		engine.WithModelProvider(modelCatalog),
		engine.WithLogger(logger),
	)

	return NewAPI(logger, e, modelCatalog, taskService, persistence, eventbus.NopPublisher{}).App()
}

func send(t *testing.T, app *fiber.App, method, path string, body any, actor string) (int, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if actor != "" {
		req.Header.Set(web.ActorHeader, actor)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	status, body := send(t, app, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "graphroute API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	status, body := send(t, app, http.MethodGet, "/livez", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))

	status, body = send(t, app, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"models":1`)
}

func TestAPI_GetRoutes_Empty(t *testing.T) {
	app := setupTestApp(t)

	status, body := send(t, app, http.MethodGet, "/routes", nil, "")
	require.Equal(t, http.StatusOK, status)

	var routes []models.GraphRoute
	require.NoError(t, json.Unmarshal(body, &routes))
	assert.Empty(t, routes)
}

func TestAPI_RouteLifecycle(t *testing.T) {
	app := setupTestApp(t)

	status, body := send(t, app, http.MethodPost, "/routes", web.StartRouteRequest{
		ModelID:   "contract",
		Initiator: "jdoe",
		Variables: map[string]any{"customer": "ACME"},
	}, "")
	require.Equal(t, http.StatusCreated, status, string(body))

	var route models.GraphRoute
	require.NoError(t, json.Unmarshal(body, &route))
	assert.Equal(t, models.NodeStateSuspended, route.Node("sign").State)

	status, body = send(t, app, http.MethodGet, "/tasks?assignee=legal", nil, "")
	require.Equal(t, http.StatusOK, status)

	var open []models.Task
	require.NoError(t, json.Unmarshal(body, &open))
	require.Len(t, open, 1)
	assert.Equal(t, route.ID, open[0].RouteID)

	status, body = send(t, app, http.MethodPut, "/tasks/"+open[0].ID+"/signed",
		web.TaskCompletionRequest{Comment: "signed in two copies"}, "legal")
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = send(t, app, http.MethodGet, "/routes/"+route.ID, nil, "")
	require.Equal(t, http.StatusOK, status)

	var done models.GraphRoute
	require.NoError(t, json.Unmarshal(body, &done))
	assert.Equal(t, models.RouteStateDone, done.State)
	assert.Equal(t, "signed", done.Node("sign").TaskInfos[0].Status)

	status, body = send(t, app, http.MethodGet, "/routes?state=done", nil, "")
	require.Equal(t, http.StatusOK, status)

	var finished []models.GraphRoute
	require.NoError(t, json.Unmarshal(body, &finished))
	require.Len(t, finished, 1)
	assert.Equal(t, route.ID, finished[0].ID)

	status, _ = send(t, app, http.MethodPost, "/routes/"+route.ID+"/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, status)
}
