package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/creditflow/pkg/credits"
	"github.com/dukex/creditflow/pkg/executions"
	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence/file"
	"github.com/dukex/creditflow/pkg/services"
	"github.com/dukex/creditflow/pkg/testutil"
	"github.com/dukex/creditflow/pkg/web"
	"github.com/dukex/creditflow/pkg/webhook"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app        *fiber.App
	store      *file.Persistence
	client     *models.Client
	automation *models.Automation
	engineHits *atomic.Int64
	received   chan map[string]any
}

func setupTestApp(t *testing.T, balance, cost int64, engine http.HandlerFunc) *testEnv {
	t.Helper()

	env := &testEnv{
		store:      file.NewPersistence(t.TempDir()),
		engineHits: &atomic.Int64{},
		received:   make(chan map[string]any, 16),
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.engineHits.Add(1)

		var body map[string]any
		if json.NewDecoder(r.Body).Decode(&body) == nil {
			env.received <- body
		}

		engine(w, r)
	}))
	t.Cleanup(server.Close)

	ctx := t.Context()
	env.client = testutil.CreateTestClient(testutil.WithBalance(balance))
	env.automation = testutil.CreateTestAutomation(testutil.WithWebhookURL(server.URL))
	require.NoError(t, env.store.ClientRepository().Save(ctx, env.client))
	require.NoError(t, env.store.AutomationRepository().Save(ctx, env.automation))
	require.NoError(t, env.store.AssignmentRepository().Save(ctx,
		testutil.CreateTestAssignment(env.client.ID, env.automation.ID, testutil.WithCost(cost))))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	dispatch := services.NewDispatch(
		env.store,
		credits.NewPolicy(env.store, logger),
		webhook.NewDispatcher(logger, webhook.WithTimeout(200*time.Millisecond)),
		executions.NewRecorder(env.store, logger),
		logger,
	)

	handlers := web.NewAPIHandlers(
		dispatch,
		services.NewLedger(env.store, logger),
		validator.New(validator.WithRequiredStructEnabled()),
		logger,
	)

	env.app = fiber.New()
	api := env.app.Group("/api")
	api.Get("/n8n/check-credits", handlers.CheckCredits)
	api.Post("/n8n/dispatch", handlers.Dispatch)
	api.Get("/clients/:clientId", handlers.GetClient)
	api.Get("/clients/:clientId/executions", handlers.GetClientExecutions)
	env.app.Get("/health", handlers.HealthCheck)

	return env
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (env *testEnv) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()

	resp, err := env.app.Test(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}

	return resp.StatusCode, body
}

func (env *testEnv) checkCredits(t *testing.T, clientID models.ClientID, automationID models.AutomationID) (int, map[string]any) {
	t.Helper()

	url := "/api/n8n/check-credits?clientId=" + string(clientID) + "&automationId=" + string(automationID)

	return env.do(t, httptest.NewRequest(http.MethodGet, url, nil))
}

func (env *testEnv) dispatch(t *testing.T, body any) (int, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/n8n/dispatch", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")

	return env.do(t, req)
}

func (env *testEnv) dispatchBody() web.DispatchRequest {
	return web.DispatchRequest{
		ClientID:     string(env.client.ID),
		AutomationID: string(env.automation.ID),
		Payload:      map[string]any{"lead": "ada@example.com"},
	}
}

func (env *testEnv) executions(t *testing.T) []*models.Execution {
	t.Helper()

	list, err := env.store.ExecutionRepository().ListByClient(t.Context(), env.client.ID, 0)
	require.NoError(t, err)

	return list
}

func TestCheckCredits(t *testing.T) {
	t.Run("has credits", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		status, body := env.checkCredits(t, env.client.ID, env.automation.ID)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["hasCredits"])
		assert.InDelta(t, 3, body["required"], 0)
		assert.InDelta(t, 7, body["remaining"], 0)
		assert.Equal(t, string(env.client.ID), body["clientId"])
		assert.Equal(t, string(env.automation.ID), body["automationId"])
	})

	t.Run("insufficient balance is still 200", func(t *testing.T) {
		env := setupTestApp(t, 2, 3, ok)

		status, body := env.checkCredits(t, env.client.ID, env.automation.ID)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["hasCredits"])
		assert.InDelta(t, 3, body["required"], 0)
		assert.InDelta(t, 2, body["remaining"], 0)
	})

	t.Run("not assigned", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		status, body := env.checkCredits(t, env.client.ID, "A1")

		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, map[string]any{"hasCredits": false, "error": "Automation not assigned to this client"}, body)
	})

	t.Run("inactive", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)
		require.NoError(t, env.store.AssignmentRepository().Save(t.Context(),
			testutil.CreateTestAssignment(env.client.ID, env.automation.ID, testutil.Inactive())))

		status, body := env.checkCredits(t, env.client.ID, env.automation.ID)

		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Automation is not active for this client", body["error"])
	})

	t.Run("dangling client", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)
		require.NoError(t, env.store.AssignmentRepository().Save(t.Context(),
			testutil.CreateTestAssignment("ghost", env.automation.ID)))

		status, body := env.checkCredits(t, "ghost", env.automation.ID)

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, map[string]any{"hasCredits": false, "error": "Client not found"}, body)
	})

	t.Run("missing parameters", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/n8n/check-credits?clientId=c1", nil))

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation_error", body["type"])
	})

	t.Run("is read only", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		for range 3 {
			status, _ := env.checkCredits(t, env.client.ID, env.automation.ID)
			require.Equal(t, http.StatusOK, status)
		}

		testutil.AssertBalance(t, env.store, env.client.ID, 10)
		assert.Empty(t, env.executions(t))
		assert.Zero(t, env.engineHits.Load())
	})
}

func TestDispatch(t *testing.T) {
	t.Run("success charges credits", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		status, body := env.dispatch(t, env.dispatchBody())

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Automation dispatched successfully", body["message"])
		assert.Contains(t, body["executionId"], "manual-")

		testutil.AssertBalance(t, env.store, env.client.ID, 7)

		list := env.executions(t)
		require.Len(t, list, 1)
		assert.Equal(t, models.ExecutionStatusSuccess, list[0].Status)

		sent := <-env.received
		assert.Equal(t, "ada@example.com", sent["lead"])
		assert.Equal(t, string(env.client.ID), sent["clientId"])
		assert.Equal(t, string(env.automation.ID), sent["automationId"])
		assert.NotNil(t, sent["executionTime"])
	})

	t.Run("each dispatch gets its own execution id", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		_, first := env.dispatch(t, env.dispatchBody())
		_, second := env.dispatch(t, env.dispatchBody())

		require.NotEmpty(t, first["executionId"])
		assert.NotEqual(t, first["executionId"], second["executionId"])
	})

	t.Run("payload is optional", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		status, _ := env.dispatch(t, map[string]string{
			"clientId":     string(env.client.ID),
			"automationId": string(env.automation.ID),
		})

		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("insufficient credits", func(t *testing.T) {
		env := setupTestApp(t, 2, 3, ok)

		status, body := env.dispatch(t, env.dispatchBody())

		assert.Equal(t, http.StatusPaymentRequired, status)
		assert.Equal(t, "Insufficient credits", body["error"])
		assert.InDelta(t, 3, body["required"], 0)
		assert.InDelta(t, 2, body["available"], 0)

		testutil.AssertBalance(t, env.store, env.client.ID, 2)
		assert.Empty(t, env.executions(t))
		assert.Zero(t, env.engineHits.Load())
	})

	t.Run("not assigned matches check credits", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)
		body := env.dispatchBody()
		body.AutomationID = "A1"

		status, resp := env.dispatch(t, body)

		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Automation not assigned to this client", resp["error"])

		checkStatus, checkBody := env.checkCredits(t, env.client.ID, "A1")
		assert.Equal(t, status, checkStatus)
		assert.Equal(t, resp["error"], checkBody["error"])
	})

	t.Run("engine rejects", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"secret stack trace"}`))
		})

		status, body := env.dispatch(t, env.dispatchBody())

		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, "upstream_error", body["type"])
		assert.NotContains(t, body["detail"], "secret")
		assert.NotContains(t, body["detail"], "127.0.0.1")

		testutil.AssertBalance(t, env.store, env.client.ID, 10)

		list := env.executions(t)
		require.Len(t, list, 1)
		assert.Equal(t, models.ExecutionStatusFailed, list[0].Status)
	})

	t.Run("engine times out", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}

			w.WriteHeader(http.StatusOK)
		})

		status, _ := env.dispatch(t, env.dispatchBody())

		assert.Equal(t, http.StatusBadGateway, status)
		testutil.AssertBalance(t, env.store, env.client.ID, 10)
		require.Len(t, env.executions(t), 1)
	})

	t.Run("webhook not configured", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)
		env.automation.WebhookURL = ""
		require.NoError(t, env.store.AutomationRepository().Save(t.Context(), env.automation))

		status, body := env.dispatch(t, env.dispatchBody())

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Automation webhook not configured", body["detail"])
		testutil.AssertBalance(t, env.store, env.client.ID, 10)
	})

	t.Run("dangling client", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)
		require.NoError(t, env.store.AssignmentRepository().Save(t.Context(),
			testutil.CreateTestAssignment("ghost", env.automation.ID)))

		status, body := env.dispatch(t, web.DispatchRequest{ClientID: "ghost", AutomationID: string(env.automation.ID)})

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Client not found", body["error"])
	})

	t.Run("validation", func(t *testing.T) {
		env := setupTestApp(t, 10, 3, ok)

		status, _ := env.dispatch(t, map[string]string{"clientId": string(env.client.ID)})
		assert.Equal(t, http.StatusBadRequest, status)

		req := httptest.NewRequest(http.MethodPost, "/api/n8n/dispatch", bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")

		status, body := env.do(t, req)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid JSON format", body["detail"])

		assert.Zero(t, env.engineHits.Load())
	})
}

func TestClientEndpoints(t *testing.T) {
	env := setupTestApp(t, 10, 3, ok)

	status, _ := env.dispatch(t, env.dispatchBody())
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/clients/"+string(env.client.ID), nil))
	assert.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 7, body["credit_balance"], 0)

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/clients/"+string(env.client.ID)+"/executions?limit=5", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, body["count"], 0)

	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/clients/"+string(env.client.ID)+"/executions?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/clients/missing", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Client not found", body["error"])
}

func TestHealthCheck(t *testing.T) {
	env := setupTestApp(t, 10, 3, ok)

	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}
