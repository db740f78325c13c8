package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/controller"
	"github.com/unclebandit/warmup-engine/internal/gateway"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/queue"
	"github.com/unclebandit/warmup-engine/internal/repository"
	"github.com/unclebandit/warmup-engine/internal/selection"
	"github.com/unclebandit/warmup-engine/internal/service"
)

type testAPI struct {
	router http.Handler
	repos  *repository.Repositories
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	c := clock.NewFake(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	repos := repository.NewMemory(c)
	rnd := selection.NewSource(1)
	q := queue.NewInMemoryQueue(zap.NewNop(), 0)
	deps := service.NewDeps(repos, gateway.NewMock(1, rnd), notify.New(q, c, zap.NewNop()), rnd, c, zap.NewNop(), nil)

	r := chi.NewRouter()
	controller.NewCampaignController(service.NewWarmupService(deps), zap.NewNop()).Routes(r)

	for i := 1; i <= 2; i++ {
		id := "s" + strconv.Itoa(i)
		require.NoError(t, repos.Sessions.Create(context.Background(), &model.Session{ID: id, OrganizationID: "org", Name: "Session " + strconv.Itoa(i), Status: model.SessionStatusConnected}))
	}
	require.NoError(t, repos.Contacts.Create(context.Background(), &model.Contact{ID: "k1", OrganizationID: "org", Name: "Alice"}))
	return &testAPI{router: r, repos: repos}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(controller.OrganizationHeader, "org")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	resp := w.Result()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testAPI) createCampaign(t *testing.T, name string) model.Campaign {
	t.Helper()
	var c model.Campaign
	status := a.do(t, http.MethodPost, "/campaigns", map[string]any{
		"name":        name,
		"session_ids": []string{"s1", "s2"},
		"contact_ids": []string{"k1"},
	}, &c)
	require.Equal(t, http.StatusCreated, status)
	return c
}

func TestCreateAndGetCampaign(t *testing.T) {
	api := newTestAPI(t)
	created := api.createCampaign(t, "warmup")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "org", created.OrganizationID)
	assert.Len(t, created.Sessions, 2)
	assert.Len(t, created.Contacts, 1)

	var got model.Campaign
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/campaigns/"+created.ID, nil, &got))
	assert.Equal(t, "warmup", got.Name)
	assert.Equal(t, 50, got.DailyMessageGoal)

	var updated model.Campaign
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, "/campaigns/"+created.ID, map[string]any{"daily_message_goal": 5}, &updated))
	assert.Equal(t, 5, updated.DailyMessageGoal)
}

func TestErrorStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	c := api.createCampaign(t, "warmup")

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/campaigns/missing", nil, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/campaigns", map[string]any{"name": ""}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPut, "/campaigns/"+c.ID, map[string]any{"working_hour_start": 20}, nil))
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/resume", nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPauseResumeFlow(t *testing.T) {
	api := newTestAPI(t)
	c := api.createCampaign(t, "warmup")
	var tpl model.MessageTemplate
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/templates", map[string]any{"name": "hi", "content": "Oi {nome}"}, &tpl))

	var paused map[string]any
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/pause", nil, &paused))
	assert.Equal(t, false, paused["is_active"])
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/pause", nil, nil))

	var resumed struct {
		IsActive       bool              `json:"is_active"`
		TestExecutions []model.Execution `json:"test_executions"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/resume", nil, &resumed))
	assert.True(t, resumed.IsActive)
	require.Len(t, resumed.TestExecutions, 1)
	assert.Equal(t, "Oi Alice", resumed.TestExecutions[0].MessageContent)
}

func TestForceExecutionEndpoint(t *testing.T) {
	api := newTestAPI(t)
	c := api.createCampaign(t, "warmup")
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/templates", map[string]any{"name": "hi", "content": "{saudacao} {nome}"}, nil))

	var e model.Execution
	status := api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/force-execution", map[string]any{
		"execution_type":  "internal",
		"from_session_id": "s1",
		"to_session_id":   "s2",
	}, &e)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, model.ExecutionScheduled, e.Status)
	assert.Equal(t, "Bom dia Session 2", e.MessageContent)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/force-execution", map[string]any{
		"execution_type":  "external",
		"from_session_id": "s1",
		"contact_id":      "nobody",
	}, nil))
}

func TestImportTemplatesEndpoint(t *testing.T) {
	api := newTestAPI(t)
	c := api.createCampaign(t, "warmup")

	var res service.ImportResult
	status := api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/templates/import", map[string]any{
		"replace_existing": true,
		"templates": []map[string]any{
			{"name": "a", "content": "one"},
			{"name": "b", "content": "two", "weight": 7},
		},
	}, &res)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 2, res.Summary.SuccessfulImports)
	assert.Equal(t, 2, res.Summary.TotalActiveTemplates)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/templates/import", map[string]any{
		"templates": []map[string]any{{"name": "a"}},
	}, nil))

	var templates []model.MessageTemplate
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/campaigns/"+c.ID+"/templates", nil, &templates))
	assert.Len(t, templates, 2)
}

func TestChildrenEndpoints(t *testing.T) {
	api := newTestAPI(t)
	c := api.createCampaign(t, "warmup")

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/campaigns/"+c.ID+"/sessions/s2", nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/campaigns/"+c.ID+"/sessions/s2", nil, nil))

	var sessions []model.CampaignSession
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/sessions", map[string]any{"session_ids": []string{"s2"}}, &sessions))
	require.Len(t, sessions, 2)

	var cs model.CampaignSession
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPut, "/campaign-sessions/"+sessions[0].ID+"/auto-read", map[string]any{"auto_read_enabled": true}, &cs))
	assert.True(t, cs.AutoReadEnabled)

	var contacts []model.CampaignContact
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/campaigns/"+c.ID+"/contacts", map[string]any{
		"contacts": []map[string]any{{"contact_id": "k1", "priority": 4}},
	}, &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, 4, contacts[0].Priority)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/campaigns/"+c.ID+"/contacts/k1", nil, nil))

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/campaigns/"+c.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/campaigns/"+c.ID, nil, nil))
}

func TestListCampaignsPagination(t *testing.T) {
	api := newTestAPI(t)
	totalCampaigns := 25
	for i := 1; i <= totalCampaigns; i++ {
		api.createCampaign(t, "Campaign "+strconv.Itoa(i))
	}

	pageSize := 10
	seen := map[string]bool{}
	totalPages := (totalCampaigns + pageSize - 1) / pageSize

	for page := 1; page <= totalPages; page++ {
		var res struct {
			Data       []model.Campaign `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				TotalCount int `json:"total_count"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		}
		path := "/campaigns?page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(pageSize)
		require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, path, nil, &res))

		assert.Equal(t, page, res.Pagination.Page)
		assert.Equal(t, pageSize, res.Pagination.PageSize)
		assert.Equal(t, totalCampaigns, res.Pagination.TotalCount)
		assert.Equal(t, totalPages, res.Pagination.TotalPages)

		for _, c := range res.Data {
			assert.False(t, seen[c.ID], "duplicate campaign %s across pages", c.ID)
			seen[c.ID] = true
		}
	}
	assert.Len(t, seen, totalCampaigns)
}
