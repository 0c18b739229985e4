package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orels1/api.v3.cogs.red/internal/registry/hooks"
	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
	"github.com/orels1/api.v3.cogs.red/internal/registry/panel"
	"github.com/orels1/api.v3.cogs.red/internal/registry/store"
	"github.com/orels1/api.v3.cogs.red/internal/registry/syncer"
	"github.com/orels1/api.v3.cogs.red/internal/registry/validate"
	"github.com/orels1/api.v3.cogs.red/internal/webservice/handlers"
)

type mockReconciler struct {
	action hooks.Action
	err    error

	gotParams    hooks.Params
	gotEventType string
	gotSignature string
	gotPayload   []byte
}

func (m *mockReconciler) HandleEvent(_ context.Context, params hooks.Params, eventType, signature string, payload []byte) (hooks.Action, error) {
	m.gotParams = params
	m.gotEventType = eventType
	m.gotSignature = signature
	m.gotPayload = payload
	return m.action, m.err
}

type mockPipeline struct {
	previewResult validate.Result
	previewErr    error
	syncResult    syncer.Result
	syncErr       error
}

func (m *mockPipeline) Preview(_ context.Context, _, _, _ string) (validate.Result, error) {
	return m.previewResult, m.previewErr
}

func (m *mockPipeline) Sync(_ context.Context, _, _, _ string) (syncer.Result, error) {
	return m.syncResult, m.syncErr
}

type mockPanel struct {
	repo *models.Repository
	cogs []string
	err  error

	gotState  string
	gotHidden bool
	gotType   string
	gotIP     string
	gotCog    string
}

func (m *mockPanel) Approve(_ context.Context, _, _, _, state string) (*models.Repository, []string, error) {
	m.gotState = state
	return m.repo, m.cogs, m.err
}

func (m *mockPanel) SetHidden(_ context.Context, _, _, _ string, hidden bool) (*models.Repository, []string, error) {
	m.gotHidden = hidden
	return m.repo, m.cogs, m.err
}

func (m *mockPanel) AddReport(_ context.Context, _, _, _, cog, reportType, ip, _ string) error {
	m.gotCog = cog
	m.gotType = reportType
	m.gotIP = ip
	return m.err
}

// serve routes the request through a mux with the production route patterns
// so PathValue lookups work.
func serve(t *testing.T, pattern string, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle(pattern, handler)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestHookHandler(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		action hooks.Action
		err    error

		wantCode   int
		wantAction string
		wantError  string
	}{
		"Resync action":      {action: hooks.ActionResynced, wantCode: http.StatusOK, wantAction: "resynced"},
		"Removal action":     {action: hooks.ActionRemovedAndResynced, wantCode: http.StatusOK, wantAction: "removed_and_resynced"},
		"Ignored action":     {action: hooks.ActionIgnored, wantCode: http.StatusOK, wantAction: "ignored"},
		"Signature mismatch": {err: hooks.ErrSignatureMismatch, wantCode: http.StatusUnauthorized, wantError: "Hash mismatch"},
		"Processing failure": {err: errors.New("resync failed"), wantCode: http.StatusServiceUnavailable, wantError: "Could not process event"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rec := &mockReconciler{action: tc.action, err: tc.err}
			handler := handlers.NewHook(rec, 1<<20)

			req := httptest.NewRequest(http.MethodPost, "/hooks/orels1/ORELS-Cogs/master", strings.NewReader(`{"zen": "ship it"}`))
			req.Header.Set("X-GitHub-Event", "push")
			req.Header.Set("X-Hub-Signature", "sha1=feed")

			rr := serve(t, "POST /hooks/{owner}/{repo}/{branch}", handler, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			if tc.wantError != "" {
				assert.Equal(t, tc.wantError, body["error"])
				return
			}
			assert.Equal(t, tc.wantAction, body["action"])
			assert.Equal(t, hooks.Params{Owner: "orels1", Repo: "ORELS-Cogs", Branch: "master"}, rec.gotParams)
			assert.Equal(t, "push", rec.gotEventType)
			assert.Equal(t, "sha1=feed", rec.gotSignature)
			assert.JSONEq(t, `{"zen": "ship it"}`, string(rec.gotPayload))
		})
	}
}

func TestHookHandlerPayloadTooLarge(t *testing.T) {
	t.Parallel()

	handler := handlers.NewHook(&mockReconciler{}, 8)
	req := httptest.NewRequest(http.MethodPost, "/hooks/orels1/ORELS-Cogs/master", strings.NewReader(strings.Repeat("x", 64)))

	rr := serve(t, "POST /hooks/{owner}/{repo}/{branch}", handler, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestValidateHandler(t *testing.T) {
	t.Parallel()

	pl := &mockPipeline{previewResult: validate.Result{
		Repo:          &models.Repository{Name: "ORELS-Cogs"},
		DefaultBranch: "master",
		Diagnostics: []validate.Diagnostic{
			{Message: "No cogs were found", Path: "/", Level: validate.LevelWarning},
		},
	}}
	handler := handlers.NewValidate(pl)

	req := httptest.NewRequest(http.MethodGet, "/validate/orels1/ORELS-Cogs/master", nil)
	rr := serve(t, "GET /validate/{owner}/{repo}/{branch}", handler, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Errors []validate.Diagnostic `json:"errors"`
		Result struct {
			Repo *models.Repository `json:"repo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "No cogs were found", body.Errors[0].Message)
	require.NotNil(t, body.Result.Repo)
	assert.Equal(t, "ORELS-Cogs", body.Result.Repo.Name)
}

func TestValidateHandlerFetchFailure(t *testing.T) {
	t.Parallel()

	pl := &mockPipeline{previewErr: errors.New("fetch failed: not found")}
	handler := handlers.NewValidate(pl)

	req := httptest.NewRequest(http.MethodGet, "/validate/orels1/ghost/master", nil)
	rr := serve(t, "GET /validate/{owner}/{repo}/{branch}", handler, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRegisterHandler(t *testing.T) {
	t.Parallel()

	repo := &models.Repository{Path: "orels1/ORELS-Cogs/master", Name: "ORELS-Cogs"}
	okCog := &models.Cog{Path: "orels1/ORELS-Cogs/greeter/master", Name: "greeter"}
	pl := &mockPipeline{syncResult: syncer.Result{
		Repository: repo,
		Cogs: []syncer.CogOutcome{
			{Name: "greeter", Cog: okCog},
			{Name: "broken", Err: errors.New("induced")},
		},
	}}
	handler := handlers.NewRegister(pl)

	req := httptest.NewRequest(http.MethodPut, "/repos/orels1/ORELS-Cogs/master", nil)
	rr := serve(t, "PUT /repos/{owner}/{repo}/{branch}", handler, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Repo   *models.Repository `json:"repo"`
		Cogs   []models.Cog       `json:"cogs"`
		Failed []string           `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.Repo)
	assert.Equal(t, "ORELS-Cogs", body.Repo.Name)
	require.Len(t, body.Cogs, 1, "only successful cogs are returned")
	assert.Equal(t, "greeter", body.Cogs[0].Name)
	assert.Equal(t, []string{"broken"}, body.Failed)
}

func TestRegisterHandlerSyncFailure(t *testing.T) {
	t.Parallel()

	pl := &mockPipeline{syncErr: errors.New("store down")}
	handler := handlers.NewRegister(pl)

	req := httptest.NewRequest(http.MethodPut, "/repos/orels1/ORELS-Cogs/master", nil)
	rr := serve(t, "PUT /repos/{owner}/{repo}/{branch}", handler, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Could not save repo ORELS-Cogs", body["error"])
}

func TestApproveHandler(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body string
		err  error

		wantCode  int
		wantState string
	}{
		"Approve":        {body: `{"approved": "approved"}`, wantCode: http.StatusOK, wantState: "approved"},
		"Unapprove":      {body: `{"approved": "unapproved"}`, wantCode: http.StatusOK, wantState: "unapproved"},
		"Missing state":  {body: `{}`, wantCode: http.StatusBadRequest},
		"Malformed body": {body: `{"approved": `, wantCode: http.StatusBadRequest},
		"Unknown repo":   {body: `{"approved": "approved"}`, err: store.ErrNotFound, wantCode: http.StatusBadRequest},
		"Store failure":  {body: `{"approved": "approved"}`, err: errors.New("down"), wantCode: http.StatusServiceUnavailable},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pnl := &mockPanel{
				repo: &models.Repository{Path: "orels1/ORELS-Cogs/master", Type: tc.wantState},
				cogs: []string{"orels1/ORELS-Cogs/greeter/master"},
				err:  tc.err,
			}
			handler := handlers.NewApprove(pnl)

			req := httptest.NewRequest(http.MethodPatch, "/repos/orels1/ORELS-Cogs/master/approve", strings.NewReader(tc.body))
			rr := serve(t, "PATCH /repos/{owner}/{repo}/{branch}/approve", handler, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			if tc.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, tc.wantState, pnl.gotState)

			var body struct {
				Success bool               `json:"success"`
				Repo    *models.Repository `json:"repo"`
				Cogs    []string           `json:"cogs"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.True(t, body.Success)
			assert.Equal(t, []string{"orels1/ORELS-Cogs/greeter/master"}, body.Cogs)
		})
	}
}

func TestHideHandler(t *testing.T) {
	t.Parallel()

	pnl := &mockPanel{repo: &models.Repository{Path: "orels1/ORELS-Cogs/master", Hidden: true}}
	handler := handlers.NewHide(pnl)

	req := httptest.NewRequest(http.MethodPatch, "/repos/orels1/ORELS-Cogs/master/hide", strings.NewReader(`{"state": true}`))
	rr := serve(t, "PATCH /repos/{owner}/{repo}/{branch}/hide", handler, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, pnl.gotHidden)
}

func TestReportHandler(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body      string
		forwarded string
		err       error

		wantCode int
		wantIP   string
	}{
		"Valid report": {
			body:     `{"type": "malware", "comment": "mines bitcoin"}`,
			wantCode: http.StatusOK,
			wantIP:   "192.0.2.1",
		},
		"Forwarded address wins": {
			body:      `{"type": "malware"}`,
			forwarded: "203.0.113.7, 70.41.3.18",
			wantCode:  http.StatusOK,
			wantIP:    "203.0.113.7",
		},
		"Missing type":   {body: `{}`, wantCode: http.StatusBadRequest},
		"Malformed body": {body: `{"type": `, wantCode: http.StatusBadRequest},
		"Unknown type":   {body: `{"type": "spam"}`, err: panel.ErrUnknownReportType, wantCode: http.StatusBadRequest},
		"Duplicate":      {body: `{"type": "malware"}`, err: panel.ErrAlreadyReported, wantCode: http.StatusBadRequest},
		"Unknown cog":    {body: `{"type": "malware"}`, err: store.ErrNotFound, wantCode: http.StatusNotFound},
		"Store failure":  {body: `{"type": "malware"}`, err: errors.New("down"), wantCode: http.StatusServiceUnavailable},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pnl := &mockPanel{err: tc.err}
			handler := handlers.NewReport(pnl)

			req := httptest.NewRequest(http.MethodPost, "/reports/orels1/ORELS-Cogs/master/greeter", strings.NewReader(tc.body))
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			rr := serve(t, "POST /reports/{owner}/{repo}/{branch}/{cog}", handler, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			if tc.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, "greeter", pnl.gotCog)
			assert.Equal(t, tc.wantIP, pnl.gotIP)
		})
	}
}

func TestVersionHandler(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := serve(t, "GET /version", handlers.Version{}, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body["version"])
}
