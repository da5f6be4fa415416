package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/repo-pulse/internal/api"
	"github.com/wesm/repo-pulse/internal/db"
	"github.com/wesm/repo-pulse/internal/logging"
	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/session"
	"github.com/wesm/repo-pulse/internal/settings"
	"github.com/wesm/repo-pulse/internal/state"
)

type response struct {
	Success   bool              `json:"success"`
	Data      json.RawMessage   `json:"data"`
	Error     string            `json:"error"`
	RateLimit *rateLimitPayload `json:"rateLimit"`
}

// newGitHub serves just enough of the GitHub API to load o/r
func newGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(pattern string, status int, body string) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		})
	}

	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		fmt.Fprint(w, `{"data":{"viewer":{"login":"octocat","name":"Mona","databaseId":1,"avatarUrl":""}}}`)
	})

	reply("GET /repos/o/r", http.StatusOK, `{"id":7,"name":"r","full_name":"o/r","owner":{"login":"o"}}`)
	reply("GET /repos/o/missing", http.StatusNotFound, `{"message":"Not Found"}`)
	reply("GET /repos/o/r/releases", http.StatusOK,
		`[{"id":10,"tag_name":"v0.9.0","name":"v0.9.0","draft":false,"prerelease":false}]`)
	reply("POST /repos/o/r/releases", http.StatusCreated,
		`{"id":11,"tag_name":"v1.0.0","name":"v1.0.0","prerelease":true}`)
	reply("PATCH /repos/o/r/releases/10", http.StatusOK,
		`{"id":10,"tag_name":"v0.9.0","name":"v0.9.0","draft":true}`)
	reply("GET /repos/o/r/milestones", http.StatusOK, `[]`)
	reply("GET /repos/o/r/labels", http.StatusOK, `[{"id":1,"name":"bug","color":"d73a4a"}]`)
	reply("POST /repos/o/r/issues/3/labels", http.StatusOK, `[{"id":1,"name":"bug","color":"d73a4a"}]`)
	reply("GET /repos/o/r/pulls", http.StatusOK, `[]`)
	reply("GET /repos/o/r/issues", http.StatusOK,
		`[{"id":30,"number":3,"title":"crash","state":"open","labels":[{"name":"bug"}]}]`)
	mux.HandleFunc("GET /repos/o/r/actions/workflows", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(time.Hour).Unix()))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded for octocat."}`)
	})
	reply("GET /repos/o/r/actions/runs", http.StatusOK, `{"total_count":2,"workflow_runs":[
		{"id":1,"workflow_id":5,"status":"completed","conclusion":"success",
		 "created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:10:00Z"},
		{"id":2,"workflow_id":5,"status":"in_progress"}]}`)
	reply("GET /rate_limit", http.StatusOK, fmt.Sprintf(
		`{"resources":{"core":{"limit":5000,"remaining":4990,"reset":%d}}}`, time.Now().Add(time.Hour).Unix()))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gh := newGitHub(t)

	database, err := db.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	require.NoError(t, database.Initialize())
	t.Cleanup(func() { database.Close() })

	prefs := settings.New(database)
	manager := session.NewManager(database, prefs, nil, api.WithBaseURL(gh.URL+"/"))
	t.Cleanup(manager.Shutdown)

	return New(manager, prefs, logging.Discard()).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func login(t *testing.T, h http.Handler) {
	t.Helper()
	code, resp := do(t, h, http.MethodPost, "/api/session", `{"token":"good"}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
}

func TestRequiresSession(t *testing.T) {
	h := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/repository"},
		{http.MethodPost, "/api/repository/refresh"},
		{http.MethodGet, "/api/rate-limit"},
		{http.MethodDelete, "/api/session"},
	} {
		code, resp := do(t, h, tc.method, tc.path, "")
		assert.Equal(t, http.StatusUnauthorized, code, tc.path)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Error)
	}
}

func TestLogin(t *testing.T) {
	h := newTestServer(t)

	code, resp := do(t, h, http.MethodPost, "/api/session", `{"token":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	code, _ = do(t, h, http.MethodPost, "/api/session", `{"token":""}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, h, http.MethodPost, "/api/session", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, h, http.MethodPost, "/api/session", `{"token":"good"}`)
	require.Equal(t, http.StatusOK, code)
	var identity models.Identity
	require.NoError(t, json.Unmarshal(resp.Data, &identity))
	assert.Equal(t, "octocat", identity.Login)

	code, _ = do(t, h, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, http.MethodGet, "/api/repository", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSelectRepository(t *testing.T) {
	h := newTestServer(t)
	login(t, h)

	code, resp := do(t, h, http.MethodGet, "/api/repository", "")
	require.Equal(t, http.StatusOK, code)
	var snap models.RepositoryAggregate
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	assert.Equal(t, models.StatusIdle, snap.Status)

	code, _ = do(t, h, http.MethodGet, "/api/review-statuses", "")
	assert.Equal(t, http.StatusConflict, code, "nothing selected yet")

	code, _ = do(t, h, http.MethodPost, "/api/repository", `{"repository":"not-a-repo"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, h, http.MethodPost, "/api/repository", `{"repository":"o/r"}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	assert.Equal(t, models.StatusReady, snap.Status)
	require.NotNil(t, snap.Repository)
	assert.Equal(t, "o/r", snap.Repository.FullName)
	require.Len(t, snap.Issues, 1)
	assert.Equal(t, models.IssueBug, snap.Issues[0].IssueType)

	code, resp = do(t, h, http.MethodGet, "/api/issue-types", "")
	require.Equal(t, http.StatusOK, code)
	var types []models.Label
	require.NoError(t, json.Unmarshal(resp.Data, &types))
	require.Len(t, types, 1)
	assert.Equal(t, "bug", types[0].Name)

	code, _ = do(t, h, http.MethodPost, "/api/repository/refresh", "")
	assert.Equal(t, http.StatusOK, code)

	code, resp = do(t, h, http.MethodDelete, "/api/repository", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	assert.Equal(t, models.StatusIdle, snap.Status)

	code, _ = do(t, h, http.MethodPost, "/api/repository/refresh", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestSelectMissingRepository(t *testing.T) {
	h := newTestServer(t)
	login(t, h)

	code, resp := do(t, h, http.MethodPost, "/api/repository", `{"repository":"o/missing"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)

	_, resp = do(t, h, http.MethodGet, "/api/repository", "")
	var snap models.RepositoryAggregate
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	assert.Equal(t, models.StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)
}

func TestReleaseMutations(t *testing.T) {
	h := newTestServer(t)
	login(t, h)
	code, _ := do(t, h, http.MethodPost, "/api/repository", `{"repository":"o/r"}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPost, "/api/releases", `{"name":"no tag"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := do(t, h, http.MethodPost, "/api/releases", `{"tagName":"v1.0.0","name":"v1.0.0","prerelease":true}`)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var release models.Release
	require.NoError(t, json.Unmarshal(resp.Data, &release))
	assert.Equal(t, models.PhaseStaging, release.Phase)

	code, _ = do(t, h, http.MethodPatch, "/api/releases/10/phase", `{"phase":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, h, http.MethodPatch, "/api/releases/10/phase", `{"phase":"development"}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, &release))
	assert.Equal(t, models.PhaseDevelopment, release.Phase)

	_, resp = do(t, h, http.MethodGet, "/api/repository", "")
	var snap models.RepositoryAggregate
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	require.Len(t, snap.Releases, 2)
	assert.Equal(t, "v1.0.0", snap.Releases[0].TagName)
	assert.Equal(t, models.PhaseDevelopment, snap.Releases[1].Phase)
}

func TestAddLabel(t *testing.T) {
	h := newTestServer(t)
	login(t, h)
	code, _ := do(t, h, http.MethodPost, "/api/repository", `{"repository":"o/r"}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPost, "/api/issues/abc/labels", `{"label":"bug"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := do(t, h, http.MethodPost, "/api/issues/3/labels", `{"label":"Bug"}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var labels []models.Label
	require.NoError(t, json.Unmarshal(resp.Data, &labels))
	require.Len(t, labels, 1)
	assert.Equal(t, "bug", labels[0].Name)
}

func TestWorkflowRunsAndRateLimit(t *testing.T) {
	h := newTestServer(t)
	login(t, h)
	code, _ := do(t, h, http.MethodPost, "/api/repository", `{"repository":"o/r"}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodGet, "/api/workflows/runs?workflow_id=x", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := do(t, h, http.MethodGet, "/api/workflows/runs", "")
	require.Equal(t, http.StatusOK, code, resp.Error)
	var runs runsPayload
	require.NoError(t, json.Unmarshal(resp.Data, &runs))
	assert.Len(t, runs.Runs, 2)
	assert.Equal(t, 2, runs.Summary.Total)
	assert.Equal(t, 1, runs.Summary.Succeeded)
	assert.Equal(t, 1, runs.Summary.InProgress)
	assert.Equal(t, 10*time.Minute, runs.Summary.AverageDuration)

	code, resp = do(t, h, http.MethodGet, "/api/rate-limit", "")
	require.Equal(t, http.StatusOK, code, resp.Error)
	var limit models.RateLimit
	require.NoError(t, json.Unmarshal(resp.Data, &limit))
	assert.Equal(t, 4990, limit.Remaining)
	assert.Equal(t, 10, limit.Used)
}

func TestWorkflowsRateLimited(t *testing.T) {
	h := newTestServer(t)
	login(t, h)
	code, _ := do(t, h, http.MethodPost, "/api/repository", `{"repository":"o/r"}`)
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, h, http.MethodGet, "/api/workflows", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.RateLimit)
	assert.Equal(t, 0, resp.RateLimit.Remaining)
	assert.True(t, resp.RateLimit.ResetAt.After(time.Now()))
}

func TestSettings(t *testing.T) {
	h := newTestServer(t)

	code, resp := do(t, h, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, code)
	var got settingsPayload
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, 30, got.CacheTTLMinutes)
	assert.Nil(t, got.ItemLimit)

	code, _ = do(t, h, http.MethodPut, "/api/settings", `{"cacheTtlMinutes":0}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, h, http.MethodPut, "/api/settings", `{"itemLimit":"many"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, h, http.MethodPut, "/api/settings", `{"cacheTtlMinutes":45,"itemLimit":50}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, 45, got.CacheTTLMinutes)
	require.NotNil(t, got.ItemLimit)
	assert.Equal(t, 50, *got.ItemLimit)

	// absent fields are left alone, null clears the limit
	code, resp = do(t, h, http.MethodPut, "/api/settings", `{"itemLimit":null}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, 45, got.CacheTTLMinutes)
	assert.Nil(t, got.ItemLimit)
}

func TestRespondFailure(t *testing.T) {
	reset := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &models.ValidationError{Field: "phase", Message: "bad"}, http.StatusBadRequest},
		{"auth", fmt.Errorf("load: %w", api.ErrAuth), http.StatusUnauthorized},
		{"not authenticated", api.ErrNotAuthenticated, http.StatusUnauthorized},
		{"no session", session.ErrNoSession, http.StatusUnauthorized},
		{"not found", fmt.Errorf("%w: Not Found", api.ErrNotFound), http.StatusNotFound},
		{"no repository", state.ErrNoRepository, http.StatusConflict},
		{"rate limited", &api.RateLimitError{Remaining: 3, ResetTime: reset}, http.StatusTooManyRequests},
		{"upstream", errors.New("connection reset"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondFailure(rec, logging.Discard(), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.err.Error(), resp.Error)
			if tt.status == http.StatusTooManyRequests {
				require.NotNil(t, resp.RateLimit)
				assert.Equal(t, 3, resp.RateLimit.Remaining)
				assert.True(t, reset.Equal(resp.RateLimit.ResetAt))
			} else {
				assert.Nil(t, resp.RateLimit)
			}
		})
	}
}
