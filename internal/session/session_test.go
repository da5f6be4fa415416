package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/repo-pulse/internal/api"
	"github.com/wesm/repo-pulse/internal/db"
	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/settings"
)

// newGraphQLServer accepts only the bearer token "good"
func newGraphQLServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/graphql" || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		fmt.Fprint(w, `{"data":{"viewer":{"login":"octocat","name":"Mona","databaseId":1,"avatarUrl":""}}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T) (*Manager, *db.DB, *settings.Store) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	require.NoError(t, database.Initialize())
	t.Cleanup(func() { database.Close() })

	prefs := settings.New(database)
	srv := newGraphQLServer(t)
	m := NewManager(database, prefs, nil, api.WithBaseURL(srv.URL+"/"))
	t.Cleanup(m.Shutdown)
	return m, database, prefs
}

func TestLoginAndLogout(t *testing.T) {
	m, database, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Current()
	require.ErrorIs(t, err, ErrNoSession)
	assert.Nil(t, m.Aggregate())

	s, err := m.Login(ctx, " good ")
	require.NoError(t, err)
	assert.Equal(t, "octocat", s.Identity.Login)
	assert.Equal(t, models.StatusIdle, s.Aggregate.Status())

	current, err := m.Current()
	require.NoError(t, err)
	assert.Same(t, s, current)

	token, err := database.LoadCredential()
	require.NoError(t, err)
	assert.Equal(t, "good", token)

	require.NoError(t, m.Logout())
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	token, err = database.LoadCredential()
	require.NoError(t, err)
	assert.Empty(t, token)

	assert.ErrorIs(t, m.Logout(), ErrNoSession)
}

func TestLoginRejected(t *testing.T) {
	m, database, _ := newTestManager(t)

	_, err := m.Login(context.Background(), "bad")
	require.ErrorIs(t, err, api.ErrAuth)

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	token, err := database.LoadCredential()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestLoginRequiresToken(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Login(context.Background(), "   ")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSettingsReachCurrentSessionOnly(t *testing.T) {
	m, _, prefs := newTestManager(t)

	s, err := m.Login(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, s.Cache.DefaultTTL())

	require.NoError(t, prefs.SetCacheTTL(90))
	assert.Equal(t, 90*time.Minute, s.Cache.DefaultTTL())

	require.NoError(t, m.Logout())
	require.NoError(t, prefs.SetCacheTTL(10))
	assert.Equal(t, 90*time.Minute, s.Cache.DefaultTTL(), "logged out sessions are unsubscribed")
}

func TestResume(t *testing.T) {
	m, database, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Resume(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, database.SaveCredential("good"))
	s, err := m.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "octocat", s.Identity.Login)
}

func TestResumeForgetsRejectedCredential(t *testing.T) {
	m, database, _ := newTestManager(t)

	require.NoError(t, database.SaveCredential("revoked"))
	_, err := m.Resume(context.Background())
	require.ErrorIs(t, err, api.ErrAuth)

	token, err := database.LoadCredential()
	require.NoError(t, err)
	assert.Empty(t, token)
}
