// Package session owns the lifecycle of an authenticated session: the cache,
// API client and repository aggregate built for one credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wesm/repo-pulse/internal/api"
	"github.com/wesm/repo-pulse/internal/cache"
	"github.com/wesm/repo-pulse/internal/logging"
	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/settings"
	"github.com/wesm/repo-pulse/internal/state"
)

// ErrNoSession is returned when no one is logged in
var ErrNoSession = errors.New("no active session")

// Store persists the credential alongside the aggregate's state. *db.DB satisfies it.
type Store interface {
	state.Store
	SaveCredential(token string) error
	LoadCredential() (string, error)
	DeleteCredential() error
}

// Session is one authenticated credential and everything built on it
type Session struct {
	Identity  *models.Identity
	Client    *api.GitHubClient
	Cache     *cache.Cache
	Aggregate *state.Aggregate

	unsubscribe []func()
}

func (s *Session) release() {
	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil
}

// Manager creates and tears down sessions
type Manager struct {
	store      Store
	settings   *settings.Store
	logger     *slog.Logger
	clientOpts []api.Option

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager. clientOpts are passed to every API client it builds.
func NewManager(store Store, settings *settings.Store, logger *slog.Logger, clientOpts ...api.Option) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		store:      store,
		settings:   settings,
		logger:     logger,
		clientOpts: clientOpts,
	}
}

// Login authenticates token and makes it the current session, replacing
// any previous one. The credential is persisted only once it is accepted.
func (m *Manager) Login(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &models.ValidationError{Field: "token", Message: "token is required"}
	}

	ttl := m.settings.CacheTTL()
	c := cache.New(ttl)
	opts := append([]api.Option{api.WithLogger(m.logger)}, m.clientOpts...)
	client, err := api.NewGitHubClient(token, c, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	identity, err := client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	agg := state.New(client, m.store, m.logger.With("login", identity.Login),
		state.WithItemLimit(m.settings.ItemLimit()),
		state.WithSnapshotTTL(ttl),
	)
	s := &Session{
		Identity:  identity,
		Client:    client,
		Cache:     c,
		Aggregate: agg,
	}
	s.unsubscribe = []func(){
		m.settings.OnCacheTTLChange(func(ttl time.Duration) {
			c.SetDefaultTTL(ttl)
			agg.SetSnapshotTTL(ttl)
		}),
		m.settings.OnItemLimitChange(agg.SetItemLimit),
	}

	if err := m.store.SaveCredential(token); err != nil {
		m.logger.Warn("failed to persist credential", "err", err)
	}

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	if prev != nil {
		prev.release()
		prev.Aggregate.Close()
	}

	m.logger.Info("logged in", "login", identity.Login)
	return s, nil
}

// Logout drops the current session, its cached data and the persisted credential
func (m *Manager) Logout() error {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s == nil {
		return ErrNoSession
	}

	s.release()
	s.Aggregate.Clear()
	s.Aggregate.Wait()
	s.Cache.Clear()

	if err := m.store.DeleteCredential(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	m.logger.Info("logged out", "login", s.Identity.Login)
	return nil
}

// Resume logs in with the persisted credential and restores the persisted
// repository, from snapshots when they are still valid. A rejected
// credential is forgotten.
func (m *Manager) Resume(ctx context.Context) (*Session, error) {
	token, err := m.store.LoadCredential()
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if token == "" {
		return nil, ErrNoSession
	}

	s, err := m.Login(ctx, token)
	if err != nil {
		if errors.Is(err, api.ErrAuth) {
			if derr := m.store.DeleteCredential(); derr != nil {
				m.logger.Warn("failed to delete rejected credential", "err", derr)
			}
		}
		return nil, err
	}

	restored, err := s.Aggregate.Restore()
	if err != nil {
		m.logger.Warn("failed to restore snapshot", "err", err)
	}
	if restored {
		return s, nil
	}

	owner, name, ok, err := m.store.LoadSelection()
	if err != nil {
		m.logger.Warn("failed to load selection", "err", err)
		return s, nil
	}
	if ok {
		if err := s.Aggregate.SelectRepository(ctx, owner, name); err != nil {
			m.logger.Warn("failed to reload selected repository", "repo", owner+"/"+name, "err", err)
		}
	}
	return s, nil
}

// Current returns the current session
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

// Aggregate returns the current session's aggregate, nil when logged out
func (m *Manager) Aggregate() *state.Aggregate {
	s, err := m.Current()
	if err != nil {
		return nil
	}
	return s.Aggregate
}

// Shutdown detaches the current session and waits for its background work,
// keeping the persisted credential and selection
func (m *Manager) Shutdown() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s != nil {
		s.release()
		s.Aggregate.Close()
		s.Aggregate.Wait()
	}
}
