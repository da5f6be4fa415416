package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/wesm/repo-pulse/internal/cache"
	"github.com/wesm/repo-pulse/internal/logging"
	"github.com/wesm/repo-pulse/internal/models"
)

const (
	// PageSize is the number of items requested per page
	PageSize = 100

	// RateLimitLowWater is the advisory remaining count below which workflow calls are refused
	RateLimitLowWater = 10

	DefaultPullRequestLimit = 200
	DefaultIssueLimit       = 300
	WorkflowRunLimit        = 500
	ReviewBatchSize         = 10

	SummaryTTL     = 5 * time.Minute
	ReviewTTL      = time.Hour
	LabelTTL       = time.Hour
	IssueTTL       = 30 * time.Minute
	WorkflowRunTTL = 15 * time.Minute
)

// GitHubClient wraps the GitHub REST and GraphQL APIs with pagination,
// caching and rate-limit awareness
type GitHubClient struct {
	client  *github.Client
	graphql *githubv4.Client
	cache   *cache.Cache
	logger  *slog.Logger
	now     func() time.Time

	mu            sync.Mutex
	authenticated bool
	identity      *models.Identity
	rate          models.RateSnapshot
}

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a GitHubClient
type Option func(*clientOptions)

// WithBaseURL points the client at a GitHub Enterprise or test server.
// The GraphQL endpoint is derived from it.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithHTTPClient sets the transport used underneath the token source
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithClock overrides the time source used for rate-limit decisions
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) {
		o.now = now
	}
}

// NewGitHubClient creates a new GitHub API client bound to token.
// Authenticate must succeed before any other call.
func NewGitHubClient(token string, c *cache.Cache, opts ...Option) (*GitHubClient, error) {
	o := clientOptions{
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if c == nil {
		c = cache.New(cache.DefaultTTL)
	}

	tc := o.httpClient
	if token != "" {
		ctx := context.Background()
		if o.httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
		}
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(tc)
	graphqlURL := "https://api.github.com/graphql"
	if o.baseURL != "" {
		base, err := url.Parse(o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL: %w", err)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		client.BaseURL = base
		graphqlURL = graphqlEndpoint(base)
	}

	gqlHTTP := tc
	if gqlHTTP == nil {
		gqlHTTP = http.DefaultClient
	}

	return &GitHubClient{
		client:  client,
		graphql: githubv4.NewEnterpriseClient(graphqlURL, gqlHTTP),
		cache:   c,
		logger:  o.logger,
		now:     o.now,
	}, nil
}

// graphqlEndpoint maps a REST base URL to its GraphQL endpoint.
// GitHub Enterprise serves REST under /api/v3/ and GraphQL under /api/graphql.
func graphqlEndpoint(base *url.URL) string {
	u := *base
	if strings.HasSuffix(u.Path, "/api/v3/") {
		u.Path = strings.TrimSuffix(u.Path, "v3/") + "graphql"
	} else {
		u.Path += "graphql"
	}
	return u.String()
}

// Cache returns the cache backing this client
func (c *GitHubClient) Cache() *cache.Cache {
	return c.cache
}

// Identity returns the identity bound by the last successful Authenticate
func (c *GitHubClient) Identity() *models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// GetRepository gets a repository by owner and name. It is never cached.
func (c *GitHubClient) GetRepository(ctx context.Context, owner, name string) (*models.Repository, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	repo, resp, err := c.client.Repositories.Get(ctx, owner, name)
	c.observe(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, c.mapError(err))
	}

	return ConvertRepository(repo), nil
}

// InvalidateRepository drops every cached entry of one repository
func (c *GitHubClient) InvalidateRepository(owner, name string) int {
	n := c.cache.DeleteByPrefix(cache.RepoPrefix(owner, name))
	c.logger.Debug("invalidated repository cache", "repo", owner+"/"+name, "entries", n)
	return n
}

// ClearCache drops every cached entry
func (c *GitHubClient) ClearCache() {
	c.cache.Clear()
}

func (c *GitHubClient) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		return ErrNotAuthenticated
	}
	return nil
}

func (c *GitHubClient) markUnauthenticated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authenticated {
		c.logger.Warn("credential rejected, session requires re-authentication")
	}
	c.authenticated = false
}
