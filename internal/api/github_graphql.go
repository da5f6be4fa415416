package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"

	"github.com/wesm/repo-pulse/internal/models"
)

// viewerQuery asks GraphQL who owns the bound credential
type viewerQuery struct {
	Viewer struct {
		Login      githubv4.String
		Name       githubv4.String
		DatabaseID githubv4.Int    `graphql:"databaseId"`
		AvatarURL  githubv4.String `graphql:"avatarUrl"`
	}
}

// Authenticate exchanges the bound credential for the caller's identity.
// Every other operation fails with ErrNotAuthenticated until this succeeds.
func (c *GitHubClient) Authenticate(ctx context.Context) (*models.Identity, error) {
	var q viewerQuery
	if err := c.graphql.Query(ctx, &q, nil); err != nil {
		c.markUnauthenticated()
		if isUnauthorized(err) {
			return nil, fmt.Errorf("%w: credential rejected", ErrAuth)
		}
		return nil, fmt.Errorf("failed to query viewer: %w", err)
	}

	if q.Viewer.Login == "" {
		c.markUnauthenticated()
		return nil, fmt.Errorf("%w: no viewer for credential", ErrAuth)
	}

	identity := &models.Identity{
		ID:        int64(q.Viewer.DatabaseID),
		Login:     string(q.Viewer.Login),
		Name:      string(q.Viewer.Name),
		AvatarURL: string(q.Viewer.AvatarURL),
	}

	c.mu.Lock()
	c.authenticated = true
	c.identity = identity
	c.mu.Unlock()

	c.logger.Info("authenticated", "login", identity.Login)
	return identity, nil
}

// isUnauthorized recognizes the graphql client's non-200 error for 401 responses
func isUnauthorized(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(msg, "Bad credentials")
}
