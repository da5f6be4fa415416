package api

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"

	"github.com/wesm/repo-pulse/internal/models"
)

// GetReleases gets every release of a repository in GitHub's order.
// Release lists are small and change-sensitive so they are never cached.
func (c *GitHubClient) GetReleases(ctx context.Context, owner, name string) ([]models.Release, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	releases, err := collect(ctx, 0, nil, func(ctx context.Context, opts github.ListOptions) ([]*github.RepositoryRelease, error) {
		page, resp, err := c.client.Repositories.ListReleases(ctx, owner, name, &opts)
		c.observe(resp)
		return page, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", c.mapError(err))
	}

	result := make([]models.Release, 0, len(releases))
	for _, r := range releases {
		result = append(result, ConvertRelease(r))
	}
	return result, nil
}

// CreateRelease creates a release
func (c *GitHubClient) CreateRelease(ctx context.Context, owner, name string, input models.ReleaseInput) (*models.Release, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if input.TagName == "" {
		return nil, &models.ValidationError{Field: "tagName", Message: "tag name is required"}
	}

	created, resp, err := c.client.Repositories.CreateRelease(ctx, owner, name, releaseRequest(input))
	c.observe(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to create release %s: %w", input.TagName, c.mapError(err))
	}

	release := ConvertRelease(created)
	c.logger.Info("created release", "repo", owner+"/"+name, "tag", release.TagName, "phase", release.Phase)
	return &release, nil
}

// UpdateRelease edits a release
func (c *GitHubClient) UpdateRelease(ctx context.Context, owner, name string, id int64, input models.ReleaseInput) (*models.Release, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	updated, resp, err := c.client.Repositories.EditRelease(ctx, owner, name, id, releaseRequest(input))
	c.observe(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to update release %d: %w", id, c.mapError(err))
	}

	release := ConvertRelease(updated)
	return &release, nil
}

// UpdateReleasePhase moves a release to phase by rewriting its draft and prerelease flags
func (c *GitHubClient) UpdateReleasePhase(ctx context.Context, owner, name string, id int64, phase models.Phase) (*models.Release, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	draft, prerelease := phase.Flags()
	edit := &github.RepositoryRelease{
		Draft:      github.Bool(draft),
		Prerelease: github.Bool(prerelease),
	}

	updated, resp, err := c.client.Repositories.EditRelease(ctx, owner, name, id, edit)
	c.observe(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to set phase of release %d: %w", id, c.mapError(err))
	}

	release := ConvertRelease(updated)
	c.logger.Info("updated release phase", "repo", owner+"/"+name, "tag", release.TagName, "phase", release.Phase)
	return &release, nil
}

func releaseRequest(input models.ReleaseInput) *github.RepositoryRelease {
	r := &github.RepositoryRelease{
		Draft:      github.Bool(input.Draft),
		Prerelease: github.Bool(input.Prerelease),
	}
	if input.TagName != "" {
		r.TagName = github.String(input.TagName)
	}
	if input.TargetCommitish != "" {
		r.TargetCommitish = github.String(input.TargetCommitish)
	}
	if input.Name != "" {
		r.Name = github.String(input.Name)
	}
	if input.Body != "" {
		r.Body = github.String(input.Body)
	}
	return r
}
