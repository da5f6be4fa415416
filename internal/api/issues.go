package api

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/wesm/repo-pulse/internal/cache"
	"github.com/wesm/repo-pulse/internal/issuetype"
	"github.com/wesm/repo-pulse/internal/models"
)

// IssueOptions tunes GetIssues
type IssueOptions struct {
	// MaxItems caps the number of issues returned; 0 means DefaultIssueLimit
	MaxItems int
}

// GetIssues gets issues (never pull requests) in state carrying every label
// in labels, classifies each by type and caches the list for 30 minutes
func (c *GitHubClient) GetIssues(ctx context.Context, owner, name, state string, labels []string, opts IssueOptions) ([]models.Issue, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	state = normalizeState(state)
	key := cache.Key(owner, name, "issues", state, labelKey(labels))
	if cached, ok := c.cache.Get(key); ok {
		if issues, ok := cached.([]models.Issue); ok {
			c.logger.Debug("cache hit", "key", key, "issues", len(issues))
			return issues, nil
		}
	}

	limit := opts.MaxItems
	if limit <= 0 {
		limit = DefaultIssueLimit
	}

	notPR := func(i *github.Issue) bool { return !i.IsPullRequest() }
	issues, err := collect(ctx, limit, notPR, func(ctx context.Context, lo github.ListOptions) ([]*github.Issue, error) {
		page, resp, err := c.client.Issues.ListByRepo(ctx, owner, name, &github.IssueListByRepoOptions{
			State:       state,
			Labels:      labels,
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: lo,
		})
		c.observe(resp)
		return page, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", c.mapError(err))
	}

	typeLabelsExist := c.typeLabelsExist(ctx, owner, name, issues)

	result := make([]models.Issue, 0, len(issues))
	for _, i := range issues {
		issue := ConvertIssue(i)
		issue.IssueType = issuetype.Classify(issue.Labels, typeLabelsExist)
		result = append(result, issue)
	}

	c.cache.SetWithTTL(key, result, IssueTTL)
	c.logger.Debug("fetched issues", "repo", owner+"/"+name, "state", state, "issues", len(result))
	return result, nil
}

// typeLabelsExist asks the label list whether any type labels exist. When
// labels cannot be listed it falls back to the labels on the issues themselves.
func (c *GitHubClient) typeLabelsExist(ctx context.Context, owner, name string, issues []*github.Issue) bool {
	types, err := c.GetIssueTypes(ctx, owner, name)
	if err == nil {
		return len(types) > 0
	}
	c.logger.Debug("label list unavailable for classification", "repo", owner+"/"+name, "err", err)

	for _, i := range issues {
		for _, l := range i.Labels {
			if issuetype.IsTypeLabel(l.GetName()) {
				return true
			}
		}
	}
	return false
}

func normalizeState(state string) string {
	switch s := strings.ToLower(strings.TrimSpace(state)); s {
	case "open", "closed", "all":
		return s
	default:
		return "open"
	}
}

// labelKey renders a label filter for a cache key, independent of its order
func labelKey(labels []string) string {
	sorted := slices.Clone(labels)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}
