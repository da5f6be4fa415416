package api

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/wesm/repo-pulse/internal/cache"
	"github.com/wesm/repo-pulse/internal/issuetype"
	"github.com/wesm/repo-pulse/internal/models"
)

// GetLabels gets every label of a repository, cached for an hour
func (c *GitHubClient) GetLabels(ctx context.Context, owner, name string) ([]models.Label, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	key := cache.Key(owner, name, "labels")
	if cached, ok := c.cache.Get(key); ok {
		if labels, ok := cached.([]models.Label); ok {
			c.logger.Debug("cache hit", "key", key)
			return labels, nil
		}
	}

	labels, err := collect(ctx, 0, nil, func(ctx context.Context, opts github.ListOptions) ([]*github.Label, error) {
		page, resp, err := c.client.Issues.ListLabels(ctx, owner, name, &opts)
		c.observe(resp)
		return page, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", c.mapError(err))
	}

	result := make([]models.Label, 0, len(labels))
	for _, l := range labels {
		result = append(result, ConvertLabel(l))
	}

	c.cache.SetWithTTL(key, result, LabelTTL)
	return result, nil
}

// GetIssueTypes returns the repository labels that look like issue-type labels
func (c *GitHubClient) GetIssueTypes(ctx context.Context, owner, name string) ([]models.Label, error) {
	labels, err := c.GetLabels(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	return issuetype.TypeLabels(labels), nil
}

// GetMilestones gets every milestone in state (open, closed, all). Not cached.
func (c *GitHubClient) GetMilestones(ctx context.Context, owner, name, state string) ([]models.Milestone, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	milestones, err := collect(ctx, 0, nil, func(ctx context.Context, opts github.ListOptions) ([]*github.Milestone, error) {
		page, resp, err := c.client.Issues.ListMilestones(ctx, owner, name, &github.MilestoneListOptions{
			State:       state,
			ListOptions: opts,
		})
		c.observe(resp)
		return page, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", c.mapError(err))
	}

	result := make([]models.Milestone, 0, len(milestones))
	for _, m := range milestones {
		result = append(result, ConvertMilestone(m))
	}
	return result, nil
}

// AddLabelToIssue attaches label to an issue or pull request, creating the
// label with a random color when the repository does not have it yet
func (c *GitHubClient) AddLabelToIssue(ctx context.Context, owner, name string, number int, label string) ([]models.Label, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, &models.ValidationError{Field: "label", Message: "label name is required"}
	}

	existing, err := c.GetLabels(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	if !hasLabel(existing, label) {
		created, resp, err := c.client.Issues.CreateLabel(ctx, owner, name, &github.Label{
			Name:  github.String(label),
			Color: github.String(randomColor()),
		})
		c.observe(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to create label %q: %w", label, c.mapError(err))
		}
		c.logger.Info("created label", "repo", owner+"/"+name, "label", created.GetName(), "color", created.GetColor())
		c.cache.Delete(cache.Key(owner, name, "labels"))
	}

	labels, resp, err := c.client.Issues.AddLabelsToIssue(ctx, owner, name, number, []string{label})
	c.observe(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to add label %q to #%d: %w", label, number, c.mapError(err))
	}

	result := make([]models.Label, 0, len(labels))
	for _, l := range labels {
		result = append(result, ConvertLabel(l))
	}
	return result, nil
}

// RemoveLabelFromIssue detaches label from an issue or pull request
func (c *GitHubClient) RemoveLabelFromIssue(ctx context.Context, owner, name string, number int, label string) error {
	if err := c.ready(); err != nil {
		return err
	}

	resp, err := c.client.Issues.RemoveLabelForIssue(ctx, owner, name, number, label)
	c.observe(resp)
	if err != nil {
		return fmt.Errorf("failed to remove label %q from #%d: %w", label, number, c.mapError(err))
	}
	return nil
}

func hasLabel(labels []models.Label, name string) bool {
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return true
		}
	}
	return false
}

func randomColor() string {
	return fmt.Sprintf("%06x", rand.IntN(0x1000000))
}
