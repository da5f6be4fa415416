package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-github/v57/github"

	"github.com/wesm/repo-pulse/internal/cache"
	"github.com/wesm/repo-pulse/internal/models"
)

// GetWorkflows gets every Actions workflow of a repository
func (c *GitHubClient) GetWorkflows(ctx context.Context, owner, name string) ([]models.Workflow, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	key := cache.Key(owner, name, "workflows")
	if cached, ok := c.cache.Get(key); ok {
		if workflows, ok := cached.([]models.Workflow); ok {
			return workflows, nil
		}
	}
	if err := c.checkBackoff(); err != nil {
		return nil, err
	}

	workflows, err := collect(ctx, 0, nil, func(ctx context.Context, lo github.ListOptions) ([]*github.Workflow, error) {
		page, resp, err := c.client.Actions.ListWorkflows(ctx, owner, name, &lo)
		c.observe(resp)
		if err != nil {
			return nil, err
		}
		return page.Workflows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", c.mapError(err))
	}

	result := make([]models.Workflow, 0, len(workflows))
	for _, w := range workflows {
		result = append(result, ConvertWorkflow(w))
	}

	c.cache.Set(key, result)
	return result, nil
}

// GetWorkflowRuns gets the most recent runs of one workflow, or of every
// workflow when workflowID is 0, capped at WorkflowRunLimit
func (c *GitHubClient) GetWorkflowRuns(ctx context.Context, owner, name string, workflowID int64) ([]models.WorkflowRun, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	scope := "all"
	if workflowID != 0 {
		scope = strconv.FormatInt(workflowID, 10)
	}
	key := cache.Key(owner, name, "runs", scope)
	if cached, ok := c.cache.Get(key); ok {
		if runs, ok := cached.([]models.WorkflowRun); ok {
			return runs, nil
		}
	}
	if err := c.checkBackoff(); err != nil {
		return nil, err
	}

	runs, err := collect(ctx, WorkflowRunLimit, nil, func(ctx context.Context, lo github.ListOptions) ([]*github.WorkflowRun, error) {
		opts := &github.ListWorkflowRunsOptions{ListOptions: lo}
		var (
			page *github.WorkflowRuns
			resp *github.Response
			err  error
		)
		if workflowID == 0 {
			page, resp, err = c.client.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, opts)
		} else {
			page, resp, err = c.client.Actions.ListWorkflowRunsByID(ctx, owner, name, workflowID, opts)
		}
		c.observe(resp)
		if err != nil {
			return nil, err
		}
		return page.WorkflowRuns, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", c.mapError(err))
	}

	result := make([]models.WorkflowRun, 0, len(runs))
	for _, r := range runs {
		result = append(result, ConvertWorkflowRun(r))
	}

	c.cache.SetWithTTL(key, result, WorkflowRunTTL)
	c.logger.Debug("fetched workflow runs", "repo", owner+"/"+name, "workflow", scope, "runs", len(result))
	return result, nil
}
