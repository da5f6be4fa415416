package api

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"

	"github.com/wesm/repo-pulse/internal/models"
)

// GetRateLimit returns the core rate-limit bucket. It is never cached.
func (c *GitHubClient) GetRateLimit(ctx context.Context) (*models.RateLimit, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	limits, resp, err := c.client.RateLimit.Get(ctx)
	c.observe(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit: %w", c.mapError(err))
	}

	core := limits.GetCore()
	if core == nil {
		return nil, fmt.Errorf("failed to get rate limit: response has no core bucket")
	}
	c.recordRate(*core)

	return &models.RateLimit{
		Limit:     core.Limit,
		Used:      core.Limit - core.Remaining,
		Remaining: core.Remaining,
		Reset:     core.Reset.Time,
	}, nil
}

// RateSnapshot returns the last rate state observed in any response
func (c *GitHubClient) RateSnapshot() models.RateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// observe records rate headers from a response when present
func (c *GitHubClient) observe(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	c.recordRate(resp.Rate)
}

func (c *GitHubClient) recordRate(rate github.Rate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = models.RateSnapshot{
		Remaining: rate.Remaining,
		Reset:     rate.Reset.Time,
		Known:     true,
	}
}

// checkBackoff refuses a call up front while the advisory remaining count is
// under the low-water mark and the window has not reset yet
func (c *GitHubClient) checkBackoff() error {
	c.mu.Lock()
	rate := c.rate
	c.mu.Unlock()

	if rate.Known && rate.Remaining < RateLimitLowWater && c.now().Before(rate.Reset) {
		c.logger.Warn("refusing call, rate limit nearly exhausted",
			"remaining", rate.Remaining, "reset", rate.Reset)
		return &RateLimitError{Remaining: rate.Remaining, ResetTime: rate.Reset}
	}
	return nil
}
