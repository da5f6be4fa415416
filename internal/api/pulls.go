package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/repo-pulse/internal/cache"
	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/review"
)

// PullRequestOptions tunes GetPullRequests
type PullRequestOptions struct {
	// MaxItems caps the number of pull requests returned; 0 means DefaultPullRequestLimit
	MaxItems int

	// SkipReviewData derives review statuses from draft/merged/state only,
	// with no per-PR calls. The result is marked Incomplete.
	SkipReviewData bool
}

// PullRequestList is a fetched set of pull requests
type PullRequestList struct {
	Items []models.PullRequest `json:"items"`

	// Incomplete means review statuses are synthetic and a full fetch is advisable
	Incomplete bool `json:"incomplete"`
}

// GetPullRequests gets pull requests in state carrying every label in labels,
// each with a review status
func (c *GitHubClient) GetPullRequests(ctx context.Context, owner, name, state string, labels []string, opts PullRequestOptions) (*PullRequestList, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	state = normalizeState(state)
	kind, ttl := "pulls", c.cache.DefaultTTL()
	if opts.SkipReviewData {
		kind, ttl = "pulls-summary", SummaryTTL
	}

	key := cache.Key(owner, name, kind, state, labelKey(labels))
	if cached, ok := c.cache.Get(key); ok {
		if list, ok := cached.(PullRequestList); ok {
			c.logger.Debug("cache hit", "key", key, "pulls", len(list.Items))
			return &list, nil
		}
	}

	limit := opts.MaxItems
	if limit <= 0 {
		limit = DefaultPullRequestLimit
	}

	prs, err := collect(ctx, limit, hasAllLabels(labels), func(ctx context.Context, lo github.ListOptions) ([]*github.PullRequest, error) {
		page, resp, err := c.client.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{
			State:       state,
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: lo,
		})
		c.observe(resp)
		return page, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", c.mapError(err))
	}

	items := make([]models.PullRequest, len(prs))
	for i, pr := range prs {
		items[i] = ConvertPullRequest(pr)
	}

	if opts.SkipReviewData {
		for i, pr := range prs {
			items[i].ReviewStatus = review.Synthetic(prState(pr))
		}
	} else if err := c.resolveReviewStatuses(ctx, owner, name, prs, items); err != nil {
		// statuses resolved after cancellation are synthetic and must not be cached
		return nil, err
	}

	list := PullRequestList{Items: items, Incomplete: opts.SkipReviewData}
	c.cache.SetWithTTL(key, list, ttl)
	c.logger.Debug("fetched pull requests", "repo", owner+"/"+name, "state", state,
		"pulls", len(items), "incomplete", list.Incomplete)
	return &list, nil
}

// GetPRReviewStatuses lists the distinct review statuses present in the
// repository's pull requests, in display priority order
func (c *GitHubClient) GetPRReviewStatuses(ctx context.Context, owner, name string) ([]models.ReviewStatus, error) {
	list, err := c.GetPullRequests(ctx, owner, name, "all", nil, PullRequestOptions{})
	if err != nil {
		return nil, err
	}

	statuses := make([]models.ReviewStatus, 0, len(list.Items))
	for _, pr := range list.Items {
		statuses = append(statuses, pr.ReviewStatus)
	}
	return review.SortStatuses(statuses), nil
}

// resolveReviewStatuses fills items[i].ReviewStatus in batches of
// ReviewBatchSize. PRs within a batch are fetched concurrently; a batch
// starts only after the previous one has finished. It fails only when ctx
// is done.
func (c *GitHubClient) resolveReviewStatuses(ctx context.Context, owner, name string, prs []*github.PullRequest, items []models.PullRequest) error {
	for start := 0; start < len(prs); start += ReviewBatchSize {
		end := min(start+ReviewBatchSize, len(prs))

		if err := ctx.Err(); err != nil {
			return err
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				items[i].ReviewStatus = c.reviewStatus(ctx, owner, name, prs[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return ctx.Err()
}

// reviewStatus never fails: any error degrades to the synthetic status.
// Callers check ctx afterwards, since a cancelled call degrades the same way.
func (c *GitHubClient) reviewStatus(ctx context.Context, owner, name string, pr *github.PullRequest) models.ReviewStatus {
	state := prState(pr)
	if status, ok := review.ShortCircuit(state); ok {
		return status
	}

	key := cache.Key(owner, name, "review", strconv.Itoa(pr.GetNumber()))
	if cached, ok := c.cache.Get(key); ok {
		if status, ok := cached.(models.ReviewStatus); ok {
			return status
		}
	}

	status, err := c.fetchReviewStatus(ctx, owner, name, pr.GetNumber(), state)
	if err != nil {
		c.logger.Debug("review data unavailable, using synthetic status",
			"repo", owner+"/"+name, "pr", pr.GetNumber(), "err", err)
		return review.Synthetic(state)
	}

	c.cache.SetWithTTL(key, status, ReviewTTL)
	return status
}

func (c *GitHubClient) fetchReviewStatus(ctx context.Context, owner, name string, number int, state review.PRState) (models.ReviewStatus, error) {
	reviews, err := collect(ctx, 0, nil, func(ctx context.Context, lo github.ListOptions) ([]*github.PullRequestReview, error) {
		page, resp, err := c.client.PullRequests.ListReviews(ctx, owner, name, number, &lo)
		c.observe(resp)
		return page, err
	})
	if err != nil {
		return "", fmt.Errorf("failed to list reviews for #%d: %w", number, c.mapError(err))
	}

	converted := make([]review.Review, 0, len(reviews))
	for _, r := range reviews {
		converted = append(converted, ConvertReview(r))
	}

	pending := 0
	if len(reviews) == 0 && strings.EqualFold(state.State, "open") {
		reviewers, resp, err := c.client.PullRequests.ListReviewers(ctx, owner, name, number, &github.ListOptions{PerPage: PageSize})
		c.observe(resp)
		if err != nil {
			return "", fmt.Errorf("failed to list requested reviewers for #%d: %w", number, c.mapError(err))
		}
		pending = len(reviewers.Users) + len(reviewers.Teams)
	}

	return review.Resolve(state, converted, pending), nil
}

// hasAllLabels keeps pull requests carrying every label (case-insensitive).
// The pulls endpoint has no label filter of its own.
func hasAllLabels(labels []string) func(*github.PullRequest) bool {
	if len(labels) == 0 {
		return nil
	}
	return func(pr *github.PullRequest) bool {
		for _, want := range labels {
			found := false
			for _, l := range pr.Labels {
				if strings.EqualFold(l.GetName(), want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}
