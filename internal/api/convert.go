package api

import (
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/review"
)

// ConvertRepository converts a GitHub repository to our model
func ConvertRepository(repo *github.Repository) *models.Repository {
	return &models.Repository{
		ID:            repo.GetID(),
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		HTMLURL:       repo.GetHTMLURL(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		Stars:         repo.GetStargazersCount(),
		UpdatedAt:     repo.GetUpdatedAt().Time,
	}
}

// ConvertRelease converts a GitHub release to our model and derives its phase
func ConvertRelease(release *github.RepositoryRelease) models.Release {
	return models.Release{
		ID:          release.GetID(),
		TagName:     release.GetTagName(),
		Name:        release.GetName(),
		Body:        release.GetBody(),
		Draft:       release.GetDraft(),
		Prerelease:  release.GetPrerelease(),
		HTMLURL:     release.GetHTMLURL(),
		Author:      release.GetAuthor().GetLogin(),
		CreatedAt:   release.GetCreatedAt().Time,
		PublishedAt: optionalTime(release.PublishedAt),
		Phase:       models.PhaseOf(release.GetDraft(), release.GetPrerelease()),
	}
}

// ConvertPullRequest converts a GitHub pull request to our model.
// ReviewStatus is left for the caller to fill in.
func ConvertPullRequest(pr *github.PullRequest) models.PullRequest {
	return models.PullRequest{
		ID:        pr.GetID(),
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		State:     pr.GetState(),
		Draft:     pr.GetDraft(),
		Merged:    isMerged(pr),
		Author:    pr.GetUser().GetLogin(),
		Labels:    labelNames(pr.Labels),
		HTMLURL:   pr.GetHTMLURL(),
		HeadRef:   pr.GetHead().GetRef(),
		BaseRef:   pr.GetBase().GetRef(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
		ClosedAt:  optionalTime(pr.ClosedAt),
		MergedAt:  optionalTime(pr.MergedAt),
	}
}

// ConvertIssue converts a GitHub issue to our model. IssueType is left for the caller.
func ConvertIssue(issue *github.Issue) models.Issue {
	return models.Issue{
		ID:        issue.GetID(),
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		Author:    issue.GetUser().GetLogin(),
		Labels:    labelNames(issue.Labels),
		Milestone: issue.GetMilestone().GetTitle(),
		HTMLURL:   issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
		ClosedAt:  optionalTime(issue.ClosedAt),
	}
}

// ConvertLabel converts a GitHub label to our model
func ConvertLabel(label *github.Label) models.Label {
	return models.Label{
		ID:          label.GetID(),
		Name:        label.GetName(),
		Color:       label.GetColor(),
		Description: label.GetDescription(),
	}
}

// ConvertMilestone converts a GitHub milestone to our model
func ConvertMilestone(m *github.Milestone) models.Milestone {
	return models.Milestone{
		ID:           m.GetID(),
		Number:       m.GetNumber(),
		Title:        m.GetTitle(),
		Description:  m.GetDescription(),
		State:        m.GetState(),
		OpenIssues:   m.GetOpenIssues(),
		ClosedIssues: m.GetClosedIssues(),
		DueOn:        optionalTime(m.DueOn),
	}
}

// ConvertWorkflow converts a GitHub Actions workflow to our model
func ConvertWorkflow(w *github.Workflow) models.Workflow {
	return models.Workflow{
		ID:      w.GetID(),
		Name:    w.GetName(),
		Path:    w.GetPath(),
		State:   w.GetState(),
		HTMLURL: w.GetHTMLURL(),
	}
}

// ConvertWorkflowRun converts a GitHub Actions workflow run to our model
func ConvertWorkflowRun(run *github.WorkflowRun) models.WorkflowRun {
	return models.WorkflowRun{
		ID:         run.GetID(),
		WorkflowID: run.GetWorkflowID(),
		Name:       run.GetName(),
		RunNumber:  run.GetRunNumber(),
		Event:      run.GetEvent(),
		HeadBranch: run.GetHeadBranch(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		HTMLURL:    run.GetHTMLURL(),
		CreatedAt:  run.GetCreatedAt().Time,
		UpdatedAt:  run.GetUpdatedAt().Time,
		StartedAt:  run.GetRunStartedAt().Time,
	}
}

// ConvertReview converts a GitHub pull request review to the resolver's input
func ConvertReview(r *github.PullRequestReview) review.Review {
	return review.Review{
		Reviewer:    r.GetUser().GetLogin(),
		State:       r.GetState(),
		SubmittedAt: r.GetSubmittedAt().Time,
	}
}

func prState(pr *github.PullRequest) review.PRState {
	return review.PRState{
		Draft:  pr.GetDraft(),
		Merged: isMerged(pr),
		State:  pr.GetState(),
	}
}

// isMerged covers list responses, which carry merged_at but not merged
func isMerged(pr *github.PullRequest) bool {
	return pr.GetMerged() || pr.MergedAt != nil
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

func optionalTime(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}
