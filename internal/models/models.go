package models

import (
	"time"
)

// Identity is the authenticated GitHub account bound to a session
type Identity struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Repository represents a GitHub repository
type Repository struct {
	ID            int64     `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FullName      string    `json:"fullName"`
	Description   string    `json:"description,omitempty"`
	DefaultBranch string    `json:"defaultBranch,omitempty"`
	Private       bool      `json:"private"`
	HTMLURL       string    `json:"htmlUrl,omitempty"`
	OpenIssues    int       `json:"openIssues"`
	Stars         int       `json:"stars"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// User represents a GitHub user
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Release represents a GitHub release with its derived lifecycle phase
type Release struct {
	ID          int64      `json:"id"`
	TagName     string     `json:"tagName"`
	Name        string     `json:"name"`
	Body        string     `json:"body,omitempty"`
	Draft       bool       `json:"draft"`
	Prerelease  bool       `json:"prerelease"`
	HTMLURL     string     `json:"htmlUrl,omitempty"`
	Author      string     `json:"author,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Phase       Phase      `json:"phase"`
	IssueCount  int        `json:"issueCount"`
}

// ReleaseInput carries the writable fields of a release
type ReleaseInput struct {
	TagName         string `json:"tagName"`
	TargetCommitish string `json:"targetCommitish,omitempty"`
	Name            string `json:"name"`
	Body            string `json:"body,omitempty"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
}

// PullRequest represents a GitHub pull request with its derived review status
type PullRequest struct {
	ID           int64        `json:"id"`
	Number       int          `json:"number"`
	Title        string       `json:"title"`
	State        string       `json:"state"`
	Draft        bool         `json:"draft"`
	Merged       bool         `json:"merged"`
	Author       string       `json:"author,omitempty"`
	Labels       []string     `json:"labels"`
	HTMLURL      string       `json:"htmlUrl,omitempty"`
	HeadRef      string       `json:"headRef,omitempty"`
	BaseRef      string       `json:"baseRef,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	ClosedAt     *time.Time   `json:"closedAt,omitempty"`
	MergedAt     *time.Time   `json:"mergedAt,omitempty"`
	ReviewStatus ReviewStatus `json:"reviewStatus"`
}

// Issue represents a GitHub issue (never a pull request) with its derived type
type Issue struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	State     string     `json:"state"`
	Author    string     `json:"author,omitempty"`
	Labels    []string   `json:"labels"`
	Milestone string     `json:"milestone,omitempty"`
	HTMLURL   string     `json:"htmlUrl,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	IssueType IssueType  `json:"issueType"`
}

// Label represents a GitHub label
type Label struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Milestone represents a GitHub milestone
type Milestone struct {
	ID           int64      `json:"id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	State        string     `json:"state"`
	OpenIssues   int        `json:"openIssues"`
	ClosedIssues int        `json:"closedIssues"`
	DueOn        *time.Time `json:"dueOn,omitempty"`
}

// Workflow represents a GitHub Actions workflow
type Workflow struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	State   string `json:"state"`
	HTMLURL string `json:"htmlUrl,omitempty"`
}

// WorkflowRun represents a single GitHub Actions workflow run
type WorkflowRun struct {
	ID         int64     `json:"id"`
	WorkflowID int64     `json:"workflowId"`
	Name       string    `json:"name"`
	RunNumber  int       `json:"runNumber"`
	Event      string    `json:"event,omitempty"`
	HeadBranch string    `json:"headBranch,omitempty"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion,omitempty"`
	HTMLURL    string    `json:"htmlUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	StartedAt  time.Time `json:"startedAt"`
}

// RateLimit is the full core rate-limit bucket reported by GitHub
type RateLimit struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"resetAt"`
}

// RateSnapshot is the advisory rate state recorded from response headers
type RateSnapshot struct {
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"resetAt"`
	Known     bool      `json:"known"`
}

// LoadStatus is the lifecycle state of a repository load
type LoadStatus string

const (
	StatusIdle    LoadStatus = "idle"
	StatusLoading LoadStatus = "loading"
	StatusReady   LoadStatus = "ready"
	StatusFailed  LoadStatus = "failed"
)

// RepositoryAggregate is the consolidated snapshot for the selected repository
type RepositoryAggregate struct {
	Status   LoadStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	Owner    string     `json:"owner,omitempty"`
	Name     string     `json:"name,omitempty"`
	Restored bool       `json:"restored,omitempty"`
	LoadedAt time.Time  `json:"loadedAt,omitempty"`

	Repository   *Repository   `json:"repository,omitempty"`
	Releases     []Release     `json:"releases"`
	PullRequests []PullRequest `json:"pullRequests"`
	Issues       []Issue       `json:"issues"`
	Labels       []Label       `json:"labels"`
	Milestones   []Milestone   `json:"milestones"`

	// PullRequestsIncomplete is set while only synthetic review statuses are known
	PullRequestsIncomplete bool `json:"pullRequestsIncomplete"`

	ReviewStatuses []ReviewStatus `json:"reviewStatuses"`
	IssueTypes     []Label        `json:"issueTypes"`
}
