// Package state holds the consolidated, cached view of the selected repository.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/wesm/repo-pulse/internal/api"
	"github.com/wesm/repo-pulse/internal/cache"
	"github.com/wesm/repo-pulse/internal/issuetype"
	"github.com/wesm/repo-pulse/internal/logging"
	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/review"
)

const (
	// DefaultPullRequestCap bounds the pull request load when no item limit is set
	DefaultPullRequestCap = 200

	// DefaultIssueCap bounds the issue load when no item limit is set
	DefaultIssueCap = 500
)

// Snapshot kinds persisted per repository
const (
	kindRepository = "repository"
	kindReleases   = "releases"
	kindPulls      = "pulls"
	kindIssues     = "issues"
	kindLabels     = "labels"
	kindMilestones = "milestones"
)

// ErrNoRepository is returned by operations that need a loaded repository
var ErrNoRepository = errors.New("no repository loaded")

var errSuperseded = errors.New("load superseded")

// Client is the remote API the aggregate loads from. *api.GitHubClient satisfies it.
type Client interface {
	GetRepository(ctx context.Context, owner, name string) (*models.Repository, error)
	GetReleases(ctx context.Context, owner, name string) ([]models.Release, error)
	GetMilestones(ctx context.Context, owner, name, state string) ([]models.Milestone, error)
	GetIssueTypes(ctx context.Context, owner, name string) ([]models.Label, error)
	GetPullRequests(ctx context.Context, owner, name, state string, labels []string, opts api.PullRequestOptions) (*api.PullRequestList, error)
	GetIssues(ctx context.Context, owner, name, state string, labels []string, opts api.IssueOptions) ([]models.Issue, error)
	GetLabels(ctx context.Context, owner, name string) ([]models.Label, error)
	CreateRelease(ctx context.Context, owner, name string, input models.ReleaseInput) (*models.Release, error)
	UpdateReleasePhase(ctx context.Context, owner, name string, id int64, phase models.Phase) (*models.Release, error)
	AddLabelToIssue(ctx context.Context, owner, name string, number int, label string) ([]models.Label, error)
	RemoveLabelFromIssue(ctx context.Context, owner, name string, number int, label string) error
	InvalidateRepository(owner, name string) int
}

// Store persists the selection and repository snapshots. *db.DB satisfies it.
type Store interface {
	SaveSelection(owner, name string) error
	LoadSelection() (owner, name string, ok bool, err error)
	ClearSelection() error
	SaveSnapshot(owner, repo, kind string, v any, ttl time.Duration) error
	LoadSnapshot(owner, repo, kind string, v any) (bool, error)
	DeleteSnapshots(owner, repo string) error
}

// Aggregate is the state machine behind the selected repository:
// Idle -> Loading -> Ready or Failed. It never holds its lock across a
// network call; every load carries a generation and its results are applied
// only while that generation is still current.
type Aggregate struct {
	client Client
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu             sync.Mutex
	snap           models.RepositoryAggregate
	generation     uint64
	itemLimit      *int
	snapshotTTL    time.Duration
	pendingRefresh bool
	task           *Task

	background sync.WaitGroup
}

// Option configures an Aggregate
type Option func(*Aggregate)

// WithItemLimit sets the initial item limit. nil means the default caps.
func WithItemLimit(limit *int) Option {
	return func(a *Aggregate) {
		a.itemLimit = copyLimit(limit)
	}
}

// WithSnapshotTTL sets how long persisted snapshots stay valid
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(a *Aggregate) {
		a.snapshotTTL = ttl
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(a *Aggregate) {
		a.now = now
	}
}

// New creates an idle aggregate. store and logger may be nil.
func New(client Client, store Store, logger *slog.Logger, opts ...Option) *Aggregate {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &Aggregate{
		client:      client,
		store:       store,
		logger:      logger,
		now:         time.Now,
		snap:        emptyAggregate(models.StatusIdle, "", ""),
		snapshotTTL: cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Status returns the current load status
func (a *Aggregate) Status() models.LoadStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Status
}

// Selection returns the selected repository, if any
func (a *Aggregate) Selection() (owner, name string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Owner, a.snap.Name, a.snap.Owner != ""
}

// Snapshot returns a copy of the aggregate that is safe to hand to other goroutines
func (a *Aggregate) Snapshot() models.RepositoryAggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cloneLocked()
}

// SelectRepository makes owner/name the selected repository and loads it.
// It is a no-op while a load is running or when the repository is already
// loaded. Selecting another repository drops the previous one's cache and
// snapshots.
func (a *Aggregate) SelectRepository(ctx context.Context, owner, name string) error {
	if err := ValidateRepository(owner, name); err != nil {
		return err
	}

	a.mu.Lock()
	switch a.snap.Status {
	case models.StatusLoading:
		a.mu.Unlock()
		a.logger.Debug("load in progress, ignoring selection", "repo", owner+"/"+name)
		return nil
	case models.StatusReady:
		if a.snap.Owner == owner && a.snap.Name == name {
			a.mu.Unlock()
			return nil
		}
	case models.StatusFailed:
		// the failure has been reported; start over from idle
		a.snap.Status = models.StatusIdle
	}

	prevOwner, prevName := a.snap.Owner, a.snap.Name
	switching := prevOwner != "" && (prevOwner != owner || prevName != name)
	a.cancelTaskLocked()
	gen := a.beginLoadLocked(owner, name, false)
	limit := copyLimit(a.itemLimit)
	a.mu.Unlock()

	if switching {
		a.dropRepository(prevOwner, prevName)
	}
	if a.store != nil {
		if err := a.store.SaveSelection(owner, name); err != nil {
			a.logger.Warn("failed to persist selection", "repo", owner+"/"+name, "err", err)
		}
	}

	return a.load(ctx, gen, owner, name, limit)
}

// Refresh drops the cached data of the selected repository and loads it
// again. It is a no-op while a load is running and retries a failed load.
func (a *Aggregate) Refresh(ctx context.Context) error {
	a.mu.Lock()
	switch a.snap.Status {
	case models.StatusLoading:
		a.mu.Unlock()
		return nil
	case models.StatusIdle:
		a.mu.Unlock()
		return ErrNoRepository
	case models.StatusFailed:
		a.snap.Status = models.StatusIdle
	}

	owner, name := a.snap.Owner, a.snap.Name
	a.cancelTaskLocked()
	gen := a.beginLoadLocked(owner, name, a.snap.Status == models.StatusReady)
	limit := copyLimit(a.itemLimit)
	a.mu.Unlock()

	a.client.InvalidateRepository(owner, name)
	return a.load(ctx, gen, owner, name, limit)
}

// Clear cancels background work, forgets the selection and drops its
// cached data and snapshots
func (a *Aggregate) Clear() {
	a.mu.Lock()
	owner, name := a.snap.Owner, a.snap.Name
	a.cancelTaskLocked()
	a.generation++
	a.pendingRefresh = false
	a.snap = emptyAggregate(models.StatusIdle, "", "")
	a.mu.Unlock()

	if owner != "" {
		a.dropRepository(owner, name)
	}
	if a.store != nil {
		if err := a.store.ClearSelection(); err != nil {
			a.logger.Warn("failed to clear persisted selection", "err", err)
		}
	}
}

// Close cancels the running review data fetch. The snapshot and persisted
// state are kept.
func (a *Aggregate) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelTaskLocked()
}

// Wait blocks until background work started so far has finished
func (a *Aggregate) Wait() {
	a.background.Wait()
}

// SetItemLimit applies a new item limit. A loaded repository is refreshed
// once; during a load a single refresh is queued to run after it.
func (a *Aggregate) SetItemLimit(limit *int) {
	a.mu.Lock()
	if sameLimit(a.itemLimit, limit) {
		a.mu.Unlock()
		return
	}
	a.itemLimit = copyLimit(limit)
	a.mu.Unlock()

	a.requestRefresh()
}

// SetSnapshotTTL changes the lifetime of snapshots persisted from now on
func (a *Aggregate) SetSnapshotTTL(ttl time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshotTTL = ttl
}

// CreateRelease creates a release in the selected repository and prepends
// it to the loaded releases
func (a *Aggregate) CreateRelease(ctx context.Context, input models.ReleaseInput) (*models.Release, error) {
	owner, name, gen, err := a.readyTarget()
	if err != nil {
		return nil, err
	}

	created, err := a.client.CreateRelease(ctx, owner, name, input)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	release := Associate([]models.Release{*created}, a.snap.Issues)[0]
	if a.generation == gen && a.snap.Status == models.StatusReady {
		a.snap.Releases = append([]models.Release{release}, a.snap.Releases...)
	}
	return &release, nil
}

// SetReleasePhase moves a release to phase and replaces it in the loaded
// releases, keeping its issue count
func (a *Aggregate) SetReleasePhase(ctx context.Context, id int64, phase models.Phase) (*models.Release, error) {
	owner, name, gen, err := a.readyTarget()
	if err != nil {
		return nil, err
	}

	updated, err := a.client.UpdateReleasePhase(ctx, owner, name, id, phase)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	release := *updated
	if a.generation == gen && a.snap.Status == models.StatusReady {
		for i := range a.snap.Releases {
			if a.snap.Releases[i].ID == id {
				release.IssueCount = a.snap.Releases[i].IssueCount
				a.snap.Releases[i] = release
				break
			}
		}
	}
	return &release, nil
}

// AddLabel attaches label to an issue or pull request and schedules a refetch
func (a *Aggregate) AddLabel(ctx context.Context, number int, label string) ([]models.Label, error) {
	owner, name, _, err := a.readyTarget()
	if err != nil {
		return nil, err
	}

	labels, err := a.client.AddLabelToIssue(ctx, owner, name, number, label)
	if err != nil {
		return nil, err
	}

	a.markStale(owner, name)
	return labels, nil
}

// RemoveLabel detaches label from an issue or pull request and schedules a refetch
func (a *Aggregate) RemoveLabel(ctx context.Context, number int, label string) error {
	owner, name, _, err := a.readyTarget()
	if err != nil {
		return err
	}

	if err := a.client.RemoveLabelFromIssue(ctx, owner, name, number, label); err != nil {
		return err
	}

	a.markStale(owner, name)
	return nil
}

// Restore installs the persisted snapshot of the persisted selection
// without any network call. It reports false when there is no selection or
// any snapshot kind is missing or expired. Restored pull requests keep
// whatever review statuses were persisted.
func (a *Aggregate) Restore() (bool, error) {
	if a.store == nil {
		return false, nil
	}

	owner, name, ok, err := a.store.LoadSelection()
	if err != nil {
		return false, fmt.Errorf("failed to load selection: %w", err)
	}
	if !ok {
		return false, nil
	}

	snap := emptyAggregate(models.StatusReady, owner, name)
	var (
		repo  models.Repository
		pulls api.PullRequestList
	)
	targets := []struct {
		kind string
		v    any
	}{
		{kindRepository, &repo},
		{kindReleases, &snap.Releases},
		{kindPulls, &pulls},
		{kindIssues, &snap.Issues},
		{kindLabels, &snap.Labels},
		{kindMilestones, &snap.Milestones},
	}
	for _, t := range targets {
		found, err := a.store.LoadSnapshot(owner, name, t.kind, t.v)
		if err != nil {
			return false, err
		}
		if !found {
			a.logger.Debug("snapshot incomplete, not restoring", "repo", owner+"/"+name, "missing", t.kind)
			return false, nil
		}
	}

	snap.Repository = &repo
	snap.Releases = orEmpty(snap.Releases)
	snap.PullRequests = orEmpty(pulls.Items)
	snap.PullRequestsIncomplete = pulls.Incomplete
	snap.Issues = orEmpty(snap.Issues)
	snap.Labels = orEmpty(snap.Labels)
	snap.Milestones = orEmpty(snap.Milestones)
	snap.ReviewStatuses = reviewStatuses(snap.PullRequests)
	snap.IssueTypes = issuetype.TypeLabels(snap.Labels)
	snap.Restored = true
	snap.LoadedAt = a.now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap.Status != models.StatusIdle {
		return false, nil
	}
	a.generation++
	a.snap = snap
	a.logger.Info("restored repository snapshot", "repo", owner+"/"+name)
	return true, nil
}

// load fetches everything for owner/name and installs the result if gen is
// still the active load
func (a *Aggregate) load(ctx context.Context, gen uint64, owner, name string, limit *int) error {
	start := a.now()
	a.logger.Info("loading repository", "repo", owner+"/"+name)

	snap, err := a.fetch(ctx, gen, owner, name, limit)

	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		a.logger.Debug("discarding superseded load", "repo", owner+"/"+name)
		return nil
	}
	if err != nil {
		a.snap = emptyAggregate(models.StatusFailed, owner, name)
		a.snap.Error = err.Error()
		a.pendingRefresh = false
		a.mu.Unlock()
		a.logger.Error("failed to load repository", "repo", owner+"/"+name, "err", err)
		return err
	}

	snap.Status = models.StatusReady
	snap.LoadedAt = a.now()
	a.snap = snap
	pending := a.pendingRefresh
	a.pendingRefresh = false
	saved := a.cloneLocked()
	ttl := a.snapshotTTL
	a.mu.Unlock()

	a.logger.Info("repository loaded", "repo", owner+"/"+name,
		"releases", len(snap.Releases), "pulls", len(snap.PullRequests), "issues", len(snap.Issues),
		"elapsed", a.now().Sub(start).Round(time.Millisecond))

	// the review data task persists its own pull request snapshot, so it
	// starts only once the summary snapshot is written
	a.persist(saved, ttl)

	if pending {
		a.requestRefresh()
		return nil
	}

	a.mu.Lock()
	if a.generation == gen && a.snap.Status == models.StatusReady {
		a.startTaskLocked(owner, name, gen, limit)
	}
	a.mu.Unlock()
	return nil
}

// fetch runs the load sequence. Repository, releases, pull requests and
// issues are required; milestones, issue types and labels degrade to empty
// lists unless the credential was rejected.
func (a *Aggregate) fetch(ctx context.Context, gen uint64, owner, name string, limit *int) (models.RepositoryAggregate, error) {
	snap := emptyAggregate(models.StatusLoading, owner, name)
	active := func() error {
		if !a.isActive(gen) {
			return errSuperseded
		}
		return nil
	}

	repo, err := a.client.GetRepository(ctx, owner, name)
	if err != nil {
		return snap, err
	}
	snap.Repository = repo
	if err := active(); err != nil {
		return snap, err
	}

	releases, err := a.client.GetReleases(ctx, owner, name)
	if err != nil {
		return snap, err
	}
	if err := active(); err != nil {
		return snap, err
	}

	milestones, err := a.client.GetMilestones(ctx, owner, name, "all")
	if snap.Milestones, err = degrade(a.logger, "milestones", milestones, err); err != nil {
		return snap, err
	}
	if err := active(); err != nil {
		return snap, err
	}

	types, err := a.client.GetIssueTypes(ctx, owner, name)
	if snap.IssueTypes, err = degrade(a.logger, "issue types", types, err); err != nil {
		return snap, err
	}
	if err := active(); err != nil {
		return snap, err
	}

	pulls, err := a.client.GetPullRequests(ctx, owner, name, "all", nil, api.PullRequestOptions{
		MaxItems:       capOr(limit, DefaultPullRequestCap),
		SkipReviewData: true,
	})
	if err != nil {
		return snap, err
	}
	snap.PullRequests = orEmpty(pulls.Items)
	snap.PullRequestsIncomplete = pulls.Incomplete
	snap.ReviewStatuses = reviewStatuses(snap.PullRequests)
	if err := active(); err != nil {
		return snap, err
	}

	issues, err := a.client.GetIssues(ctx, owner, name, "all", nil, api.IssueOptions{
		MaxItems: capOr(limit, DefaultIssueCap),
	})
	if err != nil {
		return snap, err
	}
	snap.Issues = orEmpty(issues)
	snap.Releases = Associate(releases, snap.Issues)
	if err := active(); err != nil {
		return snap, err
	}

	labels, err := a.client.GetLabels(ctx, owner, name)
	if snap.Labels, err = degrade(a.logger, "labels", labels, err); err != nil {
		return snap, err
	}

	return snap, nil
}

func (a *Aggregate) isActive(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation == gen && a.snap.Status == models.StatusLoading
}

// beginLoadLocked moves to Loading under a new generation. keep leaves the
// previous data visible until the load replaces it.
func (a *Aggregate) beginLoadLocked(owner, name string, keep bool) uint64 {
	a.generation++
	if keep {
		a.snap.Status = models.StatusLoading
		a.snap.Error = ""
	} else {
		a.snap = emptyAggregate(models.StatusLoading, owner, name)
	}
	return a.generation
}

// requestRefresh refreshes a loaded repository in the background, or queues
// one refresh behind a running load
func (a *Aggregate) requestRefresh() {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.snap.Status {
	case models.StatusLoading:
		a.pendingRefresh = true
	case models.StatusReady:
		owner, name := a.snap.Owner, a.snap.Name
		a.cancelTaskLocked()
		gen := a.beginLoadLocked(owner, name, true)
		limit := copyLimit(a.itemLimit)

		a.background.Add(1)
		go func() {
			defer a.background.Done()
			a.client.InvalidateRepository(owner, name)
			if err := a.load(context.Background(), gen, owner, name, limit); err != nil {
				a.logger.Warn("background refresh failed", "repo", owner+"/"+name, "err", err)
			}
		}()
	}
}

func (a *Aggregate) markStale(owner, name string) {
	a.client.InvalidateRepository(owner, name)
	a.requestRefresh()
}

func (a *Aggregate) readyTarget() (owner, name string, gen uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap.Status != models.StatusReady {
		return "", "", 0, ErrNoRepository
	}
	return a.snap.Owner, a.snap.Name, a.generation, nil
}

// dropRepository forgets everything cached or persisted for a repository
func (a *Aggregate) dropRepository(owner, name string) {
	a.client.InvalidateRepository(owner, name)
	if a.store != nil {
		if err := a.store.DeleteSnapshots(owner, name); err != nil {
			a.logger.Warn("failed to delete snapshots", "repo", owner+"/"+name, "err", err)
		}
	}
}

func (a *Aggregate) persist(snap models.RepositoryAggregate, ttl time.Duration) {
	if a.store == nil {
		return
	}

	kinds := []struct {
		kind string
		v    any
	}{
		{kindRepository, snap.Repository},
		{kindReleases, snap.Releases},
		{kindPulls, api.PullRequestList{Items: snap.PullRequests, Incomplete: snap.PullRequestsIncomplete}},
		{kindIssues, snap.Issues},
		{kindLabels, snap.Labels},
		{kindMilestones, snap.Milestones},
	}
	for _, k := range kinds {
		a.saveSnapshot(snap.Owner, snap.Name, k.kind, k.v, ttl)
	}
}

func (a *Aggregate) saveSnapshot(owner, name, kind string, v any, ttl time.Duration) {
	if a.store == nil {
		return
	}
	if err := a.store.SaveSnapshot(owner, name, kind, v, ttl); err != nil {
		a.logger.Warn("failed to persist snapshot", "repo", owner+"/"+name, "kind", kind, "err", err)
	}
}

func (a *Aggregate) cloneLocked() models.RepositoryAggregate {
	c := a.snap
	if c.Repository != nil {
		repo := *c.Repository
		c.Repository = &repo
	}
	c.Releases = slices.Clone(c.Releases)
	c.PullRequests = slices.Clone(c.PullRequests)
	c.Issues = slices.Clone(c.Issues)
	c.Labels = slices.Clone(c.Labels)
	c.Milestones = slices.Clone(c.Milestones)
	c.ReviewStatuses = slices.Clone(c.ReviewStatuses)
	c.IssueTypes = slices.Clone(c.IssueTypes)
	return c
}

// degrade turns an auxiliary fetch failure into an empty list. A rejected
// credential is never degraded.
func degrade[T any](logger *slog.Logger, what string, items []T, err error) ([]T, error) {
	if err == nil {
		return orEmpty(items), nil
	}
	if errors.Is(err, api.ErrAuth) {
		return nil, err
	}
	logger.Warn("failed to load "+what+", continuing without", "err", err)
	return []T{}, nil
}

func emptyAggregate(status models.LoadStatus, owner, name string) models.RepositoryAggregate {
	return models.RepositoryAggregate{
		Status:         status,
		Owner:          owner,
		Name:           name,
		Releases:       []models.Release{},
		PullRequests:   []models.PullRequest{},
		Issues:         []models.Issue{},
		Labels:         []models.Label{},
		Milestones:     []models.Milestone{},
		ReviewStatuses: []models.ReviewStatus{},
		IssueTypes:     []models.Label{},
	}
}

func reviewStatuses(prs []models.PullRequest) []models.ReviewStatus {
	statuses := make([]models.ReviewStatus, 0, len(prs))
	for _, pr := range prs {
		statuses = append(statuses, pr.ReviewStatus)
	}
	return review.SortStatuses(statuses)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func capOr(limit *int, fallback int) int {
	if limit == nil {
		return fallback
	}
	return *limit
}

func sameLimit(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyLimit(limit *int) *int {
	if limit == nil {
		return nil
	}
	v := *limit
	return &v
}
