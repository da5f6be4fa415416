package state

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wesm/repo-pulse/internal/api"
	"github.com/wesm/repo-pulse/internal/models"
)

// Task is the background fetch of full pull request review data that
// follows every completed load
type Task struct {
	ID         string
	Owner      string
	Name       string
	Generation uint64

	cancel context.CancelFunc
}

// startTaskLocked launches the full pull request fetch for the load gen
func (a *Aggregate) startTaskLocked(owner, name string, gen uint64, limit *int) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{
		ID:         uuid.NewString(),
		Owner:      owner,
		Name:       name,
		Generation: gen,
		cancel:     cancel,
	}
	a.task = task

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		defer cancel()

		a.logger.Debug("fetching review data", "repo", owner+"/"+name, "task", task.ID)
		list, err := a.client.GetPullRequests(ctx, owner, name, "all", nil, api.PullRequestOptions{
			MaxItems: capOr(limit, DefaultPullRequestCap),
		})
		a.finishTask(task, list, err)
	}()
}

// finishTask merges a task's result, unless the selection or load it was
// started for is no longer current
func (a *Aggregate) finishTask(task *Task, list *api.PullRequestList, err error) {
	a.mu.Lock()
	if a.task == task {
		a.task = nil
	}

	if err != nil {
		a.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			a.logger.Debug("review data fetch cancelled", "task", task.ID)
		} else {
			a.logger.Warn("failed to fetch review data", "repo", task.Owner+"/"+task.Name, "task", task.ID, "err", err)
		}
		return
	}

	if task.Generation != a.generation || a.snap.Status != models.StatusReady ||
		a.snap.Owner != task.Owner || a.snap.Name != task.Name {
		a.mu.Unlock()
		a.logger.Debug("discarding stale review data", "repo", task.Owner+"/"+task.Name, "task", task.ID)
		return
	}

	a.snap.PullRequests = orEmpty(list.Items)
	a.snap.PullRequestsIncomplete = list.Incomplete
	a.snap.ReviewStatuses = reviewStatuses(a.snap.PullRequests)
	pulls := api.PullRequestList{Items: a.snap.PullRequests, Incomplete: list.Incomplete}
	ttl := a.snapshotTTL
	a.mu.Unlock()

	a.logger.Debug("merged review data", "repo", task.Owner+"/"+task.Name, "pulls", len(pulls.Items))
	a.saveSnapshot(task.Owner, task.Name, kindPulls, pulls, ttl)
}

func (a *Aggregate) cancelTaskLocked() {
	if a.task != nil {
		a.task.cancel()
		a.task = nil
	}
}
