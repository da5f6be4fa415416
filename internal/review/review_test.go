package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wesm/repo-pulse/internal/models"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func open() PRState { return PRState{State: "open"} }

func TestShortCircuitRules(t *testing.T) {
	assert.Equal(t, models.ReviewDraft, Resolve(PRState{Draft: true, Merged: true, State: "open"}, nil, 0))
	assert.Equal(t, models.ReviewApproved, Resolve(PRState{Merged: true, State: "closed"}, nil, 0))
	assert.Equal(t, models.ReviewChangesRequested, Resolve(PRState{State: "closed"}, nil, 0))
}

func TestLatestReviewPerReviewerWins(t *testing.T) {
	reviews := []Review{
		{Reviewer: "alice", State: StateApproved, SubmittedAt: t0},
		{Reviewer: "alice", State: StateChangesRequested, SubmittedAt: t0.Add(time.Hour)},
	}
	assert.Equal(t, models.ReviewChangesRequested, Resolve(open(), reviews, 0))

	// order of the input does not matter
	reversed := []Review{reviews[1], reviews[0]}
	assert.Equal(t, models.ReviewChangesRequested, Resolve(open(), reversed, 0))
}

func TestLaterApprovalSupersedesChangesRequested(t *testing.T) {
	reviews := []Review{
		{Reviewer: "alice", State: StateChangesRequested, SubmittedAt: t0},
		{Reviewer: "alice", State: StateApproved, SubmittedAt: t0.Add(time.Hour)},
	}
	assert.Equal(t, models.ReviewApproved, Resolve(open(), reviews, 0))
}

func TestApprovalBeatsOtherReviewersComment(t *testing.T) {
	reviews := []Review{
		{Reviewer: "alice", State: StateApproved, SubmittedAt: t0},
		{Reviewer: "bob", State: StateCommented, SubmittedAt: t0.Add(time.Minute)},
	}
	assert.Equal(t, models.ReviewApproved, Resolve(open(), reviews, 0))
}

func TestChangesRequestedBeatsApproval(t *testing.T) {
	reviews := []Review{
		{Reviewer: "alice", State: StateApproved, SubmittedAt: t0},
		{Reviewer: "bob", State: StateChangesRequested, SubmittedAt: t0.Add(-time.Minute)},
	}
	assert.Equal(t, models.ReviewChangesRequested, Resolve(open(), reviews, 0))
}

func TestCommentOnly(t *testing.T) {
	reviews := []Review{{Reviewer: "bob", State: StateCommented, SubmittedAt: t0}}
	assert.Equal(t, models.ReviewCommented, Resolve(open(), reviews, 3))
}

func TestDismissedCountsAsReview(t *testing.T) {
	reviews := []Review{{Reviewer: "bob", State: StateDismissed, SubmittedAt: t0}}
	assert.Equal(t, models.ReviewCommented, Resolve(open(), reviews, 0))
}

func TestReviewRequired(t *testing.T) {
	assert.Equal(t, models.ReviewRequired, Resolve(open(), nil, 1))
	assert.Equal(t, models.ReviewNone, Resolve(open(), nil, 0))
}

func TestPendingReviewsIgnored(t *testing.T) {
	reviews := []Review{{Reviewer: "me", State: StatePending}}
	assert.Equal(t, models.ReviewRequired, Resolve(open(), reviews, 2))
}

func TestSynthetic(t *testing.T) {
	assert.Equal(t, models.ReviewDraft, Synthetic(PRState{Draft: true, State: "open"}))
	assert.Equal(t, models.ReviewApproved, Synthetic(PRState{Merged: true, State: "closed"}))
	assert.Equal(t, models.ReviewChangesRequested, Synthetic(PRState{State: "closed"}))
	assert.Equal(t, models.ReviewNone, Synthetic(open()))
}

func TestSortStatusesPriority(t *testing.T) {
	got := SortStatuses([]models.ReviewStatus{models.ReviewNone, models.ReviewDraft, models.ReviewApproved})
	assert.Equal(t, []models.ReviewStatus{models.ReviewApproved, models.ReviewNone, models.ReviewDraft}, got)
}

func TestSortStatusesUnknownAndDuplicates(t *testing.T) {
	got := SortStatuses([]models.ReviewStatus{
		"ZETA", models.ReviewCommented, "ALPHA", models.ReviewCommented, models.ReviewRequired,
	})
	assert.Equal(t, []models.ReviewStatus{models.ReviewRequired, models.ReviewCommented, "ALPHA", "ZETA"}, got)
}
