// Package review derives a single review status for a pull request.
package review

import (
	"sort"
	"strings"
	"time"

	"github.com/wesm/repo-pulse/internal/models"
)

// GitHub review states
const (
	StateApproved         = "APPROVED"
	StateChangesRequested = "CHANGES_REQUESTED"
	StateCommented        = "COMMENTED"
	StateDismissed        = "DISMISSED"
	StatePending          = "PENDING"
)

// PRState is the part of a pull request the resolver looks at
type PRState struct {
	Draft  bool
	Merged bool
	State  string
}

// Review is one submitted review
type Review struct {
	Reviewer    string
	State       string
	SubmittedAt time.Time
}

var priority = []models.ReviewStatus{
	models.ReviewApproved,
	models.ReviewChangesRequested,
	models.ReviewRequired,
	models.ReviewNone,
	models.ReviewCommented,
	models.ReviewDraft,
}

// ShortCircuit returns the status of draft, merged and closed pull requests,
// which need no review data.
func ShortCircuit(pr PRState) (models.ReviewStatus, bool) {
	switch {
	case pr.Draft:
		return models.ReviewDraft, true
	case pr.Merged:
		return models.ReviewApproved, true
	case strings.EqualFold(pr.State, "closed"):
		return models.ReviewChangesRequested, true
	}
	return "", false
}

// Synthetic is the cheap status used when review data is skipped or unavailable
func Synthetic(pr PRState) models.ReviewStatus {
	if status, ok := ShortCircuit(pr); ok {
		return status
	}
	return models.ReviewNone
}

// Resolve derives the status from reviews and the number of outstanding
// review requests. Only the latest submitted review of each reviewer counts.
func Resolve(pr PRState, reviews []Review, pendingRequests int) models.ReviewStatus {
	if status, ok := ShortCircuit(pr); ok {
		return status
	}

	latest := LatestByReviewer(reviews)

	var approved, commented bool
	for _, r := range latest {
		switch strings.ToUpper(r.State) {
		case StateChangesRequested:
			return models.ReviewChangesRequested
		case StateApproved:
			approved = true
		default:
			commented = true
		}
	}

	switch {
	case approved:
		return models.ReviewApproved
	case commented:
		return models.ReviewCommented
	case pendingRequests > 0 && strings.EqualFold(pr.State, "open"):
		return models.ReviewRequired
	default:
		return models.ReviewNone
	}
}

// LatestByReviewer keeps the most recently submitted review per reviewer.
// Unsubmitted (pending) reviews are dropped; on equal timestamps the later
// element wins.
func LatestByReviewer(reviews []Review) map[string]Review {
	latest := make(map[string]Review, len(reviews))
	for _, r := range reviews {
		if strings.EqualFold(r.State, StatePending) {
			continue
		}
		prev, ok := latest[r.Reviewer]
		if !ok || !r.SubmittedAt.Before(prev.SubmittedAt) {
			latest[r.Reviewer] = r
		}
	}
	return latest
}

// SortStatuses returns the distinct statuses in display priority order.
// Unknown values follow the known ones alphabetically.
func SortStatuses(statuses []models.ReviewStatus) []models.ReviewStatus {
	seen := make(map[models.ReviewStatus]bool, len(statuses))
	for _, s := range statuses {
		if s != "" {
			seen[s] = true
		}
	}

	result := make([]models.ReviewStatus, 0, len(seen))
	for _, s := range priority {
		if seen[s] {
			result = append(result, s)
			delete(seen, s)
		}
	}

	var unknown []models.ReviewStatus
	for s := range seen {
		unknown = append(unknown, s)
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })

	return append(result, unknown...)
}
