package models

import (
	"fmt"
	"strings"
)

// Phase is the lifecycle stage derived from a release's draft and prerelease flags
type Phase string

const (
	PhaseDevelopment Phase = "development"
	PhaseStaging     Phase = "staging"
	PhaseProduction  Phase = "production"
)

// PhaseOf maps release flags to a phase. Draft wins over prerelease.
func PhaseOf(draft, prerelease bool) Phase {
	switch {
	case draft:
		return PhaseDevelopment
	case prerelease:
		return PhaseStaging
	default:
		return PhaseProduction
	}
}

// Flags returns the draft and prerelease flags that produce the phase
func (p Phase) Flags() (draft, prerelease bool) {
	switch p {
	case PhaseDevelopment:
		return true, false
	case PhaseStaging:
		return false, true
	default:
		return false, false
	}
}

// ParsePhase validates a phase name
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(strings.ToLower(strings.TrimSpace(s))); p {
	case PhaseDevelopment, PhaseStaging, PhaseProduction:
		return p, nil
	}
	return "", &ValidationError{Field: "phase", Message: fmt.Sprintf("unknown phase %q", s)}
}

// ReviewStatus summarizes a pull request's review state
type ReviewStatus string

const (
	ReviewDraft            ReviewStatus = "DRAFT"
	ReviewApproved         ReviewStatus = "APPROVED"
	ReviewChangesRequested ReviewStatus = "CHANGES_REQUESTED"
	ReviewRequired         ReviewStatus = "REVIEW_REQUIRED"
	ReviewNone             ReviewStatus = "NO_REVIEW"
	ReviewCommented        ReviewStatus = "COMMENTED"
)

// IssueType is the category derived from an issue's labels
type IssueType string

const (
	IssueBug           IssueType = "bug"
	IssueEnhancement   IssueType = "enhancement"
	IssueDocumentation IssueType = "documentation"
	IssueQuestion      IssueType = "question"
	IssueOther         IssueType = "other"
)

// ValidationError reports malformed local input rejected before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
