// Package issuetype classifies issues by keyword matching on label names.
package issuetype

import (
	"strings"

	"github.com/wesm/repo-pulse/internal/models"
)

type rule struct {
	issueType models.IssueType
	keywords  []string
}

// First match wins.
var rules = []rule{
	{models.IssueBug, []string{"bug", "fix", "error"}},
	{models.IssueEnhancement, []string{"feature", "enhancement", "improvement"}},
	{models.IssueDocumentation, []string{"doc"}},
	{models.IssueQuestion, []string{"question", "help"}},
}

// typeLabelKeywords is broader than rules and only used to report which
// repository labels look like type labels.
var typeLabelKeywords = []string{
	"bug", "fix", "error",
	"feature", "enhancement", "improvement",
	"doc",
	"question", "help",
	"security", "vulnerability",
	"refactor", "technical debt",
	"test", "testing",
}

// Classify returns the type of an issue carrying the given labels.
// When the repository has no type labels at all nothing can match.
func Classify(labels []string, typeLabelsExist bool) models.IssueType {
	if !typeLabelsExist || len(labels) == 0 {
		return models.IssueOther
	}

	lowered := make([]string, len(labels))
	for i, l := range labels {
		lowered[i] = strings.ToLower(l)
	}

	for _, r := range rules {
		for _, label := range lowered {
			if containsAny(label, r.keywords) {
				return r.issueType
			}
		}
	}
	return models.IssueOther
}

// IsTypeLabel reports whether a label name looks like an issue type
func IsTypeLabel(name string) bool {
	return containsAny(strings.ToLower(name), typeLabelKeywords)
}

// TypeLabels filters labels down to the ones that look like issue types
func TypeLabels(labels []models.Label) []models.Label {
	result := make([]models.Label, 0)
	for _, l := range labels {
		if IsTypeLabel(l.Name) {
			result = append(result, l)
		}
	}
	return result
}

// Vocabulary lists every issue type in classification priority order
func Vocabulary() []models.IssueType {
	v := make([]models.IssueType, 0, len(rules)+1)
	for _, r := range rules {
		v = append(v, r.issueType)
	}
	return append(v, models.IssueOther)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
