package state

import (
	"strings"

	"github.com/wesm/repo-pulse/internal/models"
)

// Associate returns a copy of releases with IssueCount set from issues.
//
// An issue belongs to a release when one of its labels mentions "release"
// and the part after the label's first hyphen occurs in the tag name
// ("release-1.2" matches "v1.2.0"), or when its milestone title occurs in
// the release name. The rule is a heuristic and may count an issue against
// several releases.
func Associate(releases []models.Release, issues []models.Issue) []models.Release {
	result := make([]models.Release, len(releases))
	for i, r := range releases {
		r.IssueCount = 0
		for _, issue := range issues {
			if belongsTo(issue, r) {
				r.IssueCount++
			}
		}
		result[i] = r
	}
	return result
}

func belongsTo(issue models.Issue, release models.Release) bool {
	for _, label := range issue.Labels {
		if !strings.Contains(strings.ToLower(label), "release") {
			continue
		}
		_, suffix, ok := strings.Cut(label, "-")
		if ok && suffix != "" && strings.Contains(release.TagName, suffix) {
			return true
		}
	}
	return issue.Milestone != "" && strings.Contains(release.Name, issue.Milestone)
}
