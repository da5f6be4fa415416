package issuetype

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesm/repo-pulse/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   models.IssueType
	}{
		{"kind prefix", []string{"kind/bug", "priority/p1"}, models.IssueBug},
		{"no type label", []string{"good-first-issue"}, models.IssueOther},
		{"no labels", nil, models.IssueOther},
		{"case insensitive", []string{"Type: Feature Request"}, models.IssueEnhancement},
		{"docs", []string{"area/docs"}, models.IssueDocumentation},
		{"help wanted", []string{"help wanted"}, models.IssueQuestion},
		{"bug beats feature regardless of label order", []string{"feature", "hotfix"}, models.IssueBug},
		{"enhancement beats question", []string{"question", "improvement"}, models.IssueEnhancement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.labels, true))
		})
	}
}

func TestClassifyWithoutTypeLabels(t *testing.T) {
	assert.Equal(t, models.IssueOther, Classify([]string{"bug"}, false))
}

func TestTypeLabelsUsesBroaderSet(t *testing.T) {
	labels := []models.Label{
		{Name: "bug"},
		{Name: "security"},
		{Name: "tech: refactor"},
		{Name: "needs-testing"},
		{Name: "good-first-issue"},
		{Name: "priority/p1"},
	}

	got := TypeLabels(labels)
	names := make([]string, len(got))
	for i, l := range got {
		names[i] = l.Name
	}
	assert.Equal(t, []string{"bug", "security", "tech: refactor", "needs-testing"}, names)

	// security is only a reporting keyword
	assert.Equal(t, models.IssueOther, Classify([]string{"security"}, true))
}

func TestVocabulary(t *testing.T) {
	assert.Equal(t, []models.IssueType{
		models.IssueBug, models.IssueEnhancement, models.IssueDocumentation, models.IssueQuestion, models.IssueOther,
	}, Vocabulary())
}
