package state

import (
	"regexp"
	"strings"

	"github.com/wesm/repo-pulse/internal/models"
)

var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,37}[A-Za-z0-9])?$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// ParseRepositoryString parses a repository string in the format "owner/name"
func ParseRepositoryString(repoStr string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repoStr), "/")
	if !ok || strings.Contains(name, "/") {
		return "", "", &models.ValidationError{
			Field:   "repository",
			Message: "expected 'owner/name', got '" + repoStr + "'",
		}
	}
	if err := ValidateRepository(owner, name); err != nil {
		return "", "", err
	}
	return owner, name, nil
}

// ValidateRepository checks owner and name against GitHub's naming rules
func ValidateRepository(owner, name string) error {
	if !ownerPattern.MatchString(owner) {
		return &models.ValidationError{Field: "repository", Message: "invalid owner '" + owner + "'"}
	}
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return &models.ValidationError{Field: "repository", Message: "invalid name '" + name + "'"}
	}
	return nil
}
