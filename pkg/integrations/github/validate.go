package github

import (
	"regexp"
	"strings"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

var (
	// GitHub usernames/orgs: 1-39 alphanumeric or hyphen, not starting with hyphen
	validOwner = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)
	// GitHub repo names: 1-100 alphanumeric, hyphen, underscore, or dot
	validRepo = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
)

// ValidateOwner validates a GitHub username or organization name.
func ValidateOwner(owner string) error {
	if owner == "" {
		return errors.New(errors.ErrCodeInvalidInput, "release owner is required")
	}
	if !validOwner.MatchString(owner) {
		return errors.New(errors.ErrCodeInvalidInput, "invalid release owner %q", owner)
	}
	return nil
}

// ValidateRepo validates a GitHub repository name.
func ValidateRepo(repo string) error {
	if repo == "" {
		return errors.New(errors.ErrCodeInvalidInput, "release repository is required")
	}
	if !validRepo.MatchString(repo) {
		return errors.New(errors.ErrCodeInvalidInput, "invalid release repository %q", repo)
	}
	return nil
}

// ParseRepoRef parses an "owner/repo" string and validates both parts.
func ParseRepoRef(ref string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(ref, "/")
	if !ok {
		return "", "", errors.New(errors.ErrCodeInvalidInput, "invalid repository %q: use owner/repo", ref)
	}
	if err := ValidateOwner(owner); err != nil {
		return "", "", err
	}
	if err := ValidateRepo(repo); err != nil {
		return "", "", err
	}
	return owner, repo, nil
}
