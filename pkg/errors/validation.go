package errors

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// ValidateProjectName validates a project name for safety and correctness.
// Project names become directory names under the store, so anything that
// could escape that directory is rejected.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - No leading dot (hidden directories are reserved for the store)
//   - Maximum length of 128 characters
func ValidateProjectName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidProject, "project name cannot be empty")
	}

	if len(name) > 128 {
		return New(ErrCodeInvalidProject, "project name too long (max 128 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidProject, "project name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidProject, "project name contains invalid characters: %q", pattern)
		}
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidProject, "project name cannot start with a dot")
	}

	return nil
}

// ValidateDirectory validates a project default directory.
// The directory must be absolute and free of control characters; whether
// it exists is not checked, since it may be created later.
func ValidateDirectory(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "directory cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "directory too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "directory contains invalid characters")
		}
	}

	if !filepath.IsAbs(path) {
		return New(ErrCodeInvalidPath, "directory must be absolute: %q", path)
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}

// shellNameRegex matches a shell given either as a bare program name or a path.
var shellNameRegex = regexp.MustCompile(`^[A-Za-z0-9._/+-]+$`)

// ValidateShell validates a shell program name or path.
func ValidateShell(shell string) error {
	if shell == "" {
		return New(ErrCodeInvalidInput, "shell cannot be empty")
	}

	if !shellNameRegex.MatchString(shell) {
		return New(ErrCodeInvalidInput, "invalid shell: %q", shell)
	}

	return nil
}
