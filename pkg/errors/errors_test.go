package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidVersion, "invalid version %q", "3.x")

	if err.Code != ErrCodeInvalidVersion {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidVersion)
	}

	if err.Message != `invalid version "3.x"` {
		t.Errorf("Message = %v, want %v", err.Message, `invalid version "3.x"`)
	}

	expected := `INVALID_VERSION: invalid version "3.x"`
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrCodeDownloadFailed, cause, "failed to fetch")

	if err.Code != ErrCodeDownloadFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeDownloadFailed)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeNotFound, "test"),
			code:     ErrCodeNotFound,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeNotFound, "test"),
			code:     ErrCodeNetwork,
			expected: false,
		},
		{
			name:     "outer code",
			err:      Wrap(ErrCodeDownloadFailed, New(ErrCodeChecksumMismatch, "inner"), "outer"),
			code:     ErrCodeDownloadFailed,
			expected: true,
		},
		{
			name:     "inner code",
			err:      Wrap(ErrCodeDownloadFailed, New(ErrCodeChecksumMismatch, "inner"), "outer"),
			code:     ErrCodeChecksumMismatch,
			expected: true,
		},
		{
			name:     "fmt wrapped",
			err:      fmt.Errorf("install: %w", New(ErrCodeLockContention, "busy")),
			code:     ErrCodeLockContention,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeAmbiguous, "test"), ErrCodeAmbiguous},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"coded", New(ErrCodeNotFound, "no build matches 3.99"), "no build matches 3.99"},
		{"wrapped", Wrap(ErrCodeDownloadFailed, errors.New("eof"), "download 3.12.2"), "download 3.12.2: eof"},
		{"plain", errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("plain"), 1},
		{New(ErrCodeInvalidVersion, "x"), 2},
		{New(ErrCodeInvalidProject, "x"), 2},
		{New(ErrCodeNotFound, "x"), 3},
		{New(ErrCodeAmbiguous, "x"), 3},
		{New(ErrCodeChecksumMismatch, "x"), 4},
		{New(ErrCodeVenvCreationFailed, "x"), 5},
		{fmt.Errorf("wrapped: %w", New(ErrCodeLockContention, "x")), 6},
		{New(ErrCodeStateCorruption, "x"), 7},
		{New(ErrCodeDependentVirtualenvs, "x"), 8},
		{New(ErrCodeInternal, "x"), 1},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRateLimitedError(t *testing.T) {
	err := &RateLimitedError{RetryAfter: 30}
	if err.Error() != "rate limited: retry after 30 seconds" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Code() != ErrCodeRateLimited {
		t.Errorf("Code() = %v", err.Code())
	}
}
