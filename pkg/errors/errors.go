// Package errors provides structured error types for lilyenv.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the store, registry and CLI
//   - Machine-readable error codes mapped to process exit codes
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - NOT_FOUND / AMBIGUOUS: Resolution failures
//   - DOWNLOAD_* / CHECKSUM_*: Interpreter acquisition failures
//   - LOCK_* / STATE_*: Store consistency failures
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidVersion, "invalid version %q", text)
//	if errors.Is(err, errors.ErrCodeInvalidVersion) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeDownloadFailed, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidVersion Code = "INVALID_VERSION"
	ErrCodeInvalidProject Code = "INVALID_PROJECT"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resolution errors
	ErrCodeNotFound  Code = "NOT_FOUND"
	ErrCodeAmbiguous Code = "AMBIGUOUS"

	// Acquisition errors
	ErrCodeDownloadFailed   Code = "DOWNLOAD_FAILED"
	ErrCodeChecksumMismatch Code = "CHECKSUM_MISMATCH"
	ErrCodeNetwork          Code = "NETWORK_ERROR"
	ErrCodeTimeout          Code = "TIMEOUT"
	ErrCodeRateLimited      Code = "RATE_LIMITED"

	// Virtualenv errors
	ErrCodeVenvCreationFailed Code = "VENV_CREATION_FAILED"

	// Store consistency errors
	ErrCodeLockContention       Code = "LOCK_CONTENTION"
	ErrCodeStateCorruption      Code = "STATE_CORRUPTION"
	ErrCodeDependentVirtualenvs Code = "DEPENDENT_VIRTUALENVS"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
// Codes of outer errors are checked first, so Wrap can re-classify a cause.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message (and the cause's user message)
// without the code prefix. For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// ExitCode maps an error to the process exit status.
// A nil error maps to 0; errors without a code map to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidVersion, ErrCodeInvalidProject, ErrCodeInvalidPath:
		return 2
	case ErrCodeNotFound, ErrCodeAmbiguous:
		return 3
	case ErrCodeDownloadFailed, ErrCodeChecksumMismatch, ErrCodeNetwork, ErrCodeTimeout, ErrCodeRateLimited:
		return 4
	case ErrCodeVenvCreationFailed:
		return 5
	case ErrCodeLockContention:
		return 6
	case ErrCodeStateCorruption:
		return 7
	case ErrCodeDependentVirtualenvs:
		return 8
	default:
		return 1
	}
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	if e.Message != "" {
		return "rate limited: " + e.Message
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
