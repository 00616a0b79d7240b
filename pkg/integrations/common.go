package integrations

import (
	"context"
	"errors"
	"net/http"
	"time"

	lerrors "github.com/matzehuels/lilyenv/pkg/errors"
)

const (
	// DefaultTimeout bounds every API request.
	DefaultTimeout = 30 * time.Second

	// DefaultDownloadTimeout bounds a whole archive transfer.
	DefaultDownloadTimeout = 10 * time.Minute

	userAgent = "lilyenv"
)

var (
	// ErrNotFound is returned when a release or asset doesn't exist.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// NewHTTPClient creates an HTTP client with the given overall request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// CodeOf classifies a transport error for the user-facing error taxonomy.
// Rate limits ([lerrors.RateLimitedError]) and timeouts get their own codes;
// everything else is a network failure.
func CodeOf(err error) lerrors.Code {
	var rl *lerrors.RateLimitedError
	var te interface{ Timeout() bool }
	switch {
	case errors.As(err, &rl):
		return lerrors.ErrCodeRateLimited
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &te) && te.Timeout():
		return lerrors.ErrCodeTimeout
	case errors.Is(err, ErrNotFound):
		return lerrors.ErrCodeNotFound
	default:
		return lerrors.ErrCodeNetwork
	}
}
