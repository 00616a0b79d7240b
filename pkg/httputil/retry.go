package httputil

import (
	"context"
	"errors"
	"time"

	lerrors "github.com/matzehuels/lilyenv/pkg/errors"
)

// RetryableError marks a transient failure (network error, 5xx, truncated
// body) that [Policy.Do] may attempt again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Policy bounds the retries of one API call.
type Policy struct {
	Attempts int           // total tries, at least 1
	Delay    time.Duration // wait before the second try; doubles after each
	MaxDelay time.Duration // cap on a single wait; 0 means uncapped
}

// DefaultPolicy is used for catalog requests unless configured otherwise.
var DefaultPolicy = Policy{Attempts: 3, Delay: time.Second, MaxDelay: 10 * time.Second}

// Do runs fn until it succeeds, fails permanently or the attempts run out,
// and returns the last error.
//
// Only [RetryableError]s are retried, and never when they carry a rate
// limit or a checksum mismatch: neither improves by asking again. If the
// next wait would end past the context deadline, Do gives up at once with
// the last error instead of sleeping into a timeout.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Delay

	var lastErr error
	for i := range attempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) || i == attempts-1 {
			return lastErr
		}

		if p.MaxDelay > 0 {
			delay = min(delay, p.MaxDelay)
		}
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return lastErr
}

// Retry runs fn under a policy of attempts tries starting at delay.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return Policy{Attempts: attempts, Delay: delay}.Do(ctx, fn)
}

// Retryable reports whether err is a transient failure worth retrying.
func Retryable(err error) bool {
	if !errors.As(err, new(*RetryableError)) {
		return false
	}
	if errors.As(err, new(*lerrors.RateLimitedError)) {
		return false
	}
	return !lerrors.Is(err, lerrors.ErrCodeRateLimited) && !lerrors.Is(err, lerrors.ErrCodeChecksumMismatch)
}
