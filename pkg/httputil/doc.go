// Package httputil provides the retry policy for release API requests.
//
// A [Policy] retries operations that fail with a [RetryableError]: network
// errors, 5xx responses and truncated bodies. The delay doubles after each
// failed attempt, up to MaxDelay:
//
//	p := httputil.Policy{Attempts: 3, Delay: time.Second}
//	err := p.Do(ctx, func() error {
//	    return fetchReleases(ctx)
//	})
//
// Rate limits and checksum mismatches are final. Archive downloads are not
// retried at all, since a retry would re-transfer tens of megabytes.
package httputil
