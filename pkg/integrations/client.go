package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/matzehuels/lilyenv/pkg/cache"
	lerrors "github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/httputil"
	"github.com/matzehuels/lilyenv/pkg/observability"
)

// Client provides shared HTTP functionality for the release API clients.
// It handles caching, retry logic, timeouts and common request headers.
type Client struct {
	http     *http.Client
	download *http.Client
	cache    cache.Cache
	prefix   string
	ttl      time.Duration
	headers  map[string]string
	retry    httputil.Policy
}

// NewClient creates a Client with the given cache, key prefix, cache TTL and
// default headers. Headers are applied to all requests made through this
// client. Pass nil for headers if no default headers are needed.
func NewClient(c cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewDisabled("no cache configured")
	}
	return &Client{
		http:     NewHTTPClient(DefaultTimeout),
		download: NewHTTPClient(DefaultDownloadTimeout),
		cache:    c,
		prefix:   prefix,
		ttl:      ttl,
		headers:  headers,
		retry:    httputil.DefaultPolicy,
	}
}

// SetRetry overrides the retry policy of cached API requests. A policy
// without attempts keeps the current one.
func (c *Client) SetRetry(p httputil.Policy) {
	if p.Attempts > 0 {
		c.retry = p
	}
}

// SetTimeouts overrides the API request and archive download timeouts.
// Zero values keep the current setting.
func (c *Client) SetTimeouts(api, download time.Duration) {
	if api > 0 {
		c.http.Timeout = api
	}
	if download > 0 {
		c.download.Timeout = download
	}
}

// SetHTTPClient replaces the transport used for API and download requests.
func (c *Client) SetHTTPClient(h *http.Client) {
	api := *h
	dl := *h
	if api.Timeout == 0 {
		api.Timeout = c.http.Timeout
	}
	if dl.Timeout == 0 {
		dl.Timeout = c.download.Timeout
	}
	c.http, c.download = &api, &dl
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
// Transient fetch failures are retried under the client's retry policy.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.prefix + key
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if json.Unmarshal(data, v) == nil {
				observability.Cache().OnCacheHit(ctx, c.prefix)
				return nil
			}
		}
	}
	observability.Cache().OnCacheMiss(ctx, c.prefix)

	if err := c.retry.Do(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, key, data, c.ttl) == nil {
			observability.Cache().OnCacheSet(ctx, c.prefix, len(data))
		}
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
// It uses the client's default headers.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	resp, err := c.doRequest(ctx, c.http, url, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &httputil.RetryableError{Err: fmt.Errorf("%w: decode %s: %v", ErrNetwork, url, err)}
	}
	return nil
}

// GetText performs an HTTP GET request and returns the response body as a string.
// Used for plain-text checksum files.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	resp, err := c.doRequest(ctx, c.http, url, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return string(data), err
}

// Stream performs a GET with the download timeout and copies the body to w.
// It returns the number of bytes written. Stream never retries.
func (c *Client) Stream(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := c.doRequest(ctx, c.download, url, map[string]string{"Accept": "application/octet-stream"})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: read %s: %w", ErrNetwork, url, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%w: short read from %s: got %d of %d bytes", ErrNetwork, url, n, resp.ContentLength)
	}
	return n, nil
}

func (c *Client) doRequest(ctx context.Context, client *http.Client, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %w", ErrNetwork, err)}
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden, code == http.StatusTooManyRequests:
		return rateLimitError(resp)
	case code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

func rateLimitError(resp *http.Response) error {
	err := &lerrors.RateLimitedError{Message: "try again later"}
	if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
		err.RetryAfter = secs
	} else if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		err.Message = "set a GitHub token to raise the limit"
	}
	return err
}
