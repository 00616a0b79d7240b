package integrations

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/lilyenv/pkg/cache"
	lerrors "github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/httputil"
)

func newTestClient(t *testing.T, headers map[string]string) (*Client, *cache.FileCache) {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return NewClient(c, "test:", time.Hour, headers), c
}

func TestNewClient(t *testing.T) {
	headers := map[string]string{"Authorization": "Bearer token"}
	client, c := newTestClient(t, headers)

	if client.http == nil || client.download == nil {
		t.Fatal("NewClient() http clients are nil")
	}
	if client.cache != cache.Cache(c) {
		t.Error("NewClient() cache not set correctly")
	}
	if client.headers["Authorization"] != "Bearer token" {
		t.Error("NewClient() headers not set correctly")
	}
	if client.http.Timeout != DefaultTimeout {
		t.Errorf("api timeout = %v, want %v", client.http.Timeout, DefaultTimeout)
	}
	if client.download.Timeout != DefaultDownloadTimeout {
		t.Errorf("download timeout = %v, want %v", client.download.Timeout, DefaultDownloadTimeout)
	}
}

func TestNewClientNilCache(t *testing.T) {
	client := NewClient(nil, "test:", time.Hour, nil)
	if client.cache == nil {
		t.Fatal("NewClient(nil) should fall back to a disabled cache")
	}
}

func TestSetTimeouts(t *testing.T) {
	client, _ := newTestClient(t, nil)

	client.SetTimeouts(5*time.Second, 0)
	if client.http.Timeout != 5*time.Second {
		t.Errorf("api timeout = %v, want 5s", client.http.Timeout)
	}
	if client.download.Timeout != DefaultDownloadTimeout {
		t.Errorf("download timeout changed to %v", client.download.Timeout)
	}
}

func TestClientGet(t *testing.T) {
	type response struct {
		Message string `json:"message"`
	}

	var agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		json.NewEncoder(w).Encode(response{Message: "hello"})
	}))
	defer server.Close()

	client, _ := newTestClient(t, nil)

	var resp response
	if err := client.Get(context.Background(), server.URL, &resp); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Message != "hello" {
		t.Errorf("Get() message = %q, want %q", resp.Message, "hello")
	}
	if agent != userAgent {
		t.Errorf("User-Agent = %q, want %q", agent, userAgent)
	}
}

func TestClientGetWithHeadersOverridesDefaults(t *testing.T) {
	var got, def string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Override")
		def = r.Header.Get("X-Default")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, map[string]string{"X-Override": "default", "X-Default": "kept"})

	var resp map[string]string
	err := client.GetWithHeaders(context.Background(), server.URL, map[string]string{"X-Override": "overridden"}, &resp)
	if err != nil {
		t.Fatalf("GetWithHeaders() error: %v", err)
	}
	if got != "overridden" {
		t.Errorf("X-Override = %q, want %q", got, "overridden")
	}
	if def != "kept" {
		t.Errorf("X-Default = %q, want %q", def, "kept")
	}
}

func TestClientGetText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text response"))
	}))
	defer server.Close()

	client, _ := newTestClient(t, nil)

	text, err := client.GetText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetText() error: %v", err)
	}
	if text != "plain text response" {
		t.Errorf("GetText() = %q, want %q", text, "plain text response")
	}
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		retryable bool
	}{
		{"not found", http.StatusNotFound, ErrNotFound, false},
		{"server error", http.StatusBadGateway, ErrNetwork, true},
		{"bad request", http.StatusBadRequest, ErrNetwork, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client, _ := newTestClient(t, nil)

			var v any
			err := client.Get(context.Background(), server.URL, &v)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Get() error = %v, want %v", err, tt.want)
			}
			if got := errors.As(err, new(*httputil.RetryableError)); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestClientRateLimit(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    string
	}{
		{"retry after", http.StatusTooManyRequests, map[string]string{"Retry-After": "42"}, "rate limited: retry after 42 seconds"},
		{"exhausted quota", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, "rate limited: set a GitHub token to raise the limit"},
		{"bare", http.StatusForbidden, nil, "rate limited: try again later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client, _ := newTestClient(t, nil)

			var v any
			err := client.Get(context.Background(), server.URL, &v)
			var rl *lerrors.RateLimitedError
			if !errors.As(err, &rl) {
				t.Fatalf("Get() error = %v, want *RateLimitedError", err)
			}
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
			if CodeOf(err) != lerrors.ErrCodeRateLimited {
				t.Errorf("CodeOf() = %v", CodeOf(err))
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want lerrors.Code
	}{
		{"not found", ErrNotFound, lerrors.ErrCodeNotFound},
		{"deadline", context.DeadlineExceeded, lerrors.ErrCodeTimeout},
		{"wrapped deadline", &httputil.RetryableError{Err: fmt.Errorf("%w: %w", ErrNetwork, context.DeadlineExceeded)}, lerrors.ErrCodeTimeout},
		{"network", ErrNetwork, lerrors.ErrCodeNetwork},
		{"rate limited", &lerrors.RateLimitedError{RetryAfter: 1}, lerrors.ErrCodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCachedUsesCache(t *testing.T) {
	client, _ := newTestClient(t, nil)
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(dst *[]string) func() error {
		return func() error {
			calls.Add(1)
			*dst = []string{"3.12.2", "3.11.8"}
			return nil
		}
	}

	var first []string
	if err := client.Cached(ctx, "builds", false, &first, fetch(&first)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}

	var second []string
	if err := client.Cached(ctx, "builds", false, &second, fetch(&second)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, want 1", calls.Load())
	}
	if len(second) != 2 || second[0] != "3.12.2" {
		t.Errorf("cached value = %v", second)
	}

	var third []string
	if err := client.Cached(ctx, "builds", true, &third, fetch(&third)); err != nil {
		t.Fatalf("Cached(refresh) error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("refresh should bypass cache, fetch called %d times", calls.Load())
	}
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	client, c := newTestClient(t, nil)
	ctx := context.Background()

	var v []string
	err := client.Cached(ctx, "broken", false, &v, func() error { return ErrNotFound })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cached() error = %v, want ErrNotFound", err)
	}
	if _, ok, _ := c.Get(ctx, "test:broken"); ok {
		t.Error("failed fetch should not be cached")
	}
}

func TestCachedRetryPolicy(t *testing.T) {
	client, _ := newTestClient(t, nil)
	client.SetRetry(httputil.Policy{Attempts: 4, Delay: time.Millisecond})
	client.SetRetry(httputil.Policy{}) // ignored
	ctx := context.Background()

	var calls atomic.Int32
	var v []string
	err := client.Cached(ctx, "flaky", false, &v, func() error {
		calls.Add(1)
		return &httputil.RetryableError{Err: ErrNetwork}
	})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Cached() error = %v, want ErrNetwork", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("fetch calls = %d, want 4", got)
	}

	calls.Store(0)
	err = client.Cached(ctx, "limited", false, &v, func() error {
		calls.Add(1)
		return &httputil.RetryableError{Err: &lerrors.RateLimitedError{RetryAfter: 30}}
	})
	if err == nil || calls.Load() != 1 {
		t.Errorf("rate limited fetch: err=%v calls=%d, want one call", err, calls.Load())
	}
}

func TestDownloadVerified(t *testing.T) {
	payload := []byte("python archive bytes")
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	client, _ := newTestClient(t, nil)
	ctx := context.Background()

	t.Run("match", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := client.DownloadVerified(ctx, server.URL, digest, &buf)
		if err != nil {
			t.Fatalf("DownloadVerified() error: %v", err)
		}
		if n != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
			t.Errorf("downloaded %d bytes %q", n, buf.String())
		}
	})

	t.Run("uppercase digest", func(t *testing.T) {
		var buf bytes.Buffer
		if _, err := client.DownloadVerified(ctx, server.URL, " "+bytesUpper(digest)+"\n", &buf); err != nil {
			t.Fatalf("DownloadVerified() error: %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		var buf bytes.Buffer
		bad := hex.EncodeToString(make([]byte, sha256.Size))
		_, err := client.DownloadVerified(ctx, server.URL, bad, &buf)
		if !lerrors.Is(err, lerrors.ErrCodeChecksumMismatch) {
			t.Fatalf("DownloadVerified() error = %v, want CHECKSUM_MISMATCH", err)
		}
	})

	t.Run("missing digest", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := client.DownloadVerified(ctx, server.URL, "", &buf)
		if !lerrors.Is(err, lerrors.ErrCodeDownloadFailed) {
			t.Fatalf("DownloadVerified() error = %v, want DOWNLOAD_FAILED", err)
		}
		if buf.Len() != 0 {
			t.Error("nothing should be written without a digest")
		}
	})
}

func TestParseChecksum(t *testing.T) {
	const sums = "aaaa  cpython-3.12.2+20240224-x86_64-unknown-linux-gnu-install_only.tar.gz\n" +
		"bbbb *cpython-3.11.8+20240224-x86_64-unknown-linux-gnu-install_only.tar.gz\n"

	tests := []struct {
		name string
		text string
		file string
		want string
	}{
		{"bare digest", "cccc\n", "anything", "cccc"},
		{"single line with name", "dddd  a.tar.gz", "a.tar.gz", "dddd"},
		{"listing", sums, "cpython-3.12.2+20240224-x86_64-unknown-linux-gnu-install_only.tar.gz", "aaaa"},
		{"binary marker", sums, "cpython-3.11.8+20240224-x86_64-unknown-linux-gnu-install_only.tar.gz", "bbbb"},
		{"missing", sums, "cpython-3.10.0+20240224-x86_64-unknown-linux-gnu-install_only.tar.gz", ""},
		{"empty", "", "a.tar.gz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseChecksum(tt.text, tt.file); got != tt.want {
				t.Errorf("ParseChecksum() = %q, want %q", got, tt.want)
			}
		})
	}
}

func bytesUpper(s string) string {
	return string(bytes.ToUpper([]byte(s)))
}
