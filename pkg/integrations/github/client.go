package github

import (
	"time"

	"github.com/matzehuels/lilyenv/pkg/cache"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/httputil"
	"github.com/matzehuels/lilyenv/pkg/integrations"
)

const (
	DefaultOwner   = "astral-sh"
	DefaultRepo    = "python-build-standalone"
	DefaultBaseURL = "https://api.github.com"

	// DefaultPages is the number of release pages fetched per catalog refresh.
	DefaultPages = 1

	// DefaultCacheTTL is how long a fetched catalog is reused.
	DefaultCacheTTL = time.Hour

	perPage  = 30
	maxPages = 10
)

// Options configures a [Client]. Zero values select the defaults.
type Options struct {
	Owner    string
	Repo     string
	BaseURL  string
	Token    string
	Platform string // target triple; defaults to [Platform]
	Pages    int

	Cache    cache.Cache
	CacheTTL time.Duration

	Timeout         time.Duration
	DownloadTimeout time.Duration

	// Retry applies to catalog requests; the zero value keeps
	// httputil.DefaultPolicy.
	Retry httputil.Policy
}

// Client reads python-build-standalone releases from the GitHub API.
// It handles HTTP requests with caching, automatic retries, and optional authentication.
type Client struct {
	*integrations.Client
	baseURL  string
	owner    string
	repo     string
	platform string
	pages    int
	now      func() time.Time
}

// NewClient creates a releases client. Pass an empty token to use
// unauthenticated requests (lower rate limits).
func NewClient(opts Options) (*Client, error) {
	if opts.Owner == "" {
		opts.Owner = DefaultOwner
	}
	if opts.Repo == "" {
		opts.Repo = DefaultRepo
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Pages <= 0 {
		opts.Pages = DefaultPages
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Pages > maxPages {
		return nil, errors.New(errors.ErrCodeInvalidInput, "catalog pages must be at most %d", maxPages)
	}
	if err := ValidateOwner(opts.Owner); err != nil {
		return nil, err
	}
	if err := ValidateRepo(opts.Repo); err != nil {
		return nil, err
	}
	if err := errors.ValidateURL(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Platform == "" {
		p, err := Platform()
		if err != nil {
			return nil, err
		}
		opts.Platform = p
	}

	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if opts.Token != "" {
		headers["Authorization"] = "Bearer " + opts.Token
	}

	client := integrations.NewClient(opts.Cache, "github:", opts.CacheTTL, headers)
	client.SetTimeouts(opts.Timeout, opts.DownloadTimeout)
	client.SetRetry(opts.Retry)

	return &Client{
		Client:   client,
		baseURL:  opts.BaseURL,
		owner:    opts.Owner,
		repo:     opts.Repo,
		platform: opts.Platform,
		pages:    opts.Pages,
		now:      time.Now,
	}, nil
}

// Source names the release repository, e.g. "astral-sh/python-build-standalone".
func (c *Client) Source() string { return c.owner + "/" + c.repo }

// Platform returns the target triple the client selects assets for.
func (c *Client) Platform() string { return c.platform }
