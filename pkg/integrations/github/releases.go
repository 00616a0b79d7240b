package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/lilyenv/pkg/cache"
	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/integrations"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// Releases older than this use an asset naming scheme we don't parse.
var namingCutoff = time.Date(2022, 2, 26, 0, 0, 0, 0, time.UTC)

const sumsAsset = "SHA256SUMS"

// Fetch returns the catalog of builds available for the client's platform.
// If refresh is true, cached data is bypassed.
func (c *Client) Fetch(ctx context.Context, refresh bool) (*catalog.Catalog, error) {
	key := cache.Key("catalog", c.Source(), c.platform)

	var cat catalog.Catalog
	err := c.Cached(ctx, key, refresh, &cat, func() error {
		releases, err := c.fetchReleases(ctx)
		if err != nil {
			return err
		}
		var entries []catalog.Entry
		for _, rel := range releases {
			entries = append(entries, releaseEntries(rel, c.platform)...)
		}
		cat = *catalog.New(c.platform, c.Source(), c.now().UTC(), entries)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(integrations.CodeOf(err), err, "fetch releases of %s", c.Source())
	}
	return &cat, nil
}

// fetchReleases reads the configured number of release pages concurrently.
func (c *Client) fetchReleases(ctx context.Context) ([]releaseResponse, error) {
	pages := make([][]releaseResponse, c.pages)

	g, gctx := errgroup.WithContext(ctx)
	for i := range pages {
		g.Go(func() error {
			url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d&page=%d", c.baseURL, c.owner, c.repo, perPage, i+1)
			return c.Get(gctx, url, &pages[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []releaseResponse
	for _, page := range pages {
		all = append(all, page...)
	}
	return all, nil
}

// releaseEntries turns one release into catalog entries for platform.
// Assets that don't parse, target another platform or are checksum files
// are skipped.
func releaseEntries(rel releaseResponse, platform string) []catalog.Entry {
	if rel.Draft || !rel.CreatedAt.After(namingCutoff) {
		return nil
	}

	var sumsURL string
	sidecars := make(map[string]string)
	for _, a := range rel.Assets {
		switch {
		case a.Name == sumsAsset:
			sumsURL = a.URL
		case strings.HasSuffix(a.Name, ".sha256"):
			sidecars[strings.TrimSuffix(a.Name, ".sha256")] = a.URL
		}
	}

	var entries []catalog.Entry
	for _, a := range rel.Assets {
		if a.Name == sumsAsset || strings.HasSuffix(a.Name, ".sha256") || !strings.Contains(a.Name, platform) {
			continue
		}
		asset, err := version.ParseAssetName(a.Name)
		if err != nil || asset.Triple != platform {
			continue
		}

		e := catalog.Entry{
			Build:      asset.Build,
			Name:       a.Name,
			URL:        a.URL,
			ReleaseTag: asset.ReleaseTag,
			Flavor:     asset.Flavor,
			Format:     asset.Format,
			Size:       a.Size,
		}
		if digest, ok := strings.CutPrefix(a.Digest, "sha256:"); ok {
			e.SHA256 = digest
		}
		if u, ok := sidecars[a.Name]; ok {
			e.ChecksumURL = u
		} else {
			e.ChecksumURL = sumsURL
		}
		entries = append(entries, e)
	}
	return entries
}

type releaseResponse struct {
	TagName   string          `json:"tag_name"`
	CreatedAt time.Time       `json:"created_at"`
	Draft     bool            `json:"draft"`
	Assets    []assetResponse `json:"assets"`
}

type assetResponse struct {
	Name   string `json:"name"`
	URL    string `json:"browser_download_url"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}
