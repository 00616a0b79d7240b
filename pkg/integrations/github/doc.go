// Package github reads python-build-standalone releases from the GitHub API.
//
// # Overview
//
// [Client.Fetch] lists the newest releases of the configured repository
// (astral-sh/python-build-standalone by default), keeps the assets built
// for the client's target triple and returns them as a [catalog.Catalog].
// Release pages are requested concurrently.
//
//	client, err := github.NewClient(github.Options{Token: os.Getenv("GITHUB_TOKEN")})
//	if err != nil {
//	    return err
//	}
//	cat, err := client.Fetch(ctx, false)
//
// Releases created before 2022-02-26 are ignored; they predate the asset
// naming scheme understood by [version.ParseAssetName].
//
// # Downloads
//
// [Client.Download] streams an archive and verifies its SHA-256. The digest
// is taken from the asset's digest field, the asset's .sha256 sidecar, or
// the release's SHA256SUMS file, in that order.
//
// # Authentication
//
// A GitHub token is optional but recommended to avoid rate limits. Without
// a token, the client is limited to 60 requests/hour. Rate-limit responses
// surface as RATE_LIMITED errors rather than being retried.
//
// # Caching
//
// Catalogs are cached per repository and platform for the configured TTL.
// Pass refresh=true to bypass the cache.
//
// [catalog.Catalog]: github.com/matzehuels/lilyenv/pkg/catalog.Catalog
// [version.ParseAssetName]: github.com/matzehuels/lilyenv/pkg/version.ParseAssetName
package github
