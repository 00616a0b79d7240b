// Package integrations provides the HTTP plumbing for release sources.
//
// # Overview
//
// The [Client] type provides shared HTTP functionality used by the
// release clients:
//
//   - Bounded timeouts for API calls and, separately, for archive downloads
//   - Response caching through [cache.Cache] with a configurable TTL
//   - Retry with capped backoff for transient API failures (network errors,
//     5xx), configured by [httputil.Policy]; rate limits are not retried
//   - Status mapping: 404 to [ErrNotFound], 403/429 to a rate-limit error
//   - Checksum-verified archive streaming ([Client.DownloadVerified])
//
// The [github] subpackage builds a [catalog.Catalog] from
// python-build-standalone GitHub releases on top of this client.
//
// [github]: github.com/matzehuels/lilyenv/pkg/integrations/github
// [cache.Cache]: github.com/matzehuels/lilyenv/pkg/cache.Cache
// [catalog.Catalog]: github.com/matzehuels/lilyenv/pkg/catalog.Catalog
package integrations
