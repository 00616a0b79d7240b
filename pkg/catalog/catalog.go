package catalog

import (
	"sort"
	"time"

	"github.com/matzehuels/lilyenv/pkg/version"
)

// Entry is one downloadable interpreter build.
type Entry struct {
	Build       version.BuildID `json:"build"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	ReleaseTag  string          `json:"release_tag"`
	Flavor      string          `json:"flavor,omitempty"`
	Format      version.Format  `json:"format"`
	Size        int64           `json:"size,omitempty"`
	SHA256      string          `json:"sha256,omitempty"`       // expected archive digest, hex
	ChecksumURL string          `json:"checksum_url,omitempty"` // fallback source for SHA256
}

// Catalog is a snapshot of the builds available for one platform.
type Catalog struct {
	Platform  string    `json:"platform"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Entries   []Entry   `json:"entries"` // one per build, newest first
}

// New builds a catalog from candidate entries, keeping the preferred entry
// for each build (see [Prefer]).
func New(platform, source string, fetchedAt time.Time, candidates []Entry) *Catalog {
	best := make(map[version.BuildID]Entry, len(candidates))
	for _, e := range candidates {
		if cur, ok := best[e.Build]; !ok || Prefer(e, cur) {
			best[e.Build] = e
		}
	}

	entries := make([]Entry, 0, len(best))
	for _, e := range best {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return version.Less(entries[i].Build, entries[j].Build)
	})

	return &Catalog{
		Platform:  platform,
		Source:    source,
		FetchedAt: fetchedAt,
		Entries:   entries,
	}
}

// Prefer reports whether a should replace b as the entry for their build.
// Newer release tags win; within a release, install_only archives beat
// full ones, and better optimised flavours beat worse ones.
func Prefer(a, b Entry) bool {
	if a.ReleaseTag != b.ReleaseTag {
		// Tags are YYYYMMDD dates.
		return a.ReleaseTag > b.ReleaseTag
	}
	if a.Format != b.Format {
		return a.Format < b.Format
	}
	ra := version.Asset{Flavor: a.Flavor}.Optimization()
	rb := version.Asset{Flavor: b.Flavor}.Optimization()
	if ra != rb {
		return ra > rb
	}
	return a.Name < b.Name
}

// Builds returns the build IDs in the catalog, newest first.
func (c *Catalog) Builds() []version.BuildID {
	ids := make([]version.BuildID, len(c.Entries))
	for i, e := range c.Entries {
		ids[i] = e.Build
	}
	return ids
}

// Lookup returns the entry for an exact build.
func (c *Catalog) Lookup(id version.BuildID) (Entry, bool) {
	for _, e := range c.Entries {
		if e.Build == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve returns the newest entry matching spec.
func (c *Catalog) Resolve(spec version.Spec) (Entry, error) {
	id, err := Resolve(c.Builds(), spec, true)
	if err != nil {
		return Entry{}, err
	}
	e, _ := c.Lookup(id)
	return e, nil
}

// Filter returns the entries matching pred, preserving order.
func (c *Catalog) Filter(pred func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range c.Entries {
		if pred == nil || pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// Group is the set of entries sharing one major.minor series.
type Group struct {
	Series  string  `json:"series"`
	Entries []Entry `json:"entries"`
}

// Groups returns the entries accepted by pred grouped by major.minor,
// newest series first and newest build first within each series.
func (c *Catalog) Groups(pred func(Entry) bool) []Group {
	var groups []Group
	index := map[string]int{}
	for _, e := range c.Filter(pred) {
		s := e.Build.Series()
		i, ok := index[s]
		if !ok {
			i = len(groups)
			index[s] = i
			groups = append(groups, Group{Series: s})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	// Entries are already newest first, so the groups are too.
	return groups
}
