package version

import (
	"regexp"
	"strings"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// Format is the packaging of a release asset.
type Format int

const (
	// InstallOnly archives (.tar.gz) unpack to python/.
	InstallOnly Format = iota
	// InstallOnlyStripped is InstallOnly without debug symbols.
	InstallOnlyStripped
	// Full archives (.tar.zst) unpack to python/install plus build metadata.
	Full
)

// String returns the asset-name spelling of the format.
func (f Format) String() string {
	switch f {
	case InstallOnly:
		return "install_only"
	case InstallOnlyStripped:
		return "install_only_stripped"
	default:
		return "full"
	}
}

// Compression returns the archive compression: "gz" or "zst".
func (f Format) Compression() string {
	if f == Full {
		return "zst"
	}
	return "gz"
}

// Asset is a parsed python-build-standalone release asset name.
type Asset struct {
	Name       string
	Build      BuildID
	ReleaseTag string // release date tag, e.g. "20240909"
	Triple     string // target triple, e.g. "x86_64-unknown-linux-gnu"
	Flavor     string // build options, e.g. "pgo+lto" or "freethreaded+debug"
	Format     Format
}

// Optimization ranks the asset's optimisation flavour: pgo+lto > pgo > lto > noopt.
func (a Asset) Optimization() int {
	pgo, lto := false, false
	for _, tok := range strings.Split(a.Flavor, "+") {
		switch tok {
		case "pgo":
			pgo = true
		case "lto":
			lto = true
		}
	}
	switch {
	case pgo && lto:
		return 3
	case pgo:
		return 2
	case lto:
		return 1
	default:
		return 0
	}
}

var assetRegex = regexp.MustCompile(`^cpython-(\d+\.\d+\.\d+(?:(?:a|b|rc)\d+)?)\+(\d+)-(.+)-(install_only|install_only_stripped|full)\.tar\.(gz|zst)$`)

// flavorTokens are the build-option words that can follow the triple.
var flavorTokens = map[string]bool{
	"debug":        true,
	"pgo":          true,
	"lto":          true,
	"noopt":        true,
	"freethreaded": true,
	"static":       true,
}

// ParseAssetName parses a release asset file name. Checksum files and
// names in older layouts are rejected with an INVALID_VERSION error.
func ParseAssetName(name string) (Asset, error) {
	m := assetRegex.FindStringSubmatch(name)
	if m == nil {
		return Asset{}, errors.New(errors.ErrCodeInvalidVersion, "unrecognised asset name %q", name)
	}

	id, err := ParseBuildID(m[1])
	if err != nil {
		return Asset{}, err
	}
	a := Asset{Name: name, ReleaseTag: m[2]}

	switch m[4] {
	case "install_only":
		a.Format = InstallOnly
	case "install_only_stripped":
		a.Format = InstallOnlyStripped
	default:
		a.Format = Full
	}
	if a.Format.Compression() != m[5] {
		return Asset{}, errors.New(errors.ErrCodeInvalidVersion, "unexpected compression in asset name %q", name)
	}

	a.Triple = m[3]
	if i := strings.LastIndex(m[3], "-"); i >= 0 && isFlavor(m[3][i+1:]) {
		a.Triple, a.Flavor = m[3][:i], m[3][i+1:]
	}
	for _, tok := range strings.Split(a.Flavor, "+") {
		switch tok {
		case "freethreaded":
			id.Variant |= Freethreaded
		case "debug":
			id.Variant |= Debug
		}
	}
	a.Build = id
	return a, nil
}

func isFlavor(s string) bool {
	if s == "" {
		return false
	}
	for _, tok := range strings.Split(s, "+") {
		if !flavorTokens[tok] {
			return false
		}
	}
	return true
}
