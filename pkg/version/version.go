package version

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// Kind is a release channel kind. The zero value is Stable.
type Kind int

const (
	Stable Kind = iota
	Alpha
	Beta
	RC
)

// rank orders channel kinds by precedence; stable sorts above everything.
func (k Kind) rank() int {
	switch k {
	case Alpha:
		return 1
	case Beta:
		return 2
	case RC:
		return 3
	default:
		return 4
	}
}

// String returns the version-text spelling of the kind ("" for stable).
func (k Kind) String() string {
	switch k {
	case Alpha:
		return "a"
	case Beta:
		return "b"
	case RC:
		return "rc"
	default:
		return ""
	}
}

// Channel is the release channel of a build: stable, or a numbered
// pre-release such as rc2.
type Channel struct {
	Kind Kind
	N    int
}

// String returns "" for stable and e.g. "rc2" otherwise.
func (c Channel) String() string {
	if c.Kind == Stable {
		return ""
	}
	return c.Kind.String() + strconv.Itoa(c.N)
}

// IsStable reports whether c is the stable channel.
func (c Channel) IsStable() bool { return c.Kind == Stable }

// compareChannel orders channels: stable > rc(n) > rc(m) for n > m > beta > alpha.
func compareChannel(a, b Channel) int {
	if d := a.Kind.rank() - b.Kind.rank(); d != 0 {
		return sign(d)
	}
	return sign(a.N - b.N)
}

// Variant is a set of build flags.
type Variant uint8

const (
	Normal       Variant = 0
	Freethreaded Variant = 1 << 0
	Debug        Variant = 1 << 1
)

// IsDebug reports whether the debug flag is set.
func (v Variant) IsDebug() bool { return v&Debug != 0 }

// IsFreethreaded reports whether the freethreaded flag is set.
func (v Variant) IsFreethreaded() bool { return v&Freethreaded != 0 }

// String returns the suffix used in build names: "", "t", "-debug" or "t-debug".
func (v Variant) String() string {
	s := ""
	if v.IsFreethreaded() {
		s += "t"
	}
	if v.IsDebug() {
		s += "-debug"
	}
	return s
}

// Label returns a human-readable variant name.
func (v Variant) Label() string {
	switch v {
	case Normal:
		return "normal"
	case Freethreaded:
		return "freethreaded"
	case Debug:
		return "debug"
	default:
		return "freethreaded+debug"
	}
}

// BuildID identifies one concrete interpreter build.
type BuildID struct {
	Major   int
	Minor   int
	Patch   int
	Channel Channel
	Variant Variant
}

// String returns the canonical build name, e.g. "3.13.0rc2t-debug".
// It doubles as the build's directory name in the store.
func (b BuildID) String() string {
	return fmt.Sprintf("%d.%d.%d%s%s", b.Major, b.Minor, b.Patch, b.Channel, b.Variant)
}

// Series returns "MAJOR.MINOR".
func (b BuildID) Series() string {
	return fmt.Sprintf("%d.%d", b.Major, b.Minor)
}

// IsZero reports whether b is the zero BuildID.
func (b BuildID) IsZero() bool { return b == BuildID{} }

// MarshalText encodes b as its canonical name, so BuildIDs can be used as
// JSON object keys and values.
func (b BuildID) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText parses a canonical build name.
func (b *BuildID) UnmarshalText(text []byte) error {
	id, err := ParseBuildID(string(text))
	if err != nil {
		return err
	}
	*b = id
	return nil
}

var buildIDRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:(a|b|rc)(\d+))?(t)?(-debug)?$`)

// ParseBuildID parses a canonical build name as produced by [BuildID.String].
func ParseBuildID(s string) (BuildID, error) {
	m := buildIDRegex.FindStringSubmatch(s)
	if m == nil {
		return BuildID{}, errors.New(errors.ErrCodeInvalidVersion, "invalid build name %q", s)
	}
	var id BuildID
	var err error
	if id.Major, err = atoi(m[1]); err != nil {
		return BuildID{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid build name %q", s)
	}
	if id.Minor, err = atoi(m[2]); err != nil {
		return BuildID{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid build name %q", s)
	}
	if id.Patch, err = atoi(m[3]); err != nil {
		return BuildID{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid build name %q", s)
	}
	if m[4] != "" {
		id.Channel.Kind = parseKind(m[4])
		if id.Channel.N, err = atoi(m[5]); err != nil {
			return BuildID{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid build name %q", s)
		}
	}
	if m[6] != "" {
		id.Variant |= Freethreaded
	}
	if m[7] != "" {
		id.Variant |= Debug
	}
	return id, nil
}

// Compare orders builds by major, minor, patch and then channel.
// It returns -1, 0 or +1. The variant is ignored.
func Compare(a, b BuildID) int {
	if a.Major != b.Major {
		return sign(a.Major - b.Major)
	}
	if a.Minor != b.Minor {
		return sign(a.Minor - b.Minor)
	}
	if a.Patch != b.Patch {
		return sign(a.Patch - b.Patch)
	}
	return compareChannel(a.Channel, b.Channel)
}

// Less orders builds newest first, breaking Compare ties by variant so
// that sorting is deterministic.
func Less(a, b BuildID) bool {
	if c := Compare(a, b); c != 0 {
		return c > 0
	}
	return a.Variant < b.Variant
}

func parseKind(s string) Kind {
	switch s {
	case "a":
		return Alpha
	case "b":
		return Beta
	case "rc":
		return RC
	default:
		return Stable
	}
}

// atoi parses a version component, bounding it to keep build names sane.
func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n > 9999 {
		return 0, fmt.Errorf("component %s out of range", s)
	}
	return n, nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
