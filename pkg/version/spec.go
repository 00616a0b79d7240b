package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

// Any marks an unset numeric field in a [Spec].
const Any = -1

// Spec is a partial version as typed by the user. Unset fields are
// wildcards; an unset channel means stable only.
type Spec struct {
	Major   int
	Minor   int  // Any when omitted
	Patch   int  // Any when omitted
	Pre     Kind // Stable when no pre-release was given
	PreN    int  // Any for a bare hint such as "rc"
	Variant Variant
}

var specRegex = regexp.MustCompile(`^(\d+)(?:\.(\d+)(?:\.(\d+))?)?(?:(a|b|rc)(\d+)?)?(t)?$`)

// Parse parses a version specifier such as "3.12", "3.13t" or "3.13.0rc2".
func Parse(text string) (Spec, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Spec{}, errors.New(errors.ErrCodeInvalidVersion, "version cannot be empty")
	}
	if strings.HasPrefix(s, "pypy") {
		return Spec{}, errors.New(errors.ErrCodeUnsupported, "only CPython interpreters are supported: %q", text)
	}
	if strings.HasSuffix(s, "-debug") {
		return Spec{}, errors.New(errors.ErrCodeInvalidVersion,
			"invalid version %q: select debug builds with --debug (e.g. %s --debug)", text, strings.TrimSuffix(s, "-debug"))
	}

	m := specRegex.FindStringSubmatch(s)
	if m == nil {
		return Spec{}, errors.New(errors.ErrCodeInvalidVersion, "invalid version %q (expected MAJOR[.MINOR[.PATCH]][rcN][t])", text)
	}

	spec := Spec{Minor: Any, Patch: Any, PreN: Any}
	var err error
	if spec.Major, err = atoi(m[1]); err != nil {
		return Spec{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid version %q", text)
	}
	if m[2] != "" {
		if spec.Minor, err = atoi(m[2]); err != nil {
			return Spec{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid version %q", text)
		}
	}
	if m[3] != "" {
		if spec.Patch, err = atoi(m[3]); err != nil {
			return Spec{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid version %q", text)
		}
	}
	if m[4] != "" {
		if spec.Minor == Any {
			return Spec{}, errors.New(errors.ErrCodeInvalidVersion, "invalid version %q: a pre-release needs MAJOR.MINOR", text)
		}
		spec.Pre = parseKind(m[4])
		if m[5] != "" {
			if spec.PreN, err = atoi(m[5]); err != nil {
				return Spec{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid version %q", text)
			}
		}
	}
	if m[6] != "" {
		spec.Variant |= Freethreaded
	}
	return spec, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(text string) Spec {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// WithDebug returns a copy of s with the debug flag set or cleared.
func (s Spec) WithDebug(debug bool) Spec {
	if debug {
		s.Variant |= Debug
	} else {
		s.Variant &^= Debug
	}
	return s
}

// Concrete reports whether s names a single release (major, minor and
// patch all given, and any pre-release numbered).
func (s Spec) Concrete() bool {
	return s.Minor != Any && s.Patch != Any && (s.Pre == Stable || s.PreN != Any)
}

// HasPatch reports whether the patch component was given.
func (s Spec) HasPatch() bool { return s.Patch != Any }

// String renders s in the grammar Parse accepts, plus "-debug" for the
// debug variant.
func (s Spec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", s.Major)
	if s.Minor != Any {
		fmt.Fprintf(&b, ".%d", s.Minor)
	}
	if s.Patch != Any {
		fmt.Fprintf(&b, ".%d", s.Patch)
	}
	if s.Pre != Stable {
		b.WriteString(s.Pre.String())
		if s.PreN != Any {
			fmt.Fprintf(&b, "%d", s.PreN)
		}
	}
	b.WriteString(s.Variant.String())
	return b.String()
}

// SpecOf returns the exact spec for a build.
func SpecOf(id BuildID) Spec {
	s := Spec{Major: id.Major, Minor: id.Minor, Patch: id.Patch, PreN: Any, Variant: id.Variant}
	if !id.Channel.IsStable() {
		s.Pre = id.Channel.Kind
		s.PreN = id.Channel.N
	}
	return s
}

// Matches reports whether build id satisfies spec.
//
// Numeric fields must be equal where given and the variant must match
// exactly. A spec without a channel matches stable builds only; a bare
// hint such as "rc" matches that kind or anything of higher precedence;
// a numbered channel matches exactly.
func Matches(spec Spec, id BuildID) bool {
	if id.Major != spec.Major {
		return false
	}
	if spec.Minor != Any && id.Minor != spec.Minor {
		return false
	}
	if spec.Patch != Any && id.Patch != spec.Patch {
		return false
	}
	if id.Variant != spec.Variant {
		return false
	}
	switch {
	case spec.Pre == Stable:
		return id.Channel.IsStable()
	case spec.PreN == Any:
		return id.Channel.Kind.rank() >= spec.Pre.rank()
	default:
		return id.Channel == Channel{Kind: spec.Pre, N: spec.PreN}
	}
}
