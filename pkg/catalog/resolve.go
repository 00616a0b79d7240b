package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/matzehuels/lilyenv/pkg/errors"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// NotFoundError reports that no build matched a spec.
type NotFoundError struct {
	Spec    version.Spec
	Nearest []string // nearest major.minor series with the same variant
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no build matches %s", e.Spec)
	if len(e.Nearest) > 0 {
		msg += fmt.Sprintf(" (nearest available: %s)", strings.Join(e.Nearest, ", "))
	}
	return msg
}

// AmbiguousError reports that a partial spec matched several builds where
// exactly one was required.
type AmbiguousError struct {
	Spec       version.Spec
	Candidates []version.BuildID
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.String()
	}
	return fmt.Sprintf("%s is ambiguous, candidates: %s", e.Spec, strings.Join(names, ", "))
}

// Resolve selects the build matching spec among ids.
//
// With latest=true the newest match wins. With latest=false a partial spec
// that matches more than one build fails with an [AmbiguousError]. Errors
// carry the NOT_FOUND or AMBIGUOUS code and wrap the typed error.
func Resolve(ids []version.BuildID, spec version.Spec, latest bool) (version.BuildID, error) {
	var matches []version.BuildID
	for _, id := range ids {
		if version.Matches(spec, id) {
			matches = append(matches, id)
		}
	}

	if len(matches) == 0 {
		nf := &NotFoundError{Spec: spec, Nearest: Nearest(ids, spec, 3)}
		return version.BuildID{}, errors.Wrap(errors.ErrCodeNotFound, nf, "resolve %s", spec)
	}

	sort.Slice(matches, func(i, j int) bool { return version.Less(matches[i], matches[j]) })
	if !latest && len(matches) > 1 {
		amb := &AmbiguousError{Spec: spec, Candidates: matches}
		return version.BuildID{}, errors.Wrap(errors.ErrCodeAmbiguous, amb, "resolve %s", spec)
	}
	return matches[0], nil
}

// Nearest returns up to n major.minor series among ids with the variant
// of spec, closest to the requested series first.
func Nearest(ids []version.BuildID, spec version.Spec, n int) []string {
	type series struct{ major, minor int }
	seen := map[series]bool{}
	var all []series
	for _, id := range ids {
		if id.Variant != spec.Variant {
			continue
		}
		s := series{id.Major, id.Minor}
		if !seen[s] {
			seen[s] = true
			all = append(all, s)
		}
	}

	target := spec.Minor
	distance := func(s series) int {
		d := 1000 * abs(s.major-spec.Major)
		if target == version.Any {
			// Prefer the newest series of the requested major.
			return d + 999 - min(s.minor, 999)
		}
		return d + abs(s.minor-target)
	}
	sort.Slice(all, func(i, j int) bool {
		di, dj := distance(all[i]), distance(all[j])
		if di != dj {
			return di < dj
		}
		if all[i].major != all[j].major {
			return all[i].major > all[j].major
		}
		return all[i].minor > all[j].minor
	})

	out := make([]string, 0, n)
	for _, s := range all {
		if len(out) == n {
			break
		}
		out = append(out, fmt.Sprintf("%d.%d", s.major, s.minor))
	}
	return out
}

// UpgradeSpec returns the spec used to find the newest bugfix release of
// id's series: same major, minor and variant, any patch, stable only.
func UpgradeSpec(id version.BuildID) version.Spec {
	return version.Spec{
		Major:   id.Major,
		Minor:   id.Minor,
		Patch:   version.Any,
		PreN:    version.Any,
		Variant: id.Variant,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
