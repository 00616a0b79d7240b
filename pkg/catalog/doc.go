// Package catalog resolves version specifiers against the set of
// downloadable interpreter builds.
//
// # Overview
//
// A [Catalog] is one snapshot of python-build-standalone assets for the
// current platform, reduced to at most one [Entry] per build. Entries are
// produced by the GitHub integration and cached between invocations.
//
// # Resolution
//
// [Resolve] filters a set of builds with [version.Matches] and picks the
// newest under [version.Compare]. With latest=false, more than one match
// is an [AmbiguousError]; this mode is used against local state, where
// guessing which virtualenv the user meant would be destructive.
//
//	entry, err := cat.Resolve(version.MustParse("3.12"))
//	// entry.Build == 3.12.2 given {3.12.0rc1, 3.12.1, 3.12.2}
//
// A failed match returns a [NotFoundError] listing the nearest available
// major.minor series. They are shown to the user, never substituted.
//
// # Listing
//
// [Catalog.Groups] returns entries grouped by major.minor, newest first,
// for `lilyenv download` without arguments.
package catalog
