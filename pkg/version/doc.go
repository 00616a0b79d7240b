// Package version models CPython versions as lilyenv understands them.
//
// # Overview
//
// Two types carry version information:
//
//   - [Spec]: what the user typed, with wildcards for omitted fields
//     ("3", "3.12", "3.13t", "3.13.0rc2")
//   - [BuildID]: one concrete interpreter build (3.12.2, 3.13.0rc2,
//     3.13.1t-debug), also used as its directory name in the store
//
// [Matches] decides whether a build satisfies a spec and [Compare] orders
// builds so that "latest" is well defined. The variant (debug,
// freethreaded) never takes part in ordering; it must match exactly.
//
// # Grammar
//
//	MAJOR[.MINOR[.PATCH]][PRE][t]
//	PRE := (a|b|rc)[N]
//
// A trailing "t" selects the freethreaded variant. The debug variant is
// chosen with a flag ([Spec.WithDebug]), never with the version text.
//
// # Asset Names
//
// [ParseAssetName] understands python-build-standalone release asset names:
//
//	cpython-3.13.0rc2+20240909-x86_64-unknown-linux-gnu-freethreaded+debug-full.tar.zst
package version
