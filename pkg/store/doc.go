// Package store installs and removes interpreters under the store root.
//
// # Installing
//
// [Store.EnsureInstalled] is idempotent: a recorded build whose directory
// is intact is returned without touching the network. Otherwise the build
// is reserved in the registry, its archive downloaded (checksum verified)
// into the download cache and extracted into a hidden temporary directory,
// and only then renamed into place and recorded:
//
//	pythons/.tmp-<build>-<uuid>/   extraction target, invisible to listings
//	pythons/<build>/python/...     committed install
//
// A failure at any step removes the temporary directory and the
// reservation, so the registry never references a partial install.
//
// # Relocation
//
// python-build-standalone archives are built for the /install prefix.
// After extraction the sysconfig data module and pkg-config files are
// rewritten to point at the final install directory, and "full" archives
// are flattened from python/install to python.
package store
