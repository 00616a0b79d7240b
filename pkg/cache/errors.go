package cache

import "errors"

// ErrUnknownBackend is returned by [Open] for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")
