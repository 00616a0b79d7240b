package cache

import (
	"context"
	"time"
)

// Disabled is the backend for cache.backend = "none", and the fallback
// when the configured backend cannot be opened. Every lookup misses, so
// the release catalog is fetched from GitHub on each run.
type Disabled struct {
	Reason string
}

func NewDisabled(reason string) *Disabled {
	return &Disabled{Reason: reason}
}

func (d *Disabled) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (d *Disabled) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (d *Disabled) Delete(context.Context, string) error { return nil }
func (d *Disabled) Close() error { return nil }

var _ Cache = (*Disabled)(nil)
