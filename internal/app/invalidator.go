package app

import (
	"context"

	"github.com/gatekit/gatekit/internal/cache"
	"github.com/gatekit/gatekit/internal/observability"
)

// MeteredInvalidator counts global cache bumps while delegating to the
// versioned cache. Stores take it wherever they take an Invalidator.
type MeteredInvalidator struct {
	Cache   *cache.Versioned
	Metrics *observability.Metrics
}

// Bump bumps the shared cache version and records the event.
func (m MeteredInvalidator) Bump(ctx context.Context) error {
	if err := m.Cache.Bump(ctx); err != nil {
		return err
	}
	m.Metrics.ObserveCacheBump()
	return nil
}
