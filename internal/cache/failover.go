package cache

import (
	"context"
	"time"

	"github.com/grapheneaffiliate/plogic-core/pkg/logger"
)

// Failover prefers the primary (distributed) backend and falls back to the
// local store whenever the primary errors. Callers never see ErrUnavailable:
// an unreachable primary just behaves like the local store.
type Failover struct {
	primary Cache
	local   Cache
}

// NewFailover wraps primary with local as the fallback. primary may be nil,
// in which case the local store serves everything.
func NewFailover(primary, local Cache) *Failover {
	return &Failover{primary: primary, local: local}
}

// Get implements Cache.
func (f *Failover) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.primary != nil {
		val, ok, err := f.primary.Get(ctx, key)
		if err == nil {
			return val, ok, nil
		}
		logger.Debug("primary cache get failed, using local", "error", err)
	}
	return f.local.Get(ctx, key)
}

// Put implements Cache.
func (f *Failover) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.primary != nil {
		err := f.primary.Put(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		logger.Debug("primary cache put failed, using local", "error", err)
	}
	return f.local.Put(ctx, key, value, ttl)
}

// Backend implements Cache, reporting the preferred backend.
func (f *Failover) Backend() string {
	if f.primary != nil {
		return f.primary.Backend()
	}
	return f.local.Backend()
}
