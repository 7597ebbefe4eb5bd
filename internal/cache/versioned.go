// Package cache implements the versioned two-tier cache every store reads
// through. All derived keys carry the current cache version; bumping the
// version orphans every previously written value at once, so invalidation
// never enumerates keys. Orphaned entries expire by TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionKey = "gatekeeper:version"
	keyPrefix  = "gatekeeper"
)

// localCacheLimit bounds the in-process tier; beyond it the map is reset
// rather than evicted entry by entry.
const localCacheLimit = 4096

// Versioned wraps Redis based caching with versioning controls and an
// in-process first tier.
type Versioned struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	mu    sync.RWMutex
	local map[string][]byte
}

// New instantiates the cache helper.
func New(client *redis.Client, ttl time.Duration) *Versioned {
	return &Versioned{
		client: client,
		ttl:    ttl,
		local:  make(map[string][]byte),
	}
}

// Version returns the current cache version, initialising to 1 when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 1, nil
	}
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, versionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Key composes a derived cache key qualified by the current version.
func (c *Versioned) Key(ctx context.Context, parts ...string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	joined := strings.Join(parts, ":")
	return fmt.Sprintf("%s:%s:%d", keyPrefix, joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. The
// in-process tier is consulted before Redis; concurrent loads of the same
// key within this process collapse into one loader call.
func (c *Versioned) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	if raw, ok := c.localGet(key); ok {
		return json.Unmarshal(raw, dest)
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		if raw, ok := c.localGet(key); ok {
			return raw, nil
		}
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			c.localSet(key, payload)
			return payload, nil
		}
		if err != redis.Nil {
			return nil, err
		}
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			return nil, err
		}
		c.localSet(key, encoded)
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Bump invalidates every derived value by incrementing the version
// atomically and resetting the in-process tier.
func (c *Versioned) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return err
	}
	c.localReset()
	return nil
}

// Clear invalidates the whole cache. Safe to call at any time.
func (c *Versioned) Clear(ctx context.Context) error {
	return c.Bump(ctx)
}

// ClearKind invalidates cached values for one entity kind. Granular
// invalidation is intentionally implemented as a global bump: correctness
// over bookkeeping.
func (c *Versioned) ClearKind(ctx context.Context, kind string) error {
	return c.Bump(ctx)
}

// ClearSubject invalidates cached values for one subject. Same global bump
// as ClearKind.
func (c *Versioned) ClearSubject(ctx context.Context, subjectType, subjectID string) error {
	return c.Bump(ctx)
}

func (c *Versioned) localGet(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.local[key]
	return raw, ok
}

func (c *Versioned) localSet(key string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.local) >= localCacheLimit {
		c.local = make(map[string][]byte)
	}
	c.local[key] = raw
}

func (c *Versioned) localReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = make(map[string][]byte)
}
