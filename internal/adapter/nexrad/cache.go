package nexrad

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/observability"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

const (
	maxListings = 256
	// flightTimeout bounds a shared upstream call once it no longer follows
	// any single caller's context.
	flightTimeout = 2 * time.Minute
)

// CacheConfig bounds the archive cache.
type CacheConfig struct {
	ListTTL    time.Duration
	VolumeTTL  time.Duration
	MaxVolumes int
}

// CachedGateway wraps an ArchiveGateway with TTL-bounded LRU caches for
// listings and parsed volumes. Concurrent misses for the same key share one
// upstream call. Errors are never cached.
type CachedGateway struct {
	inner    domain.ArchiveGateway
	lists    *ttlCache[map[time.Time]string]
	volumes  *ttlCache[*domain.Volume]
	inflight singleflight.Group
	metrics  *observability.Metrics
}

// NewCachedGateway creates a cache decorator around an archive gateway.
func NewCachedGateway(inner domain.ArchiveGateway, cfg CacheConfig, metrics *observability.Metrics) *CachedGateway {
	return &CachedGateway{
		inner:   inner,
		lists:   newTTLCache[map[time.Time]string](maxListings, cfg.ListTTL),
		volumes: newTTLCache[*domain.Volume](cfg.MaxVolumes, cfg.VolumeTTL),
		metrics: metrics,
	}
}

func (c *CachedGateway) ListAvailable(ctx context.Context, siteID string, hoursBack int) (map[time.Time]string, error) {
	// The window slides every hour, so the current hour is part of the key.
	key := fmt.Sprintf("list:%s|%d|%d", siteID, hoursBack, domain.CurrentHour().Unix())
	if listing, ok := c.lists.get(key); ok {
		c.metrics.ArchiveCache.WithLabelValues("list", "hit").Inc()
		return maps.Clone(listing), nil
	}
	c.metrics.ArchiveCache.WithLabelValues("list", "miss").Inc()

	v, err := c.share(ctx, key, func(ctx context.Context) (any, error) {
		listing, err := c.inner.ListAvailable(ctx, siteID, hoursBack)
		if err != nil {
			return nil, err
		}
		c.lists.put(key, listing)
		return listing, nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(map[time.Time]string)), nil
}

// Parse returns a cached volume when available. Cached volumes are shared and
// must not be modified.
func (c *CachedGateway) Parse(ctx context.Context, location string, fields []string) (*domain.Volume, error) {
	key := fmt.Sprintf("vol:%s|%s", location, strings.Join(fields, ","))
	if vol, ok := c.volumes.get(key); ok {
		c.metrics.ArchiveCache.WithLabelValues("parse", "hit").Inc()
		return vol, nil
	}
	c.metrics.ArchiveCache.WithLabelValues("parse", "miss").Inc()

	v, err := c.share(ctx, key, func(ctx context.Context) (any, error) {
		vol, err := c.inner.Parse(ctx, location, fields)
		if err != nil {
			return nil, err
		}
		c.volumes.put(key, vol)
		return vol, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Volume), nil
}

// share runs fn once per key among concurrent callers. The shared call is
// detached from the caller that started it, so a caller that goes away only
// abandons its own wait.
func (c *CachedGateway) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.inflight.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		return fn(flightCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ttlCache is a thread-safe LRU whose entries also expire after ttl. A cache
// with no capacity or no ttl stores nothing.
type ttlCache[V any] struct {
	ttl time.Duration
	mu  sync.Mutex
	lru *simplelru.LRU[string, ttlEntry[V]]
}

type ttlEntry[V any] struct {
	value   V
	expires time.Time
}

func newTTLCache[V any](maxEntries int, ttl time.Duration) *ttlCache[V] {
	c := &ttlCache[V]{ttl: ttl}
	if maxEntries > 0 && ttl > 0 {
		c.lru, _ = simplelru.NewLRU[string, ttlEntry[V]](maxEntries, nil)
	}
	return c
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	var zero V
	if c.lru == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if !domain.Clock().Now().Before(e.expires) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) put(key string, value V) {
	if c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, ttlEntry[V]{value: value, expires: domain.Clock().Now().Add(c.ttl)})
}

func (c *ttlCache[V]) len() int {
	if c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
