package buffer

import (
	"slices"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// siteCache is an LRU of per-site windows. It is not safe for concurrent use;
// the Buffer lock guards it.
type siteCache struct {
	lru     *simplelru.LRU[string, *window]
	evicted []string
}

func newSiteCache(maxEntries int) *siteCache {
	c := &siteCache{}
	// NewLRU only fails for a non-positive size.
	c.lru, _ = simplelru.NewLRU[string, *window](max(1, maxEntries), func(key string, _ *window) {
		c.evicted = append(c.evicted, key)
	})
	return c
}

// get returns the window for key and marks it most recently used.
func (c *siteCache) get(key string) (*window, bool) {
	return c.lru.Get(key)
}

// peek returns the window for key without touching recency.
func (c *siteCache) peek(key string) (*window, bool) {
	return c.lru.Peek(key)
}

// put inserts or replaces key and returns the keys evicted to stay within capacity.
func (c *siteCache) put(key string, value *window) []string {
	c.evicted = nil
	c.lru.Add(key, value)
	evicted := c.evicted
	c.evicted = nil
	return evicted
}

func (c *siteCache) len() int {
	return c.lru.Len()
}

// keys lists cached sites, most recently used first.
func (c *siteCache) keys() []string {
	keys := c.lru.Keys()
	slices.Reverse(keys)
	return keys
}
