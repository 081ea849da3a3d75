// Package memory implements the local in-process cache tier on top of
// adaptive-replacement LRU caches, one per cache kind.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aerugo/aerugo/registry/storage/cache"
	lru "github.com/hashicorp/golang-lru/arc/v2"
)

const defaultSize = 1000

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Cache is the in-process tier. Each kind gets its own ARC so that a
// burst of blob metadata cannot evict the catalog.
type Cache struct {
	mu    sync.Mutex
	kinds map[cache.Kind]*lru.ARCCache[string, entry]
	size  int
}

var _ cache.Tier = (*Cache)(nil)
var _ cache.Lengther = (*Cache)(nil)

// NewCache builds a tier holding up to size entries per kind. A size of
// zero or less selects the default.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	return &Cache{
		kinds: make(map[cache.Kind]*lru.ARCCache[string, entry]),
		size:  size,
	}
}

func (c *Cache) kind(kind cache.Kind) *lru.ARCCache[string, entry] {
	c.mu.Lock()
	defer c.mu.Unlock()

	arc, ok := c.kinds[kind]
	if !ok {
		// NewARC only fails for a non-positive size.
		arc, _ = lru.NewARC[string, entry](c.size)
		c.kinds[kind] = arc
	}
	return arc
}

func (c *Cache) Get(ctx context.Context, kind cache.Kind, key string) ([]byte, bool) {
	arc := c.kind(kind)
	e, ok := arc.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		arc.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(ctx context.Context, kind cache.Kind, key string, value []byte, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.kind(kind).Add(key, e)
}

func (c *Cache) Delete(ctx context.Context, kind cache.Kind, key string) {
	c.kind(kind).Remove(key)
}

func (c *Cache) DeletePrefix(ctx context.Context, kind cache.Kind, prefix string) {
	arc := c.kind(kind)
	for _, key := range arc.Keys() {
		if strings.HasPrefix(key, prefix) {
			arc.Remove(key)
		}
	}
}

func (c *Cache) Purge(ctx context.Context, kind cache.Kind) {
	c.kind(kind).Purge()
}

// Len reports the number of live entries for a kind. Expired entries
// still resident in the ARC are not counted.
func (c *Cache) Len(kind cache.Kind) int {
	arc := c.kind(kind)
	now := time.Now()
	n := 0
	for _, key := range arc.Keys() {
		if e, ok := arc.Peek(key); ok && !e.expired(now) {
			n++
		}
	}
	return n
}
