// Package cache implements a bounded LRU result cache: a digest-keyed map
// to ranked MatchResult lists with O(1) amortized promote/evict, backed by
// container/list plus a map. Capacity is counted in entries, not bytes.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/arcspan/fingermatch/internal/model"
)

type entry struct {
	key   string
	value []model.MatchResult
}

// Cache is a bounded key -> []model.MatchResult map with LRU eviction.
// A zero-capacity Cache always misses and never retains entries, which is
// how the service implements cache_size=0 disabling caching.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

// New returns a Cache bounded to capacity entries.
func New(capacity int) *Cache {
	return &Cache{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Lookup returns the cached value for key, if present, and promotes key to
// most-recently-used.
func (c *Cache) Lookup(key string) ([]model.MatchResult, bool) {
	if c.capacity <= 0 {
		c.misses.Add(1)
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Insert stores value under key, evicting the least-recently-used entry if
// the cache is at capacity and key is new. A no-op when capacity is 0.
func (c *Cache) Insert(key string, value []model.MatchResult) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		c.evictList.MoveToFront(el)
		return
	}

	if c.evictList.Len() >= c.capacity {
		oldest := c.evictList.Back()
		if oldest != nil {
			c.removeElement(oldest)
		}
	}

	el := c.evictList.PushFront(&entry{key: key, value: value})
	c.items[key] = el
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.evictList.Init()
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Has reports whether key is currently cached, without affecting LRU order.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

func (c *Cache) removeElement(el *list.Element) {
	c.evictList.Remove(el)
	kv := el.Value.(*entry)
	delete(c.items, kv.key)
}

// Stats returns cumulative hit/miss counts since creation. The cache is
// in-memory only and does not persist across restarts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
