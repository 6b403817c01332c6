// Package cache keeps oEmbed responses in memory, bounded by age and by
// total body size.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Status represents the cache lookup result.
type Status string

const (
	StatusHit         Status = "hit"
	StatusMiss        Status = "miss"
	StatusRevalidated Status = "revalidated"
	StatusExpired     Status = "expired"
	StatusStale       Status = "stale"
)

// Entry holds one cached provider response.
type Entry struct {
	Body         []byte
	ETag         string
	LastModified string
	Size         int64
	ExpiresAt    time.Time
}

// Cache is a thread-safe LRU with TTL and byte-budget eviction.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int64
	curSize int64
	now     func() time.Time // injectable for testing
}

type cacheItem struct {
	key   string
	entry Entry
}

// New creates a cache with the given TTL and max size in bytes.
func New(ttl time.Duration, maxSize int64) *Cache {
	return &Cache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns a copy of the entry for key. Expired entries are still
// returned, with StatusExpired, so the caller can revalidate them.
func (c *Cache) Get(key string) (Entry, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Entry{}, StatusMiss
	}

	item := elem.Value.(*cacheItem)
	if c.now().After(item.entry.ExpiresAt) {
		return item.entry, StatusExpired
	}

	c.order.MoveToFront(elem)
	return item.entry, StatusHit
}

// Put stores entry under key, computing Size from the body when unset.
// Entries larger than the whole budget are not stored.
func (c *Cache) Put(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.Size == 0 {
		entry.Size = int64(len(entry.Body))
	}
	if entry.Size > c.maxSize {
		c.remove(key)
		return
	}
	entry.ExpiresAt = c.now().Add(c.ttl)

	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*cacheItem)
		c.curSize -= old.entry.Size
		old.entry = entry
		c.curSize += entry.Size
		c.order.MoveToFront(elem)
		c.evict()
		return
	}

	elem := c.order.PushFront(&cacheItem{key: key, entry: entry})
	c.items[key] = elem
	c.curSize += entry.Size
	c.evict()
}

// RefreshTTL resets the TTL of an existing entry after a 304.
func (c *Cache) RefreshTTL(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*cacheItem)
		item.entry.ExpiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
	}
}

// Delete drops key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
}

// remove must be called with mu held.
func (c *Cache) remove(key string) {
	elem, ok := c.items[key]
	if !ok {
		return
	}
	c.curSize -= elem.Value.(*cacheItem).entry.Size
	delete(c.items, key)
	c.order.Remove(elem)
}

// evict removes LRU entries until curSize <= maxSize. Must be called with mu held.
func (c *Cache) evict() {
	for c.curSize > c.maxSize && c.order.Len() > 0 {
		oldest := c.order.Back()
		c.remove(oldest.Value.(*cacheItem).key)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the current byte size of the cache.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curSize
}
