package executor

import (
	"container/list"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/weftdb/weft/pkg/types"
)

// FetchCache is an LRU cache for dimension fetch results. Lookup joins hit
// the same small target tables on every query, so their fetches are cached
// snappy-compressed and evicted by total size and age.
type FetchCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ttl      time.Duration

	// items maps cache key → list element (whose value is *cacheEntry)
	items map[string]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	key        string
	compressed []byte
	storedAt   time.Time
}

// NewFetchCache creates a fetch result cache bounded by total compressed
// size. A zero or negative ttl disables age-based expiry.
func NewFetchCache(maxBytes int64, ttl time.Duration) *FetchCache {
	if maxBytes <= 0 {
		maxBytes = 64 * 1024 * 1024
	}
	return &FetchCache{
		maxBytes: maxBytes,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// CacheKey derives a stable key for a fetch from the adapter identity and
// the rendered query text.
func CacheKey(adapter, entity, query string) string {
	h1, h2 := murmur3.Sum128([]byte(adapter + "\x00" + entity + "\x00" + query))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Get returns the cached records for a key, or nil on miss or expiry.
// On hit, the entry is promoted to most-recently-used.
func (c *FetchCache) Get(key string) []types.Record {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && time.Since(entry.storedAt) > c.ttl {
		c.removeLocked(elem)
		c.mu.Unlock()
		return nil
	}

	c.order.MoveToFront(elem)
	compressed := entry.compressed
	c.mu.Unlock()

	decoded, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil
	}
	var records []types.Record
	if err := json.Unmarshal(decoded, &records); err != nil {
		return nil
	}
	return records
}

// Put stores a fetch result. If adding the entry exceeds the byte budget,
// LRU entries are evicted.
func (c *FetchCache) Put(key string, records []types.Record) {
	encoded, err := json.Marshal(records)
	if err != nil {
		return
	}
	compressed := snappy.Encode(nil, encoded)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*cacheEntry)
		c.curBytes -= int64(len(old.compressed))
		old.compressed = compressed
		old.storedAt = time.Now()
		c.curBytes += int64(len(compressed))
		c.order.MoveToFront(elem)
	} else {
		entry := &cacheEntry{
			key:        key,
			compressed: compressed,
			storedAt:   time.Now(),
		}
		elem := c.order.PushFront(entry)
		c.items[key] = elem
		c.curBytes += int64(len(compressed))
	}

	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the least-recently-used entry.
// Caller must hold c.mu.
func (c *FetchCache) evictOldestLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.removeLocked(back)
}

// removeLocked removes a specific element from the cache.
// Caller must hold c.mu.
func (c *FetchCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.key)
	c.curBytes -= int64(len(entry.compressed))
}

// Size returns the current total cached size in bytes.
func (c *FetchCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Len returns the number of cached entries.
func (c *FetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
