package blockchain

import (
	"container/list"
	"sync"
	"time"
)

// BoundedLRUCache is a thread-safe bounded LRU cache whose entries expire after ttl.
// A zero ttl keeps entries until they are evicted.
type BoundedLRUCache[K comparable, V any] struct {
	mu      sync.Mutex
	cache   map[K]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func NewBoundedLRUCache[K comparable, V any](maxSize int, ttl time.Duration) *BoundedLRUCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &BoundedLRUCache[K, V]{
		cache:   make(map[K]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a live value and promotes it. Expired entries are dropped on access.
func (c *BoundedLRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*lruEntry[K, V])
	if c.expired(entry) {
		c.lru.Remove(elem)
		delete(c.cache, key)
		return zero, false
	}
	c.lru.MoveToFront(elem)
	return entry.value, true
}

// Set adds or updates a value and restarts its ttl.
func (c *BoundedLRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	for len(c.cache) >= c.maxSize {
		c.evictLRU()
	}
	elem := c.lru.PushFront(&lruEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.cache[key] = elem
}

func (c *BoundedLRUCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.Remove(elem)
		delete(c.cache, key)
	}
}

func (c *BoundedLRUCache[K, V]) expired(entry *lruEntry[K, V]) bool {
	return c.ttl > 0 && !c.now().Before(entry.expiresAt)
}

// evictLRU removes the least recently used entry. Must be called with mu held.
func (c *BoundedLRUCache[K, V]) evictLRU() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*lruEntry[K, V])
	c.lru.Remove(back)
	delete(c.cache, entry.key)
}

// Size counts entries, including expired ones not yet touched.
func (c *BoundedLRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *BoundedLRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[K]*list.Element, c.maxSize)
	c.lru.Init()
}
