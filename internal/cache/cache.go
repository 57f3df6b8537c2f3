package cache

import (
	"sync"
	"time"
)

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// The Cache is a small in-memory store used to avoid repeating expensive
// lookups (such as fetching video metadata from the source provider) when
// the same key is requested several times in quick succession. Items
// expire once their TTL has elapsed and are lazily dropped on access.
type Cache[K comparable, V any] struct {
	sync.Mutex
	ttl     time.Duration
	content map[K]cacheItem[V]
	now     func() time.Time
}

// New constructs a new Cache whose items live for the TTL provided. A
// non-positive TTL disables caching entirely; every lookup will miss.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		content: make(map[K]cacheItem[V]),
		now:     time.Now,
	}
}

// HasKey will check the cache for a live item with a matching key.
func (cache *Cache[K, V]) HasKey(key K) bool {
	_, ok := cache.RetrieveItem(key)
	return ok
}

// RetrieveItem will return the value for a cache item at the key provided.
// If no live item exists at the key provided, the zero value and false are returned.
func (cache *Cache[K, V]) RetrieveItem(key K) (V, bool) {
	cache.Lock()
	defer cache.Unlock()

	item, ok := cache.content[key]
	if !ok {
		return *new(V), false
	}

	if !cache.now().Before(item.expiresAt) {
		delete(cache.content, key)
		return *new(V), false
	}

	return item.value, true
}

// PushItem will store new data at the key provided.
// Note: This method will *overwrite* data already stored at the given key.
func (cache *Cache[K, V]) PushItem(key K, value V) {
	if cache.ttl <= 0 {
		return
	}

	cache.Lock()
	defer cache.Unlock()

	cache.content[key] = cacheItem[V]{value: value, expiresAt: cache.now().Add(cache.ttl)}
}

// DeleteItem will remove cache data at the key provided, returning true
// if an item was deleted and false if there was no data to delete.
func (cache *Cache[K, V]) DeleteItem(key K) bool {
	cache.Lock()
	defer cache.Unlock()

	if _, ok := cache.content[key]; !ok {
		return false
	}

	delete(cache.content, key)
	return true
}

// Prune drops every expired item from the cache, returning the number removed.
func (cache *Cache[K, V]) Prune() int {
	cache.Lock()
	defer cache.Unlock()

	now := cache.now()
	removed := 0
	for k, v := range cache.content {
		if !now.Before(v.expiresAt) {
			delete(cache.content, k)
			removed++
		}
	}

	return removed
}
