package mapcache

import (
	"container/list"
	"sync"
)

// Stats contains memory tier statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	MaxSize   int
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// lru is a thread-safe LRU cache. A maxSize of 0 means unlimited.
type lru[K comparable, V any] struct {
	mu        sync.Mutex
	maxSize   int
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
}

func newLRU[K comparable, V any](maxSize int) *lru[K, V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &lru[K, V]{
		maxSize:   maxSize,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

func (c *lru[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return ent.Value.(*lruEntry[K, V]).value, true
}

func (c *lru[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*lruEntry[K, V]).value = value
		return
	}

	c.entries[key] = c.evictList.PushFront(&lruEntry[K, V]{key: key, value: value})
	if c.maxSize > 0 && c.evictList.Len() > c.maxSize {
		oldest := c.evictList.Back()
		c.evictList.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry[K, V]).key)
		c.stats.Evictions++
	}
}

func (c *lru[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
}

func (c *lru[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.maxSize
	return s
}
