package cache

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"
)

// lruCache is the bounded in-process tier. Eviction order is strictly
// least-recently-accessed: every set appends the key to the back of the
// access list, every hit moves it to the back, and eviction removes the
// front. The map and access list are mutated together under one mutex.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = least recently used
}

type lruEntry struct {
	key       string
	value     any
	expiresAt time.Time // advisory only; authoritative TTL lives in tier 2
	hits      int64
}

func newLRU(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns the value for key and refreshes its recency.
// Entries past their advisory expiry are dropped and reported as misses.
func (l *lruCache) get(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*lruEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		l.order.Remove(elem)
		delete(l.entries, key)
		return nil, false
	}

	entry.hits++
	l.order.MoveToBack(elem)
	return entry.value, true
}

// set stores value under key, refreshing recency, and evicts the least
// recently used entry when the cache exceeds capacity. Returns the
// number of evictions performed (0 or 1).
func (l *lruCache) set(key string, value any, expiresAt time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		l.order.MoveToBack(elem)
		return 0
	}

	elem := l.order.PushBack(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	l.entries[key] = elem

	if len(l.entries) <= l.capacity {
		return 0
	}

	lru := l.order.Front()
	l.order.Remove(lru)
	delete(l.entries, lru.Value.(*lruEntry).key)
	return 1
}

// delete removes key. Returns true if it was present.
func (l *lruCache) delete(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.entries[key]
	if !ok {
		return false
	}
	l.order.Remove(elem)
	delete(l.entries, key)
	return true
}

// deletePrefix removes every key starting with prefix and returns the
// number removed.
func (l *lruCache) deletePrefix(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for elem := l.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*lruEntry)
		if strings.HasPrefix(entry.key, prefix) {
			l.order.Remove(elem)
			delete(l.entries, entry.key)
			removed++
		}
		elem = next
	}
	return removed
}

// contains reports whether key is present without refreshing recency.
func (l *lruCache) contains(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.entries[key]
	if !ok {
		return false
	}
	entry := elem.Value.(*lruEntry)
	return entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt)
}

func (l *lruCache) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// KeyHits pairs a cache key with its cumulative hit count.
type KeyHits struct {
	Key  string `json:"key"`
	Hits int64  `json:"hits"`
}

// mostAccessed returns the n most frequently read keys, most hits first.
func (l *lruCache) mostAccessed(n int) []KeyHits {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := make([]KeyHits, 0, len(l.entries))
	for elem := l.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*lruEntry)
		all = append(all, KeyHits{Key: entry.key, Hits: entry.hits})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Hits > all[j].Hits })
	if n < len(all) {
		all = all[:n]
	}
	return all
}
