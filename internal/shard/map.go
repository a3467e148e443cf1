// Package shard provides a concurrent map split into independently locked
// shards. It backs the device-wide descriptor heap and layout shadows, which
// are read from every recording thread and written on table updates.
package shard

import (
	"sync"
	"sync/atomic"
)

const (
	// Count is the number of shards. Must be a power of 2.
	Count = 16

	mask = Count - 1
)

// Handle is any 64-bit host handle type.
type Handle interface {
	~uint64
}

// Hasher computes the shard-selection hash for a key.
type Hasher[K any] func(K) uint64

// HandleHasher mixes a host handle. Handles are often pointers with zeroed
// low bits, so the value is folded before masking.
func HandleHasher[K Handle](k K) uint64 {
	h := uint64(k)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return h
}

// Map is a sharded map safe for concurrent use. Values are never evicted.
type Map[K comparable, V any] struct {
	shards [Count]*mapShard[K, V]
	hasher Hasher[K]

	hits   atomic.Uint64
	misses atomic.Uint64
}

type mapShard[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty map using hasher for shard selection.
func New[K comparable, V any](hasher Hasher[K]) *Map[K, V] {
	m := &Map[K, V]{hasher: hasher}
	for i := range m.shards {
		m.shards[i] = &mapShard[K, V]{entries: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) shard(key K) *mapShard[K, V] {
	return m.shards[m.hasher(key)&mask]
}

// Get returns the value stored for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shard(key)
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return v, ok
}

// Set stores value for key, replacing any previous value.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shard(key)
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
}

// GetOrCreate returns the value for key, calling create under the shard
// lock when it is absent. Keep create fast.
func (m *Map[K, V]) GetOrCreate(key K, create func() V) V {
	s := m.shard(key)

	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		m.hits.Add(1)
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check after acquiring write lock
	if v, ok := s.entries[key]; ok {
		m.hits.Add(1)
		return v
	}
	m.misses.Add(1)
	v = create()
	s.entries[key] = v
	return v
}

// Update applies fn to the value for key under the shard write lock and
// stores the result. fn receives the zero value and false when key is
// absent.
func (m *Map[K, V]) Update(key K, fn func(V, bool) V) {
	s := m.shard(key)
	s.mu.Lock()
	v, ok := s.entries[key]
	s.entries[key] = fn(v, ok)
	s.mu.Unlock()
}

// Delete removes key. Returns true if it was present.
func (m *Map[K, V]) Delete(key K) bool {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Range calls fn for every entry until fn returns false. Each shard is
// read-locked while it is visited, so fn must not modify the map.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.entries {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Clear removes all entries.
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.entries = make(map[K]V)
		s.mu.Unlock()
	}
}

// Len returns the total number of entries across all shards.
func (m *Map[K, V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// ShardLen returns the number of entries in each shard.
func (m *Map[K, V]) ShardLen() [Count]int {
	var lens [Count]int
	for i, s := range m.shards {
		s.mu.RLock()
		lens[i] = len(s.entries)
		s.mu.RUnlock()
	}
	return lens
}

// Stats holds lookup counters.
type Stats struct {
	Len     int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns current lookup statistics.
func (m *Map[K, V]) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{Len: m.Len(), Hits: hits, Misses: misses, HitRate: hitRate}
}

// ResetStats zeroes the lookup counters.
func (m *Map[K, V]) ResetStats() {
	m.hits.Store(0)
	m.misses.Store(0)
}
