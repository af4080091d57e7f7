package utils

import (
	"hash/fnv"
	"sync"
)

const DefaultShardCount = 32

// ShardedMap is a string-keyed map split into independently locked buckets,
// so that operations on unrelated keys do not contend on one lock.
type ShardedMap[V any] struct {
	shards []*shard[V]
	mask   uint32
}

type shard[V any] struct {
	sync.RWMutex
	items map[string]V
}

// NewShardedMap creates a map with count buckets, rounded up to a power of two.
func NewShardedMap[V any](count int) *ShardedMap[V] {
	n := 1
	for n < count {
		n <<= 1
	}
	m := &ShardedMap[V]{
		shards: make([]*shard[V], n),
		mask:   uint32(n - 1),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *ShardedMap[V]) shardFor(key string) *shard[V] {
	return m.shards[fnv32(key)&m.mask]
}

func (m *ShardedMap[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.RLock()
	v, ok := s.items[key]
	s.RUnlock()
	return v, ok
}

func (m *ShardedMap[V]) Set(key string, v V) {
	s := m.shardFor(key)
	s.Lock()
	s.items[key] = v
	s.Unlock()
}

// SetIfAbsent stores v only if key is free and reports whether it did.
func (m *ShardedMap[V]) SetIfAbsent(key string, v V) bool {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = v
	return true
}

// GetOrCreate returns the value under key, storing create() first if absent.
func (m *ShardedMap[V]) GetOrCreate(key string, create func() V) V {
	s := m.shardFor(key)
	s.RLock()
	v, ok := s.items[key]
	s.RUnlock()
	if ok {
		return v
	}
	s.Lock()
	defer s.Unlock()
	if v, ok := s.items[key]; ok {
		return v
	}
	v = create()
	s.items[key] = v
	return v
}

func (m *ShardedMap[V]) Delete(key string) {
	s := m.shardFor(key)
	s.Lock()
	delete(s.items, key)
	s.Unlock()
}

// DeleteIf removes key only when match returns true for its current value.
func (m *ShardedMap[V]) DeleteIf(key string, match func(V) bool) bool {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()
	v, ok := s.items[key]
	if !ok || !match(v) {
		return false
	}
	delete(s.items, key)
	return true
}

func (m *ShardedMap[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.RLock()
		n += len(s.items)
		s.RUnlock()
	}
	return n
}

// Range calls fn for a point-in-time copy of each bucket. fn may call back
// into the map.
func (m *ShardedMap[V]) Range(fn func(key string, v V) bool) {
	for _, s := range m.shards {
		s.RLock()
		keys := make([]string, 0, len(s.items))
		vals := make([]V, 0, len(s.items))
		for k, v := range s.items {
			keys = append(keys, k)
			vals = append(vals, v)
		}
		s.RUnlock()
		for i := range keys {
			if !fn(keys[i], vals[i]) {
				return
			}
		}
	}
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}
