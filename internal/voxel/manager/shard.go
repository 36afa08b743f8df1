package manager

import (
	"sync"

	"voxelforge.dev/internal/voxel/grid"
)

// shardCount is the number of independently locked buckets in a sharded
// map. Power of two so the shard pick is a mask.
const shardCount = 32

// shardedMap is a chunk-position-keyed map with per-bucket locking, so many
// goroutines can touch different chunks without contending on one lock.
// This is the structural-membership map only: chunk content has its own
// lock.
type shardedMap[V any] struct {
	shards [shardCount]struct {
		mu sync.RWMutex
		m  map[grid.ChunkPos]V
	}
}

func newShardedMap[V any]() *shardedMap[V] {
	s := &shardedMap[V]{}
	for i := range s.shards {
		s.shards[i].m = make(map[grid.ChunkPos]V)
	}
	return s
}

// shardFor mixes the position into a bucket index. The multiplies are the
// usual 64-bit hash constants; chunk positions are small and regular, so a
// plain xor would cluster badly.
func shardFor(pos grid.ChunkPos) int {
	h := uint64(uint32(pos.X))*0x9e3779b97f4a7c15 ^
		uint64(uint32(pos.Y))*0xc2b2ae3d27d4eb4f ^
		uint64(uint32(pos.Z))*0xbf58476d1ce4e5b9
	h ^= h >> 33
	return int(h & (shardCount - 1))
}

func (s *shardedMap[V]) get(pos grid.ChunkPos) (V, bool) {
	sh := &s.shards[shardFor(pos)]
	sh.mu.RLock()
	v, ok := sh.m[pos]
	sh.mu.RUnlock()
	return v, ok
}

func (s *shardedMap[V]) put(pos grid.ChunkPos, v V) {
	sh := &s.shards[shardFor(pos)]
	sh.mu.Lock()
	sh.m[pos] = v
	sh.mu.Unlock()
}

// putIfAbsent stores v unless pos is already present, returning the value
// now in the map and whether the store happened.
func (s *shardedMap[V]) putIfAbsent(pos grid.ChunkPos, v V) (V, bool) {
	sh := &s.shards[shardFor(pos)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.m[pos]; ok {
		return existing, false
	}
	sh.m[pos] = v
	return v, true
}

// remove deletes pos, returning the removed value if present.
func (s *shardedMap[V]) remove(pos grid.ChunkPos) (V, bool) {
	sh := &s.shards[shardFor(pos)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[pos]
	if ok {
		delete(sh.m, pos)
	}
	return v, ok
}

func (s *shardedMap[V]) has(pos grid.ChunkPos) bool {
	sh := &s.shards[shardFor(pos)]
	sh.mu.RLock()
	_, ok := sh.m[pos]
	sh.mu.RUnlock()
	return ok
}

func (s *shardedMap[V]) len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// forEach visits a snapshot of each shard in turn. No cross-shard
// consistency is implied: entries added or removed while iterating may or
// may not be seen.
func (s *shardedMap[V]) forEach(f func(pos grid.ChunkPos, v V) bool) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		snapshot := make(map[grid.ChunkPos]V, len(sh.m))
		for k, v := range sh.m {
			snapshot[k] = v
		}
		sh.mu.RUnlock()

		for k, v := range snapshot {
			if !f(k, v) {
				return
			}
		}
	}
}

// posSet is a concurrent set of chunk positions.
type posSet struct {
	inner *shardedMap[struct{}]
}

func newPosSet() *posSet {
	return &posSet{inner: newShardedMap[struct{}]()}
}

func (s *posSet) add(pos grid.ChunkPos) {
	s.inner.put(pos, struct{}{})
}

func (s *posSet) remove(pos grid.ChunkPos) {
	s.inner.remove(pos)
}

func (s *posSet) has(pos grid.ChunkPos) bool {
	return s.inner.has(pos)
}

func (s *posSet) len() int {
	return s.inner.len()
}

// all returns a snapshot of the set's members.
func (s *posSet) all() []grid.ChunkPos {
	out := make([]grid.ChunkPos, 0, s.inner.len())
	s.inner.forEach(func(pos grid.ChunkPos, _ struct{}) bool {
		out = append(out, pos)
		return true
	})
	return out
}
