// Package manager is the authoritative owner of all loaded chunk data. It
// tracks why each chunk is loaded (load reasons, per loadshare), stages
// reason-less chunks in purgatory for cheap revival, and hands out
// lifecycle-safe ChunkRef handles.
package manager

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
)

// World dimensions in chunk space. Chunk positions must have X and Z within
// the horizontal range and Y within the vertical range; everything else is
// out of bounds for every operation.
const (
	WorldVerticalMin   int32 = -2048
	WorldVerticalMax   int32 = 2048
	WorldHorizontalMin int32 = -65536
	WorldHorizontalMax int32 = 65536
)

// InBounds reports whether a chunk position is inside the world dimensions.
func InBounds(pos grid.ChunkPos) bool {
	return pos.X >= WorldHorizontalMin && pos.X < WorldHorizontalMax &&
		pos.Z >= WorldHorizontalMin && pos.Z < WorldHorizontalMax &&
		pos.Y >= WorldVerticalMin && pos.Y < WorldVerticalMax
}

// EventKind labels a lifecycle transition.
type EventKind string

const (
	EventLoaded      EventKind = "loaded"
	EventRevived     EventKind = "revived"
	EventPurgatoried EventKind = "purgatoried"
	EventEvicted     EventKind = "evicted"
)

// Event describes one lifecycle transition, for audit logs and metrics.
type Event struct {
	Kind    EventKind
	Pos     grid.ChunkPos
	Share   LoadshareID // zero UUID for transitions with no single owner
	Reasons LoadReasons
	At      time.Time
}

// Params configures a Manager.
type Params struct {
	// DefaultBlock is what unwritten cells of new chunks read as.
	DefaultBlock chunk.Block
	// Policy decides purgatory eviction. Defaults to a 30s/4096-entry
	// AgeSizePolicy.
	Policy EvictionPolicy
	// OnEvent, if set, observes lifecycle transitions. Called synchronously
	// from lifecycle operations; it must be fast and must not call back
	// into the manager.
	OnEvent func(Event)
}

// residency is a loaded chunk plus the generation stamped into the
// ChunkRefs handed out for it. The generation follows the chunk through
// purgatory and back, so refs stay valid across revival and only die when
// the chunk is actually freed.
type residency struct {
	chunk      *chunk.Chunk
	generation uint64
}

type purgatoryEntry struct {
	chunk      *chunk.Chunk
	generation uint64
	since      time.Time
}

// Manager owns all loaded chunks. The structural maps use per-bucket
// locking; chunk content has its own lock (see the chunk package). No
// manager operation holds more than one chunk's locks at a time.
type Manager struct {
	defaultBlock chunk.Block
	policy       EvictionPolicy
	onEvent      func(Event)

	loaded     *shardedMap[*residency]
	purgatory  *shardedMap[*purgatoryEntry]
	loadshares *shardedMap[*chunkLoadshares]

	// Reverse index: which positions each loadshare holds reasons on.
	sharesMu    sync.Mutex
	shareChunks map[LoadshareID]map[grid.ChunkPos]struct{}

	// Per-position stripe locks serializing lifecycle transitions. Content
	// access never takes these.
	lifecycle [shardCount]sync.Mutex

	// Structural lock for bulk changes; regular operations hold it shared
	// and fail with ErrGloballyLocked instead of blocking.
	structMu sync.RWMutex

	statuses Statuses
	gen      atomic.Uint64
}

// NewManager creates an empty chunk manager.
func NewManager(p Params) *Manager {
	if p.Policy == nil {
		p.Policy = AgeSizePolicy{MaxAge: 30 * time.Second, MaxCount: 4096}
	}
	return &Manager{
		defaultBlock: p.DefaultBlock,
		policy:       p.Policy,
		onEvent:      p.OnEvent,
		loaded:       newShardedMap[*residency](),
		purgatory:    newShardedMap[*purgatoryEntry](),
		loadshares:   newShardedMap[*chunkLoadshares](),
		shareChunks:  make(map[LoadshareID]map[grid.ChunkPos]struct{}),
		statuses:     Statuses{remesh: newPosSet(), solid: newPosSet()},
	}
}

func (m *Manager) emit(kind EventKind, pos grid.ChunkPos, share LoadshareID, reasons LoadReasons) {
	if m.onEvent != nil {
		m.onEvent(Event{Kind: kind, Pos: pos, Share: share, Reasons: reasons, At: time.Now()})
	}
}

func (m *Manager) lockLifecycle(pos grid.ChunkPos) func() {
	mu := &m.lifecycle[shardFor(pos)]
	mu.Lock()
	return mu.Unlock
}

func (m *Manager) trackShare(share LoadshareID, pos grid.ChunkPos) {
	m.sharesMu.Lock()
	defer m.sharesMu.Unlock()
	set := m.shareChunks[share]
	if set == nil {
		set = make(map[grid.ChunkPos]struct{})
		m.shareChunks[share] = set
	}
	set[pos] = struct{}{}
}

func (m *Manager) untrackShare(share LoadshareID, pos grid.ChunkPos) {
	m.sharesMu.Lock()
	defer m.sharesMu.Unlock()
	if set := m.shareChunks[share]; set != nil {
		delete(set, pos)
		if len(set) == 0 {
			delete(m.shareChunks, share)
		}
	}
}

// Load loads the chunk at pos under the given loadshare. A chunk waiting in
// purgatory is revived with its data intact; otherwise a fresh primordial
// chunk is created for the generator to populate.
//
// Fails with ErrNoReasons when reasons is empty, ErrOutOfBounds outside the
// world dimensions and ErrAlreadyLoaded when the position is already
// loaded (callers adding reasons to a loaded chunk want AddReasons).
func (m *Manager) Load(pos grid.ChunkPos, share LoadshareID, reasons LoadReasons) (ChunkRef, error) {
	if !InBounds(pos) {
		return ChunkRef{}, fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	if reasons.Empty() {
		return ChunkRef{}, fmt.Errorf("%w: %v", ErrNoReasons, pos)
	}
	if !m.structMu.TryRLock() {
		return ChunkRef{}, ErrGloballyLocked
	}
	defer m.structMu.RUnlock()

	unlock := m.lockLifecycle(pos)
	defer unlock()

	if m.loaded.has(pos) {
		return ChunkRef{}, fmt.Errorf("%w: %v", ErrAlreadyLoaded, pos)
	}

	kind := EventLoaded
	var res *residency
	if e, ok := m.purgatory.remove(pos); ok {
		res = &residency{chunk: e.chunk, generation: e.generation}
		kind = EventRevived
		// Unloading dropped the position from the status sets; rebuild
		// them from whatever flags the chunk carries now.
		m.statuses.apply(pos, e.chunk.Flags())
	} else {
		res = &residency{
			chunk:      chunk.New(pos, m.defaultBlock, chunk.FlagPrimordial),
			generation: m.gen.Add(1),
		}
	}

	m.loaded.put(pos, res)
	m.loadshares.put(pos, newChunkLoadshares(share, reasons))
	m.trackShare(share, pos)
	m.emit(kind, pos, share, reasons)

	return ChunkRef{m: m, pos: pos, generation: res.generation}, nil
}

// AddReasons adds load reasons for a loadshare to an already loaded chunk.
func (m *Manager) AddReasons(pos grid.ChunkPos, share LoadshareID, reasons LoadReasons) error {
	if !InBounds(pos) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	if reasons.Empty() {
		return fmt.Errorf("%w: %v", ErrNoReasons, pos)
	}
	if !m.structMu.TryRLock() {
		return ErrGloballyLocked
	}
	defer m.structMu.RUnlock()

	unlock := m.lockLifecycle(pos)
	defer unlock()

	ls, ok := m.loadshares.get(pos)
	if !ok || !m.loaded.has(pos) {
		return fmt.Errorf("%w: %v", ErrNotLoaded, pos)
	}
	ls.insert(share, reasons)
	m.trackShare(share, pos)
	return nil
}

// RemoveReasons removes load reasons held by a loadshare. When the union of
// reasons across all loadshares becomes empty the chunk moves to purgatory:
// invisible to LoadedChunk, retained for revival until the next sweep
// decides otherwise.
func (m *Manager) RemoveReasons(pos grid.ChunkPos, share LoadshareID, reasons LoadReasons) error {
	if !InBounds(pos) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	if !m.structMu.TryRLock() {
		return ErrGloballyLocked
	}
	defer m.structMu.RUnlock()

	unlock := m.lockLifecycle(pos)
	defer unlock()

	ls, ok := m.loadshares.get(pos)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNotLoaded, pos)
	}

	union := ls.remove(share, reasons)
	if !ls.has(share) {
		m.untrackShare(share, pos)
	}
	if !union.Empty() {
		return nil
	}
	return m.moveToPurgatory(pos, share)
}

// Purge forcibly moves a loaded chunk to purgatory, discarding all load
// reasons.
func (m *Manager) Purge(pos grid.ChunkPos) error {
	if !InBounds(pos) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	if !m.structMu.TryRLock() {
		return ErrGloballyLocked
	}
	defer m.structMu.RUnlock()

	unlock := m.lockLifecycle(pos)
	defer unlock()

	if m.purgatory.has(pos) {
		return fmt.Errorf("%w: %v", ErrAlreadyPurged, pos)
	}
	if !m.loaded.has(pos) {
		return fmt.Errorf("%w: %v", ErrNotLoaded, pos)
	}
	if ls, ok := m.loadshares.get(pos); ok {
		for _, share := range ls.shareIDs() {
			m.untrackShare(share, pos)
		}
	}
	return m.moveToPurgatory(pos, LoadshareID{})
}

// moveToPurgatory performs the loaded -> purgatory transition. Callers hold
// the position's lifecycle lock.
func (m *Manager) moveToPurgatory(pos grid.ChunkPos, share LoadshareID) error {
	res, ok := m.loaded.remove(pos)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNotLoaded, pos)
	}
	m.loadshares.remove(pos)
	m.statuses.drop(pos)
	m.purgatory.put(pos, &purgatoryEntry{
		chunk:      res.chunk,
		generation: res.generation,
		since:      time.Now(),
	})
	m.emit(EventPurgatoried, pos, share, 0)
	return nil
}

// UnloadLoadshare removes every reason held by the loadshare across all
// chunks, typically because the owning subsystem is shutting down. Chunks
// left without reasons move to purgatory. Returns how many chunks the
// loadshare was removed from.
func (m *Manager) UnloadLoadshare(share LoadshareID) int {
	m.sharesMu.Lock()
	positions := make([]grid.ChunkPos, 0, len(m.shareChunks[share]))
	for pos := range m.shareChunks[share] {
		positions = append(positions, pos)
	}
	m.sharesMu.Unlock()

	n := 0
	for _, pos := range positions {
		if err := m.RemoveReasons(pos, share, LoadReasonManual|LoadReasonRender|LoadReasonCollision); err == nil {
			n++
		}
	}
	return n
}

// Sweep applies the eviction policy to purgatory and frees what it
// condemns. Returns the number of chunks freed. Call periodically; the
// cadence is the caller's eviction latency.
func (m *Manager) Sweep(now time.Time) int {
	if !m.structMu.TryRLock() {
		// Structural access in progress; this sweep just comes up empty.
		return 0
	}
	defer m.structMu.RUnlock()

	total := m.purgatory.len()
	evicted := 0

	m.purgatory.forEach(func(pos grid.ChunkPos, e *purgatoryEntry) bool {
		if !m.policy.ShouldEvict(PurgatoryEntry{Since: e.since}, now, total) {
			return true
		}

		unlock := m.lockLifecycle(pos)
		// Re-check under the lifecycle lock: the chunk may have been
		// revived since the snapshot.
		if cur, ok := m.purgatory.get(pos); ok && cur == e {
			m.purgatory.remove(pos)
			evicted++
			m.emit(EventEvicted, pos, LoadshareID{}, 0)
		}
		unlock()
		return true
	})
	return evicted
}

// LoadedChunk returns a handle to the chunk at pos. Purgatory chunks are
// not loaded and yield ErrNotLoaded.
func (m *Manager) LoadedChunk(pos grid.ChunkPos) (ChunkRef, error) {
	if !InBounds(pos) {
		return ChunkRef{}, fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	if !m.structMu.TryRLock() {
		return ChunkRef{}, ErrGloballyLocked
	}
	defer m.structMu.RUnlock()

	res, ok := m.loaded.get(pos)
	if !ok {
		return ChunkRef{}, fmt.Errorf("%w: %v", ErrNotLoaded, pos)
	}
	return ChunkRef{m: m, pos: pos, generation: res.generation}, nil
}

// IsLoaded reports whether the chunk at pos is loaded (purgatory does not
// count).
func (m *Manager) IsLoaded(pos grid.ChunkPos) bool {
	return m.loaded.has(pos)
}

// CachedReasons returns the cached union of load reasons across all
// loadshares for a loaded chunk.
func (m *Manager) CachedReasons(pos grid.ChunkPos) (LoadReasons, error) {
	if !InBounds(pos) {
		return 0, fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	unlock := m.lockLifecycle(pos)
	defer unlock()
	ls, ok := m.loadshares.get(pos)
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrNotLoaded, pos)
	}
	return ls.cached, nil
}

// LoadedCount returns the number of loaded chunks.
func (m *Manager) LoadedCount() int {
	return m.loaded.len()
}

// PurgatoryCount returns the purgatory population.
func (m *Manager) PurgatoryCount() int {
	return m.purgatory.len()
}

// Statuses exposes the status sets maintained from chunk flags.
func (m *Manager) Statuses() *Statuses {
	return &m.statuses
}

// StructuralAccess runs f under the exclusive structural lock. While f
// runs, every regular manager operation fails with ErrGloballyLocked
// instead of observing a half-finished bulk change. Low-level; engine
// internals only.
func (m *Manager) StructuralAccess(f func(s *Structural)) {
	m.structMu.Lock()
	defer m.structMu.Unlock()
	f(&Structural{m: m})
}

// Structural is the view handed to StructuralAccess callbacks.
type Structural struct {
	m *Manager
}

// ForEachLoaded visits every loaded chunk.
func (s *Structural) ForEachLoaded(f func(pos grid.ChunkPos, c *chunk.Chunk) bool) {
	s.m.loaded.forEach(func(pos grid.ChunkPos, res *residency) bool {
		return f(pos, res.chunk)
	})
}

// ForEachPurgatory visits every purgatory chunk.
func (s *Structural) ForEachPurgatory(f func(pos grid.ChunkPos, c *chunk.Chunk) bool) {
	s.m.purgatory.forEach(func(pos grid.ChunkPos, e *purgatoryEntry) bool {
		return f(pos, e.chunk)
	})
}
