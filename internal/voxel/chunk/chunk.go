// Package chunk bundles a chunk's voxel storage layers — transparency flags
// and block models — behind one composite lock, and exposes the scoped
// access pattern every consumer (mesh builders, generators, persistence)
// goes through.
package chunk

import (
	"sync"
	"sync/atomic"

	"voxelforge.dev/internal/voxel/grid"
	"voxelforge.dev/internal/voxel/storage"
)

// Transparency classifies a voxel for meshing and occlusion.
type Transparency uint8

const (
	Transparent Transparency = iota
	Opaque
)

func (t Transparency) String() string {
	if t == Opaque {
		return "opaque"
	}
	return "transparent"
}

// BlockModel references the visual model of a voxel. The zero value means
// the voxel has no model (air-like).
type BlockModel struct {
	ID       uint32
	Rotation uint8
}

// IsZero reports whether the model is the "no model" marker.
func (m BlockModel) IsZero() bool {
	return m == BlockModel{}
}

// Block is the combined read type: both layers are always read together
// under one lock acquisition, since mesh building needs them simultaneously
// and separate locks would risk torn reads.
type Block struct {
	Transparency Transparency
	Model        BlockModel
}

// Flags describe engine-visible properties of a chunk.
type Flags uint32

const (
	// FlagGenerating marks a chunk currently being populated by the world
	// generator.
	FlagGenerating Flags = 1 << iota
	// FlagRemesh marks a chunk that was updated and should be remeshed.
	FlagRemesh
	// FlagRemeshNeighbors marks a chunk whose neighbors should be remeshed.
	FlagRemeshNeighbors
	// FlagFreshlyGenerated marks a chunk that has never been meshed.
	FlagFreshlyGenerated
	// FlagPrimordial marks a chunk that has not been populated yet and is
	// acting as a placeholder until the engine processes it.
	FlagPrimordial
	// FlagOpaque hints that the chunk is entirely opaque. May be a false
	// negative: a chunk can be opaque without carrying the flag.
	FlagOpaque
	// FlagTransparent hints that the chunk is entirely transparent. Same
	// false-negative caveat as FlagOpaque.
	FlagTransparent
)

// Has reports whether all bits of q are set.
func (f Flags) Has(q Flags) bool {
	return f&q == q
}

// Remove returns f without the bits of q.
func (f Flags) Remove(q Flags) Flags {
	return f &^ q
}

// Chunk owns the voxel data of one 16^3 region. Both storage layers sit
// behind a single composite RWMutex so that a read of the combined Block
// type can never tear.
type Chunk struct {
	pos grid.ChunkPos

	mu           sync.RWMutex
	transparency *storage.Auto[Transparency]
	models       *storage.Auto[BlockModel]

	flagsMu sync.RWMutex
	flags   Flags

	changed atomic.Bool
}

// New creates a chunk whose unwritten cells read as the given default block.
func New(pos grid.ChunkPos, def Block, initial Flags) *Chunk {
	return &Chunk{
		pos:          pos,
		transparency: storage.NewAuto(def.Transparency),
		models:       storage.NewAuto(def.Model),
		flags:        initial,
	}
}

// Pos returns the chunk's position in chunk space.
func (c *Chunk) Pos() grid.ChunkPos {
	return c.pos
}

// Flags returns the chunk's current flags.
func (c *Chunk) Flags() Flags {
	c.flagsMu.RLock()
	defer c.flagsMu.RUnlock()
	return c.flags
}

// SetFlags overwrites the chunk's flags. Prefer UpdateFlags to change
// specific bits.
func (c *Chunk) SetFlags(f Flags) {
	c.flagsMu.Lock()
	c.flags = f
	c.flagsMu.Unlock()
}

// UpdateFlags calls f with the current flags and stores the result, all
// under the flag lock.
func (c *Chunk) UpdateFlags(f func(Flags) Flags) Flags {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()
	c.flags = f(c.flags)
	return c.flags
}

// Changed reports whether the chunk has had write access acquired since the
// last ClearChanged. This is coarse dirty tracking: it says "something may
// have changed", not which voxel.
func (c *Chunk) Changed() bool {
	return c.changed.Load()
}

// MarkChanged raises the changed flag.
func (c *Chunk) MarkChanged() {
	c.changed.Store(true)
}

// ClearChanged lowers the changed flag, typically after a consumer has
// rebuilt whatever it derives from the chunk.
func (c *Chunk) ClearChanged() {
	c.changed.Store(false)
}

// WithReadAccess acquires the chunk's shared lock, invokes f with a
// read-only view over both layers, and releases the lock on every exit
// path.
func (c *Chunk) WithReadAccess(f func(ReadAccess) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return f(ReadAccess{c: c})
}

// WithAccess acquires the chunk's exclusive lock, marks the chunk changed,
// and invokes f with a read/write view over both layers. The changed flag
// is raised for any write acquisition, even if f ends up writing nothing.
func (c *Chunk) WithAccess(f func(Access) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed.Store(true)
	return f(Access{ReadAccess{c: c}})
}

// ReadAccess is a view over both storage layers, valid only inside the
// closure it was handed to.
type ReadAccess struct {
	c *Chunk
}

func (a ReadAccess) Bounds() grid.BoundingBox {
	return grid.ChunkBounds
}

// Get reads both layers at pos as one combined block.
func (a ReadAccess) Get(pos grid.Point) (Block, error) {
	t, err := a.c.transparency.Get(pos)
	if err != nil {
		return Block{}, err
	}
	m, err := a.c.models.Get(pos)
	if err != nil {
		return Block{}, err
	}
	return Block{Transparency: t, Model: m}, nil
}

// Access extends ReadAccess with writes.
type Access struct {
	ReadAccess
}

// Set writes both layers at pos.
func (a Access) Set(pos grid.Point, b Block) error {
	if err := a.c.transparency.Set(pos, b.Transparency); err != nil {
		return err
	}
	return a.c.models.Set(pos, b.Model)
}
