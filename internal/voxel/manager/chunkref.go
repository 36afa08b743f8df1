package manager

import (
	"fmt"

	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
)

// ChunkRef is a generation-checked handle to a managed chunk. Holding a ref
// does not keep the chunk loaded: every use re-validates against the
// manager, and a ref whose chunk has been freed fails with ErrUnloaded
// instead of resurrecting stale data. Refs survive a trip through purgatory
// and back, since the chunk's identity (its generation) is preserved there.
//
// Refs are cheap values; copy them freely.
type ChunkRef struct {
	m          *Manager
	pos        grid.ChunkPos
	generation uint64
}

// Pos returns the position the ref was created for.
func (r ChunkRef) Pos() grid.ChunkPos {
	return r.pos
}

// upgrade resolves the ref to the live chunk, checking both the loaded set
// and purgatory. A generation mismatch means the position was freed and
// reloaded since the ref was created; the ref is then permanently dead.
func (r ChunkRef) upgrade() (*chunk.Chunk, error) {
	if r.m == nil {
		return nil, fmt.Errorf("%w: zero ref", ErrUnloaded)
	}
	if res, ok := r.m.loaded.get(r.pos); ok && res.generation == r.generation {
		return res.chunk, nil
	}
	if e, ok := r.m.purgatory.get(r.pos); ok && e.generation == r.generation {
		return e.chunk, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnloaded, r.pos)
}

// Valid reports whether the ref still resolves to a live chunk.
func (r ChunkRef) Valid() bool {
	_, err := r.upgrade()
	return err == nil
}

// WithReadAccess resolves the ref and runs f under the chunk's shared
// content lock.
func (r ChunkRef) WithReadAccess(f func(chunk.ReadAccess) error) error {
	c, err := r.upgrade()
	if err != nil {
		return err
	}
	return c.WithReadAccess(f)
}

// WithAccess resolves the ref and runs f under the chunk's exclusive
// content lock. The chunk is marked changed for any write acquisition.
func (r ChunkRef) WithAccess(f func(chunk.Access) error) error {
	c, err := r.upgrade()
	if err != nil {
		return err
	}
	return c.WithAccess(f)
}

// Flags returns the chunk's current flags.
func (r ChunkRef) Flags() (chunk.Flags, error) {
	c, err := r.upgrade()
	if err != nil {
		return 0, err
	}
	return c.Flags(), nil
}

// UpdateFlags applies f to the chunk's flags and reconciles the manager's
// status sets with the result. A ref resolving into purgatory still updates
// the flags but leaves the status sets alone: unloading already dropped the
// position from them, and revival re-applies the flags it finds.
func (r ChunkRef) UpdateFlags(f func(chunk.Flags) chunk.Flags) (chunk.Flags, error) {
	c, err := r.upgrade()
	if err != nil {
		return 0, err
	}
	flags := c.UpdateFlags(f)

	unlock := r.m.lockLifecycle(r.pos)
	if res, ok := r.m.loaded.get(r.pos); ok && res.generation == r.generation {
		r.m.statuses.apply(r.pos, flags)
	}
	unlock()
	return flags, nil
}

// Changed reports the chunk's coarse dirty flag.
func (r ChunkRef) Changed() (bool, error) {
	c, err := r.upgrade()
	if err != nil {
		return false, err
	}
	return c.Changed(), nil
}

// TreatAsChanged raises the chunk's dirty flag without touching its data,
// forcing downstream consumers (meshing, persistence) to re-derive.
func (r ChunkRef) TreatAsChanged() error {
	c, err := r.upgrade()
	if err != nil {
		return err
	}
	c.MarkChanged()
	return nil
}

// ClearChanged lowers the chunk's dirty flag.
func (r ChunkRef) ClearChanged() error {
	c, err := r.upgrade()
	if err != nil {
		return err
	}
	c.ClearChanged()
	return nil
}
