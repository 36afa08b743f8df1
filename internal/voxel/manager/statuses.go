package manager

import (
	"voxelforge.dev/internal/voxel/grid"

	"voxelforge.dev/internal/voxel/chunk"
)

// Statuses are the engine-facing work queues derived from chunk flags:
// which chunks need remeshing and which are known fully opaque. They are
// kept in sync by ChunkRef.UpdateFlags and cleared when a chunk leaves the
// loaded set, so consumers poll sets instead of scanning every chunk.
type Statuses struct {
	remesh *posSet
	solid  *posSet
}

// NeedsRemesh returns a snapshot of the chunks flagged for remeshing.
func (s *Statuses) NeedsRemesh() []grid.ChunkPos {
	return s.remesh.all()
}

// Solid returns a snapshot of the chunks flagged fully opaque.
func (s *Statuses) Solid() []grid.ChunkPos {
	return s.solid.all()
}

// RemeshCount returns the remesh queue length.
func (s *Statuses) RemeshCount() int {
	return s.remesh.len()
}

// apply reconciles the sets with a chunk's current flags.
func (s *Statuses) apply(pos grid.ChunkPos, flags chunk.Flags) {
	if flags&chunk.FlagRemesh != 0 {
		s.remesh.add(pos)
	} else {
		s.remesh.remove(pos)
	}
	if flags&chunk.FlagOpaque != 0 {
		s.solid.add(pos)
	} else {
		s.solid.remove(pos)
	}
}

// drop forgets a position entirely, for chunks leaving the loaded set.
func (s *Statuses) drop(pos grid.ChunkPos) {
	s.remesh.remove(pos)
	s.solid.remove(pos)
}
