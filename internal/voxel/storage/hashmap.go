package storage

import "voxelforge.dev/internal/voxel/grid"

// Hashmap stores only the cells that differ from a default value. Absent
// keys implicitly read as the default, which makes this the cheapest backend
// for mostly-empty chunks (air).
type Hashmap[T comparable] struct {
	cells map[grid.Point]T
	def   T
}

// NewHashmap creates a sparse chunk storage whose unwritten cells read as
// def.
func NewHashmap[T comparable](def T) *Hashmap[T] {
	return &Hashmap[T]{
		cells: make(map[grid.Point]T),
		def:   def,
	}
}

func (h *Hashmap[T]) Bounds() grid.BoundingBox {
	return grid.ChunkBounds
}

// Len returns the number of explicitly stored cells.
func (h *Hashmap[T]) Len() int {
	return len(h.cells)
}

func (h *Hashmap[T]) Get(pos grid.Point) (T, error) {
	if !grid.ChunkBounds.Contains(pos) {
		var zero T
		return zero, OutOfBounds(pos)
	}
	if v, ok := h.cells[pos]; ok {
		return v, nil
	}
	return h.def, nil
}

func (h *Hashmap[T]) Set(pos grid.Point, data T) error {
	if !grid.ChunkBounds.Contains(pos) {
		return OutOfBounds(pos)
	}
	// Storing the default explicitly would defeat the sparsity.
	if data == h.def {
		delete(h.cells, pos)
		return nil
	}
	h.cells[pos] = data
	return nil
}
