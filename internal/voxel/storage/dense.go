package storage

import "voxelforge.dev/internal/voxel/grid"

// Dense stores every cell of a chunk-shaped region in a flat array.
// O(1) access with no hashing; the right choice once a chunk is known to
// hold heterogeneous data throughout.
type Dense[T any] struct {
	cells []T // len Size^3, x-major
}

// NewDense creates a dense chunk storage with every cell set to fill.
func NewDense[T any](fill T) *Dense[T] {
	d := &Dense[T]{cells: make([]T, grid.Size*grid.Size*grid.Size)}
	for i := range d.cells {
		d.cells[i] = fill
	}
	return d
}

func denseOffset(pos grid.Point) int {
	return int((pos.X*grid.Size+pos.Y)*grid.Size + pos.Z)
}

func (d *Dense[T]) Bounds() grid.BoundingBox {
	return grid.ChunkBounds
}

func (d *Dense[T]) Get(pos grid.Point) (T, error) {
	if !grid.ChunkBounds.Contains(pos) {
		var zero T
		return zero, OutOfBounds(pos)
	}
	return d.cells[denseOffset(pos)], nil
}

func (d *Dense[T]) Set(pos grid.Point, data T) error {
	if !grid.ChunkBounds.Contains(pos) {
		return OutOfBounds(pos)
	}
	d.cells[denseOffset(pos)] = data
	return nil
}
