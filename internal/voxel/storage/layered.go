package storage

import "voxelforge.dev/internal/voxel/grid"

// layer is one horizontal slice of a Layered storage. A layer is either
// uniform (every cell reads as value, cells nil) or materialized (cells
// holds all Size^2 values and value is unused).
type layer[T comparable] struct {
	value T
	cells []T // nil while uniform, len Size^2 otherwise
}

// Layered optimizes the common case of horizontally uniform terrain: a
// homogeneous Y-layer costs one value instead of Size^2 cells, and only
// layers that actually become heterogeneous are materialized.
type Layered[T comparable] struct {
	layers [grid.Size]layer[T]
}

// NewLayered creates a layered chunk storage with every layer uniformly
// reading as fill.
func NewLayered[T comparable](fill T) *Layered[T] {
	l := &Layered[T]{}
	for y := range l.layers {
		l.layers[y].value = fill
	}
	return l
}

func layerOffset(pos grid.Point) int {
	return int(pos.X*grid.Size + pos.Z)
}

func (l *Layered[T]) Bounds() grid.BoundingBox {
	return grid.ChunkBounds
}

// UniformLayers returns how many layers are currently stored as a single
// value, for occupancy heuristics and tests.
func (l *Layered[T]) UniformLayers() int {
	n := 0
	for y := range l.layers {
		if l.layers[y].cells == nil {
			n++
		}
	}
	return n
}

// SetLayer overwrites an entire Y-layer with one value, collapsing it back
// to the uniform representation.
func (l *Layered[T]) SetLayer(y int32, value T) error {
	if y < 0 || y >= grid.Size {
		return OutOfBounds(grid.Pt(0, y, 0))
	}
	l.layers[y] = layer[T]{value: value}
	return nil
}

// Compact collapses materialized layers whose cells have all become equal
// back into uniform layers. Returns the number of layers collapsed.
func (l *Layered[T]) Compact() int {
	collapsed := 0
	for y := range l.layers {
		cells := l.layers[y].cells
		if cells == nil {
			continue
		}
		uniform := true
		for _, v := range cells[1:] {
			if v != cells[0] {
				uniform = false
				break
			}
		}
		if uniform {
			l.layers[y] = layer[T]{value: cells[0]}
			collapsed++
		}
	}
	return collapsed
}

func (l *Layered[T]) Get(pos grid.Point) (T, error) {
	if !grid.ChunkBounds.Contains(pos) {
		var zero T
		return zero, OutOfBounds(pos)
	}
	ly := &l.layers[pos.Y]
	if ly.cells == nil {
		return ly.value, nil
	}
	return ly.cells[layerOffset(pos)], nil
}

func (l *Layered[T]) Set(pos grid.Point, data T) error {
	if !grid.ChunkBounds.Contains(pos) {
		return OutOfBounds(pos)
	}
	ly := &l.layers[pos.Y]
	if ly.cells == nil {
		// Writing the layer's own value keeps it uniform.
		if data == ly.value {
			return nil
		}
		cells := make([]T, grid.Size*grid.Size)
		for i := range cells {
			cells[i] = ly.value
		}
		ly.cells = cells
	}
	ly.cells[layerOffset(pos)] = data
	return nil
}
