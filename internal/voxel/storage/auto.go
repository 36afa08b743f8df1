package storage

import "voxelforge.dev/internal/voxel/grid"

// Fraction of explicitly stored cells at which an Auto container abandons
// its hashmap for a dense array. Numerator/denominator to keep the
// comparison in integers.
const (
	densePromotionNum   = 1
	densePromotionDenom = 3
)

// Auto is a container that picks its backend from occupancy: it starts
// empty (every read answers the default with no allocation), materializes a
// sparse hashmap on the first real write, and promotes itself to a dense
// array once enough cells are occupied that hashing stops paying for
// itself. The backend choice is never observable through Get.
type Auto[T comparable] struct {
	def    T
	sparse *Hashmap[T] // nil once promoted or while empty
	dense  *Dense[T]   // nil until promoted
}

// NewAuto creates an empty auto container whose cells read as def.
func NewAuto[T comparable](def T) *Auto[T] {
	return &Auto[T]{def: def}
}

// NewAutoDense creates an auto container already promoted to dense storage,
// for callers that know the chunk will be fully heterogeneous (e.g. the
// world generator).
func NewAutoDense[T comparable](def T) *Auto[T] {
	return &Auto[T]{def: def, dense: NewDense(def)}
}

func (a *Auto[T]) Bounds() grid.BoundingBox {
	return grid.ChunkBounds
}

// IsDense reports whether the container has promoted to the dense backend.
func (a *Auto[T]) IsDense() bool {
	return a.dense != nil
}

// Default returns the value unwritten cells read as.
func (a *Auto[T]) Default() T {
	return a.def
}

func (a *Auto[T]) Get(pos grid.Point) (T, error) {
	switch {
	case a.dense != nil:
		return a.dense.Get(pos)
	case a.sparse != nil:
		return a.sparse.Get(pos)
	default:
		if !grid.ChunkBounds.Contains(pos) {
			var zero T
			return zero, OutOfBounds(pos)
		}
		return a.def, nil
	}
}

func (a *Auto[T]) Set(pos grid.Point, data T) error {
	if a.dense != nil {
		return a.dense.Set(pos, data)
	}
	if a.sparse == nil {
		if !grid.ChunkBounds.Contains(pos) {
			return OutOfBounds(pos)
		}
		if data == a.def {
			return nil
		}
		a.sparse = NewHashmap(a.def)
	}
	if err := a.sparse.Set(pos, data); err != nil {
		return err
	}
	if a.sparse.Len()*densePromotionDenom >= int(grid.Size*grid.Size*grid.Size)*densePromotionNum {
		a.promote()
	}
	return nil
}

// promote copies the sparse contents into a dense array and drops the map.
func (a *Auto[T]) promote() {
	d := NewDense(a.def)
	for pos, v := range a.sparse.cells {
		// Keys were bounds-checked on insert.
		d.cells[denseOffset(pos)] = v
	}
	a.dense = d
	a.sparse = nil
}
