// Package subdiv stores a mixture of full blocks and microblocks within one
// chunk-sized region more efficiently than a flat microblock-resolution
// array. Most cells are plain full blocks; a cell only pays for microblock
// granularity once something actually writes a microblock into it.
//
// The layout is an index grid of 32-bit entries, one per full block. An
// entry either holds the block's value directly, or (when its high bit is
// set) an index into a palette of S^3 microblock cubes. Values are therefore
// limited to 31 bits.
package subdiv

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrOutOfBounds reports an index outside the storage's cubic domain.
	ErrOutOfBounds = errors.New("index out of bounds for subdivided storage")
	// ErrNonFullBlock reports a full-block read of a cell that has been
	// subdivided. Callers wanting the microblocks should fall back to
	// GetMicro.
	ErrNonFullBlock = errors.New("block is subdivided, not a full block")
)

// Value is the set of types storable in a Storage. The high bit of the
// 32-bit representation is reserved for the palette flag, so uint32 values
// must stay below 1<<31; smaller unsigned types always fit.
type Value interface {
	~uint8 | ~uint16 | ~uint32
}

// subdividedBit marks an index entry as pointing into the palette.
const subdividedBit uint32 = 1 << 31

// entry is one slot of the index grid.
type entry uint32

func valueEntry[T Value](v T) entry {
	return entry(uint32(v) &^ subdividedBit)
}

func paletteEntry(idx uint32) entry {
	return entry(idx | subdividedBit)
}

func (e entry) subdivided() bool {
	return uint32(e)&subdividedBit != 0
}

func (e entry) paletteIndex() uint32 {
	return uint32(e) &^ subdividedBit
}

func (e entry) value() uint32 {
	return uint32(e) &^ subdividedBit
}

// cube is one palette slot: the microblocks of a single subdivided block.
type cube[T Value] struct {
	data []T // len sub^3
}

func newCube[T Value](sub int, fill T) cube[T] {
	c := cube[T]{data: make([]T, sub*sub*sub)}
	for i := range c.data {
		c.data[i] = fill
	}
	return c
}

func (c cube[T]) allEqual() bool {
	first := c.data[0]
	for _, v := range c.data[1:] {
		if v != first {
			return false
		}
	}
	return true
}

// Storage is the subdivided block storage for a cubic region of size^3 full
// blocks, each subdividing into sub^3 microblocks. Not safe for concurrent
// use; the owning chunk's lock provides exclusion.
type Storage[T Value] struct {
	size    int // full blocks per axis
	sub     int // microblocks per full-block axis, power of two
	subLog2 uint
	indices []entry // len size^3
	palette []cube[T]
}

// New creates a storage filled with the given value. Panics if sub is not a
// power of two or size*sub exceeds 255, since microblock indices must fit in
// a byte.
func New[T Value](size, sub int, fill T) *Storage[T] {
	return WithCapacity(size, sub, fill, 0)
}

// WithCapacity is New with a preallocated palette, for callers that know
// roughly how many blocks will end up subdivided.
func WithCapacity[T Value](size, sub int, fill T, capacity int) *Storage[T] {
	if size <= 0 || sub <= 0 || size*sub > 255 {
		panic(fmt.Sprintf("subdivided storage dimensions %d*%d exceed 255", size, sub))
	}
	if sub&(sub-1) != 0 {
		panic(fmt.Sprintf("subdivision factor %d is not a power of two", sub))
	}

	s := &Storage[T]{
		size:    size,
		sub:     sub,
		subLog2: uint(bits.TrailingZeros(uint(sub))),
		indices: make([]entry, size*size*size),
		palette: make([]cube[T], 0, capacity),
	}
	fe := valueEntry(fill)
	for i := range s.indices {
		s.indices[i] = fe
	}
	return s
}

// Size returns the full-block edge length.
func (s *Storage[T]) Size() int {
	return s.size
}

// MicroSize returns the microblock edge length (size * sub).
func (s *Storage[T]) MicroSize() int {
	return s.size << s.subLog2
}

// PaletteLen returns the number of allocated palette cubes, including any
// leaked by full-block overwrites that Cleanup has not reclaimed yet.
func (s *Storage[T]) PaletteLen() int {
	return len(s.palette)
}

func (s *Storage[T]) blockOffset(idx [3]uint8) (int, bool) {
	x, y, z := int(idx[0]), int(idx[1]), int(idx[2])
	if x >= s.size || y >= s.size || z >= s.size {
		return 0, false
	}
	return (x*s.size+y)*s.size + z, true
}

// blockIndex maps a microblock index to its owning full-block index.
// sub is a power of two, so this is a shift per component.
func (s *Storage[T]) blockIndex(mb [3]uint8) [3]uint8 {
	return [3]uint8{
		mb[0] >> s.subLog2,
		mb[1] >> s.subLog2,
		mb[2] >> s.subLog2,
	}
}

// localOffset maps a microblock index to its flat offset within the owning
// block's palette cube.
func (s *Storage[T]) localOffset(mb [3]uint8) int {
	mask := uint8(s.sub - 1)
	x := int(mb[0] & mask)
	y := int(mb[1] & mask)
	z := int(mb[2] & mask)
	return (x<<s.subLog2+y)<<s.subLog2 + z
}

// Get returns the full-block value at idx. Fails with ErrNonFullBlock if the
// cell has been subdivided; microblocks are never silently flattened.
func (s *Storage[T]) Get(idx [3]uint8) (T, error) {
	off, ok := s.blockOffset(idx)
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrOutOfBounds, idx)
	}
	e := s.indices[off]
	if e.subdivided() {
		return 0, fmt.Errorf("%w: %v", ErrNonFullBlock, idx)
	}
	return T(e.value()), nil
}

// Set writes a full-block value at idx. If the cell was subdivided its
// palette cube is leaked until the next Cleanup.
func (s *Storage[T]) Set(idx [3]uint8, value T) error {
	off, ok := s.blockOffset(idx)
	if !ok {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, idx)
	}
	s.indices[off] = valueEntry(value)
	return nil
}

// GetMicro returns the value at microblock resolution. For cells that were
// never subdivided this is the full block's value broadcast to all of its
// microblocks.
func (s *Storage[T]) GetMicro(mb [3]uint8) (T, error) {
	off, ok := s.blockOffset(s.blockIndex(mb))
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrOutOfBounds, mb)
	}
	e := s.indices[off]
	if !e.subdivided() {
		return T(e.value()), nil
	}
	return s.palette[e.paletteIndex()].data[s.localOffset(mb)], nil
}

// SetMicro writes a single microblock. Writing to an unsubdivided cell
// promotes it: a palette cube is allocated, filled with the cell's previous
// full-block value, and the one microblock is overwritten. Writing the
// cell's existing value to an unsubdivided cell is a no-op.
func (s *Storage[T]) SetMicro(mb [3]uint8, value T) error {
	off, ok := s.blockOffset(s.blockIndex(mb))
	if !ok {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, mb)
	}
	e := s.indices[off]

	if e.subdivided() {
		s.palette[e.paletteIndex()].data[s.localOffset(mb)] = value
		return nil
	}

	old := T(e.value())
	if value == old {
		return nil
	}

	c := newCube(s.sub, old)
	c.data[s.localOffset(mb)] = value
	s.indices[off] = paletteEntry(uint32(len(s.palette)))
	s.palette = append(s.palette, c)
	return nil
}

// Cleanup compacts the palette: cubes whose microblocks are all equal are
// merged back into plain value entries, and cubes leaked by full-block
// overwrites are dropped. Returns the number of palette slots reclaimed.
func (s *Storage[T]) Cleanup() int {
	before := len(s.palette)
	newPalette := make([]cube[T], 0, len(s.palette))

	for i, e := range s.indices {
		if !e.subdivided() {
			continue
		}
		c := s.palette[e.paletteIndex()]
		if c.allEqual() {
			s.indices[i] = valueEntry(c.data[0])
			continue
		}
		s.indices[i] = paletteEntry(uint32(len(newPalette)))
		newPalette = append(newPalette, c)
	}

	s.palette = newPalette
	return before - len(newPalette)
}
