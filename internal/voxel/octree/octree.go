// Package octree implements a sparse cubic octree over a domain of side
// 2^depth. Large regions sharing one value cost a single leaf; reads and
// writes are O(depth).
package octree

import (
	"errors"
	"fmt"
)

// MaxDepth is the largest supported tree depth. A depth-8 tree already spans
// a 256^3 domain, which covers a chunk at microblock resolution four times
// over.
const MaxDepth uint8 = 8

// ErrOutOfDomain is returned when a coordinate does not fit the tree's cubic
// domain.
var ErrOutOfDomain = errors.New("position out of octree domain")

// Pos is a position validated against a specific tree depth. Constructing a
// Pos is the bounds check; Get and Insert trust it and only verify that it
// was built for a tree of the same depth.
type Pos struct {
	x, y, z uint32
	depth   uint8
}

// PosAt validates (x, y, z) against the cubic domain of side 2^depth and
// binds the resulting position to that depth.
func PosAt(depth uint8, x, y, z uint32) (Pos, error) {
	dim := DomainSide(depth)
	if x >= dim || y >= dim || z >= dim {
		return Pos{}, fmt.Errorf("%w: [%d, %d, %d] at depth %d", ErrOutOfDomain, x, y, z, depth)
	}
	return Pos{x: x, y: y, z: z, depth: depth}, nil
}

// octant decodes which child of a node at the given level contains the
// position. Level 0 inspects the highest relevant bit of each coordinate.
func (p Pos) octant(level uint8) int {
	shift := p.depth - 1 - level
	x := (p.x >> shift) & 1
	y := (p.y >> shift) & 1
	z := (p.z >> shift) & 1
	return int(x<<2 | y<<1 | z)
}

// DomainSide returns the side length of the cubic domain at the given depth.
func DomainSide(depth uint8) uint32 {
	return 1 << depth
}

// node is either a leaf carrying a value or a branch with 8 children.
// children == nil marks a leaf.
type node[T any] struct {
	value    T
	children *[8]*node[T]
}

func (n *node[T]) isLeaf() bool {
	return n.children == nil
}

// split turns a leaf into a branch of 8 leaves carrying the old value.
func (n *node[T]) split() {
	var children [8]*node[T]
	for i := range children {
		children[i] = &node[T]{value: n.value}
	}
	n.children = &children
}

// Octree is a sparse 8-way spatial tree. The zero value is not usable; use
// New.
type Octree[T any] struct {
	root  *node[T]
	depth uint8
}

// New creates an all-default tree: a single root leaf carrying def.
// Panics if depth is zero or above MaxDepth; the depth bound is a
// construction-time invariant, not a runtime condition.
func New[T any](depth uint8, def T) *Octree[T] {
	if depth == 0 || depth > MaxDepth {
		panic(fmt.Sprintf("octree depth %d outside [1, %d]", depth, MaxDepth))
	}
	return &Octree[T]{
		root:  &node[T]{value: def},
		depth: depth,
	}
}

// Depth returns the tree's maximum depth.
func (t *Octree[T]) Depth() uint8 {
	return t.depth
}

// Pos validates a coordinate triple for this tree's domain.
func (t *Octree[T]) Pos(x, y, z uint32) (Pos, error) {
	return PosAt(t.depth, x, y, z)
}

func (t *Octree[T]) checkPos(p Pos) {
	if p.depth != t.depth {
		panic(fmt.Sprintf("position bound to depth %d used with depth-%d octree", p.depth, t.depth))
	}
}

// Get returns the value of the nearest leaf covering p: the written value if
// p was ever inserted, otherwise the value of the coarser leaf the position
// falls under (the construction default for untouched regions).
func (t *Octree[T]) Get(p Pos) T {
	t.checkPos(p)

	cur := t.root
	for level := uint8(0); level < t.depth; level++ {
		if cur.isLeaf() {
			break
		}
		cur = cur.children[p.octant(level)]
	}
	return cur.value
}

// Insert writes value at the maximum depth under p, splitting leaves along
// the path as needed.
func (t *Octree[T]) Insert(p Pos, value T) {
	t.checkPos(p)

	cur := t.root
	for level := uint8(0); level < t.depth; level++ {
		if cur.isLeaf() {
			cur.split()
		}
		cur = cur.children[p.octant(level)]
	}
	cur.value = value
}

// InsertRegion writes value across the whole bounding region covered by the
// node at the given level along p's path. Level 0 fills the entire tree.
// Any finer detail previously stored under that region is discarded.
func (t *Octree[T]) InsertRegion(p Pos, level uint8, value T) {
	t.checkPos(p)
	if level > t.depth {
		panic(fmt.Sprintf("region level %d exceeds octree depth %d", level, t.depth))
	}

	cur := t.root
	for l := uint8(0); l < level; l++ {
		if cur.isLeaf() {
			cur.split()
		}
		cur = cur.children[p.octant(l)]
	}
	cur.value = value
	cur.children = nil
}

// NodeCount walks the tree and returns the total number of nodes, mostly
// useful for asserting sparsity in tests and benchmarks.
func (t *Octree[T]) NodeCount() int {
	return countNodes(t.root)
}

func countNodes[T any](n *node[T]) int {
	if n.isLeaf() {
		return 1
	}
	total := 1
	for _, c := range n.children {
		total += countNodes(c)
	}
	return total
}
