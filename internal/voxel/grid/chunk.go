package grid

import "fmt"

// Chunk dimension constants. A chunk is a 16^3 region of full blocks, each of
// which may subdivide into 4^3 microblocks.
const (
	// Size is the full-block edge length of a chunk.
	Size int32 = 16
	// SizeLog2 is log2(Size), for shift-based coordinate splits.
	SizeLog2 = 4
	// Subdivisions is the microblock edge length of one full block.
	Subdivisions int32 = 4
	// MicroSize is the microblock edge length of a chunk.
	MicroSize = Size * Subdivisions
)

// ChunkBounds is the chunk-local bounding box, [0, Size) per axis.
var ChunkBounds = BoundingBox{Min: Splat(0), Max: Splat(Size)}

// ChunkPos identifies a chunk in chunk space (worldspace >> SizeLog2).
type ChunkPos struct {
	X, Y, Z int32
}

func ChunkPosAt(x, y, z int32) ChunkPos {
	return ChunkPos{X: x, Y: y, Z: z}
}

// ChunkPosOf returns the position of the chunk containing the worldspace
// point p.
func ChunkPosOf(p Point) ChunkPos {
	return ChunkPos{
		X: p.X >> SizeLog2,
		Y: p.Y >> SizeLog2,
		Z: p.Z >> SizeLog2,
	}
}

func (c ChunkPos) AsPoint() Point {
	return Point{X: c.X, Y: c.Y, Z: c.Z}
}

// WorldspaceMin is the chunk corner closest to -infinity.
// For chunk [0, 0, 0] this is block [0, 0, 0].
func (c ChunkPos) WorldspaceMin() Point {
	return c.AsPoint().Scale(Size)
}

// WorldspaceMax is the chunk corner closest to +infinity.
// For chunk [0, 0, 0] this is block [15, 15, 15].
func (c ChunkPos) WorldspaceMax() Point {
	return c.AsPoint().Scale(Size).Add(Splat(Size - 1))
}

// Bounds returns the worldspace bounding box of the chunk.
func (c ChunkPos) Bounds() BoundingBox {
	min := c.WorldspaceMin()
	return BoundingBox{Min: min, Max: min.Add(Splat(Size))}
}

// Less gives chunk positions a total order (X, then Y, then Z) so they can be
// used as stable priority-queue and sort keys.
func (c ChunkPos) Less(o ChunkPos) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// DistSq is the squared chunk-space euclidean distance to o.
func (c ChunkPos) DistSq(o ChunkPos) int64 {
	dx := int64(c.X - o.X)
	dy := int64(c.Y - o.Y)
	dz := int64(c.Z - o.Z)
	return dx*dx + dy*dy + dz*dz
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("[%d, %d, %d]", c.X, c.Y, c.Z)
}
