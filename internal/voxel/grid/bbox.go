package grid

import "fmt"

// BoundingBox is an axis-aligned integer box. Min is inclusive, Max is
// exclusive, mirroring how chunk-local coordinates address [0, Size).
type BoundingBox struct {
	Min Point
	Max Point
}

// NewBoundingBox builds a box from an ordered pair of corners.
// Panics if min > max on any axis; an unordered pair is a construction bug,
// use BoundingBoxSpanning for corners of unknown order.
func NewBoundingBox(min, max Point) BoundingBox {
	if !min.AllLE(max) {
		panic(fmt.Sprintf("bounding box min %v exceeds max %v", min, max))
	}
	return BoundingBox{Min: min, Max: max}
}

// BoundingBoxSpanning builds the box spanning two arbitrary corners,
// normalizing per component.
func BoundingBoxSpanning(a, b Point) BoundingBox {
	min := Point{X: min32(a.X, b.X), Y: min32(a.Y, b.Y), Z: min32(a.Z, b.Z)}
	max := Point{X: max32(a.X, b.X), Y: max32(a.Y, b.Y), Z: max32(a.Z, b.Z)}
	return BoundingBox{Min: min, Max: max}
}

// Contains reports whether p is inside the box. Max is exclusive.
func (b BoundingBox) Contains(p Point) bool {
	return p.AllGE(b.Min) && p.AllLT(b.Max)
}

// ContainsInclusive is Contains with an inclusive Max.
func (b BoundingBox) ContainsInclusive(p Point) bool {
	return p.AllGE(b.Min) && p.AllLE(b.Max)
}

// Dims returns the side lengths of the box.
func (b BoundingBox) Dims() Point {
	return b.Max.Sub(b.Min)
}

// Volume returns the number of lattice cells inside the box.
func (b BoundingBox) Volume() int64 {
	d := b.Dims()
	return int64(d.X) * int64(d.Y) * int64(d.Z)
}

// IsChunk reports whether this box is exactly the chunk-local bounding box.
func (b BoundingBox) IsChunk() bool {
	return b == ChunkBounds
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("%v..%v", b.Min, b.Max)
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
