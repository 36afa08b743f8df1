// Package grid holds the integer spatial primitives shared by every storage
// layer: points, bounding boxes, chunk positions and face/axis enumerations.
package grid

import "fmt"

// Point is a position on the integer voxel lattice.
type Point struct {
	X, Y, Z int32
}

func Pt(x, y, z int32) Point {
	return Point{X: x, Y: y, Z: z}
}

// Splat returns a point with all components set to v.
func Splat(v int32) Point {
	return Point{X: v, Y: v, Z: v}
}

func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

func (p Point) Scale(s int32) Point {
	return Point{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// AllGE reports whether every component of p is >= the matching component of q.
func (p Point) AllGE(q Point) bool {
	return p.X >= q.X && p.Y >= q.Y && p.Z >= q.Z
}

// AllLT reports whether every component of p is < the matching component of q.
func (p Point) AllLT(q Point) bool {
	return p.X < q.X && p.Y < q.Y && p.Z < q.Z
}

// AllLE reports whether every component of p is <= the matching component of q.
func (p Point) AllLE(q Point) bool {
	return p.X <= q.X && p.Y <= q.Y && p.Z <= q.Z
}

func (p Point) String() string {
	return fmt.Sprintf("[%d, %d, %d]", p.X, p.Y, p.Z)
}

// FloorDiv divides a by b rounding towards negative infinity. b must be > 0.
func FloorDiv(a, b int32) int32 {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

// Mod returns the non-negative remainder of a/b. b must be > 0.
func Mod(a, b int32) int32 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
