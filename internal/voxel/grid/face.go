package grid

// Axis is one of the three lattice axes.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Face is one of the six axis-aligned faces of a cube.
type Face uint8

const (
	FaceEast   Face = iota // +X
	FaceWest               // -X
	FaceTop                // +Y
	FaceBottom             // -Y
	FaceNorth              // +Z
	FaceSouth              // -Z
)

// Faces lists all six faces, for neighbor iteration.
var Faces = [6]Face{FaceEast, FaceWest, FaceTop, FaceBottom, FaceNorth, FaceSouth}

var faceNormals = [6]Point{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

// Normal returns the outward unit normal of the face.
func (f Face) Normal() Point {
	return faceNormals[f]
}

// Axis returns the axis the face is perpendicular to.
func (f Face) Axis() Axis {
	return Axis(f >> 1)
}

// Opposite returns the face on the other side of the cube.
func (f Face) Opposite() Face {
	return f ^ 1
}

func (f Face) String() string {
	switch f {
	case FaceEast:
		return "east"
	case FaceWest:
		return "west"
	case FaceTop:
		return "top"
	case FaceBottom:
		return "bottom"
	case FaceNorth:
		return "north"
	default:
		return "south"
	}
}
