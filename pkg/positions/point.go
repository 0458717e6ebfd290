package positions

import "gonum.org/v1/gonum/spatial/r3"

// Point is the JSON form of a position. r3.Vec has no tags and would encode as
// {"X","Y","Z"}.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PointOf converts v to its JSON form
func PointOf(v r3.Vec) Point {
	return Point{X: v.X, Y: v.Y, Z: v.Z}
}

// Vec converts p back to a vector
func (p Point) Vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// Points converts a position map to its JSON form
func Points(m map[string]r3.Vec) map[string]Point {
	out := make(map[string]Point, len(m))
	for id, v := range m {
		out[id] = PointOf(v)
	}
	return out
}
