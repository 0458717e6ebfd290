package camera

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// NDC is a pointer position in normalized device coordinates, both axes in [-1,1]
// with +Y up.
type NDC struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the euclidean distance between two NDC points
func (n NDC) Distance(o NDC) float64 {
	return math.Hypot(n.X-o.X, n.Y-o.Y)
}

// Ray is a half-line in world space. Direction is unit length.
type Ray struct {
	Origin    r3.Vec
	Direction r3.Vec
}

// At returns the point at parameter t along the ray
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Direction))
}

// Projection is a perspective projection.
type Projection struct {
	FOV    float64 `json:"fov" koanf:"fov"`       // vertical field of view in degrees
	Aspect float64 `json:"aspect" koanf:"aspect"` // width / height
}

// DefaultProjection matches a 75 degree camera on a 16:9 viewport.
var DefaultProjection = Projection{FOV: 75, Aspect: 16.0 / 9.0}

var worldUp = r3.Vec{Y: 1}

// basis returns the forward, right and up vectors of a pose. ok is false when the
// camera position coincides with its look-at point.
func basis(p Pose) (forward, right, up r3.Vec, ok bool) {
	f := r3.Sub(p.LookAt, p.Position)
	if r3.Norm2(f) == 0 {
		return r3.Vec{}, r3.Vec{}, r3.Vec{}, false
	}
	forward = r3.Unit(f)

	r := r3.Cross(forward, worldUp)
	if r3.Norm2(r) < 1e-12 {
		// Looking straight up or down.
		r = r3.Cross(forward, r3.Vec{Z: -1})
	}
	right = r3.Unit(r)
	up = r3.Cross(right, forward)
	return forward, right, up, true
}

// ViewDirection returns the unit direction the camera looks in.
func ViewDirection(p Pose) (r3.Vec, bool) {
	f, _, _, ok := basis(p)
	return f, ok
}

func (pr Projection) halfHeight() float64 {
	return math.Tan(pr.FOV * math.Pi / 360)
}

// Ray returns the world-space ray from the camera through the pointer at ndc.
func (pr Projection) Ray(p Pose, ndc NDC) (Ray, bool) {
	forward, right, up, ok := basis(p)
	if !ok {
		return Ray{}, false
	}
	h := pr.halfHeight()
	dir := r3.Add(forward, r3.Add(
		r3.Scale(ndc.X*h*pr.Aspect, right),
		r3.Scale(ndc.Y*h, up),
	))
	return Ray{Origin: p.Position, Direction: r3.Unit(dir)}, true
}

// Project maps a world point to NDC. ok is false for points at or behind the camera.
func (pr Projection) Project(p Pose, world r3.Vec) (NDC, bool) {
	forward, right, up, ok := basis(p)
	if !ok {
		return NDC{}, false
	}
	rel := r3.Sub(world, p.Position)
	depth := r3.Dot(rel, forward)
	if depth <= 0 {
		return NDC{}, false
	}
	h := pr.halfHeight()
	return NDC{
		X: r3.Dot(rel, right) / (depth * h * pr.Aspect),
		Y: r3.Dot(rel, up) / (depth * h),
	}, true
}
