package interaction

import (
	"math"

	"github.com/ritzau/neural-portfolio/pkg/camera"
	"gonum.org/v1/gonum/spatial/r3"
)

const parallelEpsilon = 1e-9

// Plane is the set of points p where Normal·p + Constant = 0.
type Plane struct {
	Normal   r3.Vec
	Constant float64
}

// PlaneFromNormalAndPoint returns the plane through point with the given normal.
// ok is false for a zero normal.
func PlaneFromNormalAndPoint(normal, point r3.Vec) (Plane, bool) {
	if r3.Norm2(normal) == 0 {
		return Plane{}, false
	}
	n := r3.Unit(normal)
	return Plane{Normal: n, Constant: -r3.Dot(n, point)}, true
}

// Distance returns the signed distance from p to the plane
func (pl Plane) Distance(p r3.Vec) float64 {
	return r3.Dot(pl.Normal, p) + pl.Constant
}

// IntersectRay returns the point where the ray meets the plane. ok is false when
// the ray is parallel to the plane or points away from it.
func (pl Plane) IntersectRay(ray camera.Ray) (r3.Vec, bool) {
	denom := r3.Dot(pl.Normal, ray.Direction)
	if math.Abs(denom) < parallelEpsilon {
		return r3.Vec{}, false
	}
	t := -(r3.Dot(ray.Origin, pl.Normal) + pl.Constant) / denom
	if t < 0 {
		return r3.Vec{}, false
	}
	return ray.At(t), true
}
