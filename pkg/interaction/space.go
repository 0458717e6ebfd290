package interaction

import "gonum.org/v1/gonum/spatial/r3"

// Space maps between the graph's local coordinates and world coordinates. The zero
// value is the identity.
type Space struct {
	Origin r3.Vec  `json:"origin"`
	Scale  float64 `json:"scale"`
}

func (s Space) scale() float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

// World converts a local position to world space
func (s Space) World(local r3.Vec) r3.Vec {
	return r3.Add(s.Origin, r3.Scale(s.scale(), local))
}

// Local converts a world position to local space
func (s Space) Local(world r3.Vec) r3.Vec {
	return r3.Scale(1/s.scale(), r3.Sub(world, s.Origin))
}
