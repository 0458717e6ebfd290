package camera

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

const frame = 16 * time.Millisecond

func TestEaseInOutCubic(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.25, 0.0625},
		{0.5, 0.5},
		{0.75, 0.9375},
		{1, 1},
		{2, 1},
	}
	for _, tt := range tests {
		if got := EaseInOutCubic(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("EaseInOutCubic(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}

	prev := 0.0
	for i := 1; i <= 100; i++ {
		v := EaseInOutCubic(float64(i) / 100)
		if v <= prev {
			t.Fatalf("EaseInOutCubic not increasing at %d", i)
		}
		prev = v
	}
}

func TestNavigateTargetsOffset(t *testing.T) {
	c := NewController(Pose{Position: r3.Vec{Z: 30}}, nil)
	anim := c.NavigateTo(r3.Vec{X: 4, Y: 1, Z: -2})

	want := r3.Vec{X: 4, Y: 3, Z: 6}
	if anim.Target.Position != want {
		t.Errorf("target position = %v, want %v", anim.Target.Position, want)
	}
	if anim.Target.LookAt != (r3.Vec{X: 4, Y: 1, Z: -2}) {
		t.Errorf("target look-at = %v", anim.Target.LookAt)
	}
	if c.State() != Transiting {
		t.Errorf("State() = %v, want transiting", c.State())
	}
}

func TestDurationClamped(t *testing.T) {
	c := NewController(Pose{}, nil)
	tests := []struct {
		distance float64
		want     time.Duration
	}{
		{0, time.Second},
		{5, time.Second},
		{15, 1500 * time.Millisecond},
		{25, 2500 * time.Millisecond},
		{100, 2500 * time.Millisecond},
	}
	for _, tt := range tests {
		got := c.DurationFor(tt.distance)
		if diff := got - tt.want; diff > time.Microsecond || diff < -time.Microsecond {
			t.Errorf("DurationFor(%g) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestTransitionMonotonic(t *testing.T) {
	c := NewController(Pose{Position: r3.Vec{X: 20, Y: 10, Z: 40}}, nil)
	anim := c.NavigateTo(r3.Vec{X: -3, Y: 2, Z: 1})
	target := anim.Target.Position

	if c.InputEnabled() || c.DampingEnabled() {
		t.Error("input or damping enabled during transit")
	}

	prev := r3.Norm(r3.Sub(c.Pose().Position, target))
	frames := 0
	for c.State() == Transiting {
		pose, changed := c.Update(frame)
		if !changed {
			t.Fatal("Update() reported no change during transit")
		}
		d := r3.Norm(r3.Sub(pose.Position, target))
		if c.State() == Transiting && d >= prev {
			t.Fatalf("frame %d: distance %g did not decrease from %g", frames, d, prev)
		}
		prev = d
		frames++
		if frames > 1000 {
			t.Fatal("transition never finished")
		}
	}

	if got := c.Pose(); got != anim.Target {
		t.Errorf("final pose = %+v, want %+v", got, anim.Target)
	}
	if !c.InputEnabled() || !c.DampingEnabled() {
		t.Error("input or damping still disabled after transit")
	}

	pose, changed := c.Update(frame)
	if changed || pose != anim.Target {
		t.Error("pose changed after the transition finished")
	}
}

func TestNewRequestRestartsFromCurrentPose(t *testing.T) {
	c := NewController(Pose{Position: r3.Vec{Z: 30}}, nil)
	c.NavigateTo(r3.Vec{X: 10})
	for i := 0; i < 20; i++ {
		c.Update(frame)
	}
	mid := c.Pose()

	anim := c.NavigateTo(r3.Vec{X: -10})
	if anim.Start != mid {
		t.Errorf("restart began at %+v, want %+v", anim.Start, mid)
	}
	if anim.Progress != 0 {
		t.Errorf("restart progress = %g, want 0", anim.Progress)
	}
	if got, _ := c.Animation(); got.Target.LookAt != (r3.Vec{X: -10}) {
		t.Errorf("target look-at = %v after restart", got.Target.LookAt)
	}
}

func TestSetPoseRejectedWhileTransiting(t *testing.T) {
	c := NewController(Pose{}, nil)
	c.NavigateTo(r3.Vec{X: 1})
	if c.SetPose(Pose{Position: r3.Vec{Y: 9}}) {
		t.Error("SetPose() accepted during transit")
	}
	c.Update(10 * time.Second)
	if !c.SetPose(Pose{Position: r3.Vec{Y: 9}}) {
		t.Error("SetPose() rejected while idle")
	}
}

func TestJumpTo(t *testing.T) {
	c := NewController(Pose{}, nil)
	c.NavigateTo(r3.Vec{X: 50})
	pose := c.JumpTo(r3.Vec{X: 1})
	if c.State() != Idle {
		t.Error("JumpTo() left the controller transiting")
	}
	if pose.Position != (r3.Vec{X: 1, Y: 2, Z: 8}) {
		t.Errorf("JumpTo() position = %v", pose.Position)
	}
}

func TestProjectAndRayRoundTrip(t *testing.T) {
	pose := Pose{Position: r3.Vec{X: 1, Y: 3, Z: 12}, LookAt: r3.Vec{X: 0, Y: 1, Z: 0}}
	proj := DefaultProjection
	point := r3.Vec{X: 2, Y: -1, Z: 3}

	ndc, ok := proj.Project(pose, point)
	if !ok {
		t.Fatal("Project() failed for a point in front of the camera")
	}
	ray, ok := proj.Ray(pose, ndc)
	if !ok {
		t.Fatal("Ray() failed")
	}

	// The point must lie on the ray.
	rel := r3.Sub(point, ray.Origin)
	along := r3.Dot(rel, ray.Direction)
	off := r3.Norm(r3.Sub(rel, r3.Scale(along, ray.Direction)))
	if along <= 0 || off > 1e-9 {
		t.Errorf("point is %g off the ray (along %g)", off, along)
	}
}

func TestCenterRayIsViewDirection(t *testing.T) {
	pose := Pose{Position: r3.Vec{Z: 10}}
	ray, ok := DefaultProjection.Ray(pose, NDC{})
	if !ok {
		t.Fatal("Ray() failed")
	}
	dir, _ := ViewDirection(pose)
	if r3.Norm(r3.Sub(ray.Direction, dir)) > 1e-12 {
		t.Errorf("center ray %v, view direction %v", ray.Direction, dir)
	}
	if _, ok := DefaultProjection.Ray(Pose{}, NDC{}); ok {
		t.Error("Ray() succeeded for a degenerate pose")
	}
}

func TestPoseJSONKeys(t *testing.T) {
	p := Pose{Position: r3.Vec{X: 1, Y: 2, Z: 3}, LookAt: r3.Vec{Z: -1}}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"position":{"x":1,"y":2,"z":3},"lookAt":{"x":0,"y":0,"z":-1}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
	var back Pose
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != p {
		t.Errorf("Unmarshal() = %+v, want %+v", back, p)
	}
}
