// Package camera animates the camera between focus points and projects pointer
// coordinates into world space.
package camera

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/ritzau/neural-portfolio/pkg/positions"
	"gonum.org/v1/gonum/spatial/r3"
)

// State is the navigation state of the controller
type State int

const (
	Idle State = iota
	Transiting
)

func (s State) String() string {
	if s == Transiting {
		return "transiting"
	}
	return "idle"
}

// Pose is a camera position and the point it looks at.
type Pose struct {
	Position r3.Vec `json:"position"`
	LookAt   r3.Vec `json:"lookAt"`
}

type poseJSON struct {
	Position positions.Point `json:"position"`
	LookAt   positions.Point `json:"lookAt"`
}

// MarshalJSON encodes vectors with lowercase x, y and z keys
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(poseJSON{Position: positions.PointOf(p.Position), LookAt: positions.PointOf(p.LookAt)})
}

// UnmarshalJSON accepts the form written by MarshalJSON
func (p *Pose) UnmarshalJSON(data []byte) error {
	var raw poseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Position = raw.Position.Vec()
	p.LookAt = raw.LookAt.Vec()
	return nil
}

// Animation is an in-flight transition between two poses.
type Animation struct {
	Start    Pose          `json:"start"`
	Target   Pose          `json:"target"`
	Progress float64       `json:"progress"`
	Duration time.Duration `json:"duration"`
}

// Options configures navigation. Zero fields take defaults.
type Options struct {
	Offset         r3.Vec        // camera position relative to the focus point (default 0,2,8)
	SecondsPerUnit float64       // transit seconds per unit of travel (default 0.1)
	MinDuration    time.Duration // default 1s
	MaxDuration    time.Duration // default 2.5s
}

// DefaultOffset is the camera position relative to a focused node.
var DefaultOffset = r3.Vec{X: 0, Y: 2, Z: 8}

func (o *Options) withDefaults() Options {
	d := Options{
		Offset:         DefaultOffset,
		SecondsPerUnit: 0.1,
		MinDuration:    time.Second,
		MaxDuration:    2500 * time.Millisecond,
	}
	if o == nil {
		return d
	}
	if o.Offset != (r3.Vec{}) {
		d.Offset = o.Offset
	}
	if o.SecondsPerUnit > 0 {
		d.SecondsPerUnit = o.SecondsPerUnit
	}
	if o.MinDuration > 0 {
		d.MinDuration = o.MinDuration
	}
	if o.MaxDuration > 0 {
		d.MaxDuration = o.MaxDuration
	}
	return d
}

// Controller drives the camera pose. While a transition runs, damping and free user
// input are disabled and SetPose is rejected.
type Controller struct {
	mu    sync.RWMutex
	opts  Options
	state State
	pose  Pose
	anim  Animation
}

// NewController creates an idle controller at the given pose.
func NewController(initial Pose, opts *Options) *Controller {
	return &Controller{opts: opts.withDefaults(), pose: initial}
}

// NavigateTo starts a transition that ends looking at lookAt from lookAt+offset.
// A transition already in progress is replaced, starting from the current pose.
func (c *Controller) NavigateTo(lookAt r3.Vec) Animation {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := Pose{Position: r3.Add(lookAt, c.opts.Offset), LookAt: lookAt}
	c.anim = Animation{
		Start:    c.pose,
		Target:   target,
		Duration: c.durationFor(r3.Norm(r3.Sub(target.Position, c.pose.Position))),
	}
	c.state = Transiting
	return c.anim
}

// JumpTo moves the camera to focus lookAt immediately and cancels any transition.
func (c *Controller) JumpTo(lookAt r3.Vec) Pose {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pose = Pose{Position: r3.Add(lookAt, c.opts.Offset), LookAt: lookAt}
	c.anim = Animation{}
	c.state = Idle
	return c.pose
}

// Update advances a running transition by dt and returns the resulting pose. The
// boolean reports whether the pose changed.
func (c *Controller) Update(dt time.Duration) (Pose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Transiting {
		return c.pose, false
	}
	if dt < 0 {
		dt = 0
	}

	c.anim.Progress += dt.Seconds() / c.anim.Duration.Seconds()
	if c.anim.Progress >= 1 {
		c.anim.Progress = 1
		c.pose = c.anim.Target
		c.state = Idle
		return c.pose, true
	}

	e := EaseInOutCubic(c.anim.Progress)
	c.pose = Pose{
		Position: lerp(c.anim.Start.Position, c.anim.Target.Position, e),
		LookAt:   lerp(c.anim.Start.LookAt, c.anim.Target.LookAt, e),
	}
	return c.pose, true
}

// SetPose applies a pose from user input. It is ignored while transiting.
func (c *Controller) SetPose(p Pose) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Transiting {
		return false
	}
	c.pose = p
	return true
}

// Pose returns the current camera pose
func (c *Controller) Pose() Pose {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose
}

// State returns the navigation state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Animation returns the current or last transition and whether one is running.
func (c *Controller) Animation() (Animation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anim, c.state == Transiting
}

// InputEnabled reports whether user rotate, pan and zoom should be accepted.
func (c *Controller) InputEnabled() bool {
	return c.State() == Idle
}

// DampingEnabled reports whether control damping should be applied.
func (c *Controller) DampingEnabled() bool {
	return c.State() == Idle
}

// DurationFor returns the transit duration for a travel distance.
func (c *Controller) DurationFor(distance float64) time.Duration {
	return c.durationFor(distance)
}

func (c *Controller) durationFor(distance float64) time.Duration {
	secs := distance * c.opts.SecondsPerUnit
	secs = math.Max(secs, c.opts.MinDuration.Seconds())
	secs = math.Min(secs, c.opts.MaxDuration.Seconds())
	return time.Duration(secs * float64(time.Second))
}

func lerp(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}
