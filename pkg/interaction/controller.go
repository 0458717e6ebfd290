// Package interaction implements pointer handling for graph nodes: hover highlighting,
// click to select and drag to reposition.
package interaction

import (
	"sort"
	"sync"
	"time"

	"github.com/ritzau/neural-portfolio/pkg/camera"
	"github.com/ritzau/neural-portfolio/pkg/logging"
	"github.com/ritzau/neural-portfolio/pkg/positions"
	"gonum.org/v1/gonum/spatial/r3"
)

// State is the pointer state of a node handle
type State int

const (
	Idle State = iota
	Pressed
	Dragging
)

func (s State) String() string {
	switch s {
	case Pressed:
		return "pressed"
	case Dragging:
		return "dragging"
	default:
		return "idle"
	}
}

// DragOwner is the owner name used when claiming positions for a drag.
const DragOwner = "drag"

// DragState is the state of one press-to-release cycle on a node.
type DragState struct {
	Active           bool
	ThresholdCrossed bool
	StartPointer     camera.NDC
	Plane            Plane
	Offset           r3.Vec
}

// Handle is the pointer state of a single node.
type Handle struct {
	ID    string
	State State
	Drag  DragState

	writer *positions.Writer
}

// PoseSource provides the current camera pose
type PoseSource interface {
	Pose() camera.Pose
}

// Neighborer lists the nodes directly connected to a node
type Neighborer interface {
	Neighbors(id string) []string
}

// Hooks receive the effects of interactions. Any hook may be nil. Hooks are called
// without the controller lock held.
type Hooks struct {
	OnSelect     func(id string)
	OnNavigate   func(lookAt r3.Vec)
	OnOpenDetail func(id string)
	OnHighlight  func(ids []string)
}

// Options configures the controller. Zero fields take defaults.
type Options struct {
	DragThreshold   float64       // NDC distance before a press becomes a drag (default 0.01)
	ClickSuppress   time.Duration // how long a finished drag suppresses clicks (default 50ms)
	DetailDelay     time.Duration // delay before the detail view opens (default 1s)
	MoonDetailDelay time.Duration // delay for the moon node (default 500ms)
	MoonID          string        // id of the moon node (default "moon")
	Projection      camera.Projection
	Space           Space
}

func (o *Options) withDefaults() Options {
	d := Options{
		DragThreshold:   0.01,
		ClickSuppress:   50 * time.Millisecond,
		DetailDelay:     time.Second,
		MoonDetailDelay: 500 * time.Millisecond,
		MoonID:          "moon",
		Projection:      camera.DefaultProjection,
	}
	if o == nil {
		return d
	}
	if o.DragThreshold > 0 {
		d.DragThreshold = o.DragThreshold
	}
	if o.ClickSuppress > 0 {
		d.ClickSuppress = o.ClickSuppress
	}
	if o.DetailDelay > 0 {
		d.DetailDelay = o.DetailDelay
	}
	if o.MoonDetailDelay > 0 {
		d.MoonDetailDelay = o.MoonDetailDelay
	}
	if o.MoonID != "" {
		d.MoonID = o.MoonID
	}
	if o.Projection.FOV > 0 && o.Projection.Aspect > 0 {
		d.Projection = o.Projection
	}
	d.Space = o.Space
	return d
}

type actionKind int

const (
	clearWasDragging actionKind = iota
	openDetail
)

type delayedAction struct {
	due  time.Duration
	kind actionKind
	id   string
}

// Controller tracks pointer state for every node. Time advances only through Tick,
// so delayed effects fire on frame boundaries.
type Controller struct {
	mu        sync.Mutex
	opts      Options
	store     *positions.Store
	neighbors Neighborer
	camera    PoseSource
	hooks     Hooks

	handles     map[string]*Handle
	active      *Handle
	wasDragging bool
	now         time.Duration
	pending     []delayedAction

	selected    string
	hovered     string
	highlighted []string
}

// NewController creates a controller writing drags to store.
func NewController(store *positions.Store, neighbors Neighborer, cam PoseSource, hooks Hooks, opts *Options) *Controller {
	return &Controller{
		opts:      opts.withDefaults(),
		store:     store,
		neighbors: neighbors,
		camera:    cam,
		hooks:     hooks,
		handles:   make(map[string]*Handle),
	}
}

// SetNeighbors replaces the neighbor source after a graph reload.
func (c *Controller) SetNeighbors(n Neighborer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.neighbors = n
}

func (c *Controller) handle(id string) *Handle {
	h, ok := c.handles[id]
	if !ok {
		h = &Handle{ID: id}
		c.handles[id] = h
	}
	return h
}

// PointerDown presses the node id at pointer position ndc. Unknown ids are ignored.
func (c *Controller) PointerDown(id string, ndc camera.NDC) {
	c.mu.Lock()
	defer c.mu.Unlock()

	local, ok := c.store.Get(id)
	if !ok {
		logging.Debug("pointer down on unknown node", "id", id)
		return
	}
	if c.active != nil {
		c.releaseLocked(c.active)
	}

	h := c.handle(id)
	h.State = Pressed
	h.Drag = DragState{Active: true, StartPointer: ndc}

	pose := c.camera.Pose()
	world := c.opts.Space.World(local)
	if normal, ok := camera.ViewDirection(pose); ok {
		if plane, ok := PlaneFromNormalAndPoint(normal, world); ok {
			h.Drag.Plane = plane
			if ray, ok := c.opts.Projection.Ray(pose, ndc); ok {
				if hit, ok := plane.IntersectRay(ray); ok {
					h.Drag.Offset = r3.Sub(local, c.opts.Space.Local(hit))
				}
			}
		}
	}

	w, err := c.store.Claim(id, DragOwner)
	if err != nil {
		logging.Warn("node position held by another writer", "id", id, "error", err)
	}
	h.writer = w
	c.active = h
}

// PointerMove moves the pointer to ndc. It reports whether a position was written.
func (c *Controller) PointerMove(ndc camera.NDC) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.active
	if h == nil {
		return false
	}
	if !h.Drag.ThresholdCrossed {
		if ndc.Distance(h.Drag.StartPointer) <= c.opts.DragThreshold {
			return false
		}
		h.Drag.ThresholdCrossed = true
		h.State = Dragging
		logging.Debug("drag started", "id", h.ID)
	}

	if h.writer == nil || h.Drag.Plane.Normal == (r3.Vec{}) {
		return false
	}
	ray, ok := c.opts.Projection.Ray(c.camera.Pose(), ndc)
	if !ok {
		return false
	}
	hit, ok := h.Drag.Plane.IntersectRay(ray)
	if !ok {
		return false
	}
	return h.writer.Set(r3.Add(c.opts.Space.Local(hit), h.Drag.Offset))
}

// PointerUp releases the pressed node. A release without a drag is a click.
func (c *Controller) PointerUp() {
	var effects []func()

	c.mu.Lock()
	h := c.active
	if h != nil {
		if h.State == Dragging {
			c.markWasDraggingLocked()
		} else if h.State == Pressed {
			effects = c.clickLocked(h.ID)
		}
		c.releaseLocked(h)
	}
	c.mu.Unlock()

	run(effects)
}

// PointerCancel aborts the press after the pointer capture is lost. No click fires.
func (c *Controller) PointerCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h := c.active; h != nil {
		if h.State == Dragging {
			c.markWasDraggingLocked()
		}
		c.releaseLocked(h)
	}
}

// Select selects id and navigates to it as if it had been clicked.
func (c *Controller) Select(id string) bool {
	c.mu.Lock()
	if _, ok := c.store.Get(id); !ok {
		c.mu.Unlock()
		return false
	}
	effects := c.selectLocked(id)
	c.mu.Unlock()

	run(effects)
	return true
}

// PointerEnter hovers id, highlighting it and its neighbors. Ignored while a node is
// pressed.
func (c *Controller) PointerEnter(id string) {
	c.mu.Lock()
	if c.active != nil || id == c.hovered {
		c.mu.Unlock()
		return
	}
	c.hovered = id
	c.highlighted = append([]string{id}, c.neighborsOf(id)...)
	ids := append([]string(nil), c.highlighted...)
	onHighlight := c.hooks.OnHighlight
	c.mu.Unlock()

	if onHighlight != nil {
		onHighlight(ids)
	}
}

// PointerLeave clears the hover state when it belongs to id.
func (c *Controller) PointerLeave(id string) {
	c.mu.Lock()
	if c.hovered != id {
		c.mu.Unlock()
		return
	}
	c.hovered = ""
	c.highlighted = nil
	onHighlight := c.hooks.OnHighlight
	c.mu.Unlock()

	if onHighlight != nil {
		onHighlight(nil)
	}
}

// Tick advances the controller clock by dt and fires due delayed actions.
func (c *Controller) Tick(dt time.Duration) {
	var effects []func()

	c.mu.Lock()
	c.now += dt
	remaining := c.pending[:0]
	for _, a := range c.pending {
		if a.due > c.now {
			remaining = append(remaining, a)
			continue
		}
		switch a.kind {
		case clearWasDragging:
			c.wasDragging = false
		case openDetail:
			if fn := c.hooks.OnOpenDetail; fn != nil {
				id := a.id
				effects = append(effects, func() { fn(id) })
			}
		}
	}
	c.pending = remaining
	c.mu.Unlock()

	run(effects)
}

// Selected returns the selected node id
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Hovered returns the hovered node id
func (c *Controller) Hovered() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hovered
}

// Highlighted returns the hovered node followed by its neighbors.
func (c *Controller) Highlighted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.highlighted...)
}

// WasDragging reports whether a drag ended recently enough to suppress clicks.
func (c *Controller) WasDragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wasDragging
}

// Handle returns a copy of the pointer state of id.
func (c *Controller) Handle(id string) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	if !ok {
		return Handle{}, false
	}
	out := *h
	out.writer = nil
	return out, true
}

func (c *Controller) clickLocked(id string) []func() {
	if c.wasDragging {
		logging.Debug("click suppressed after drag", "id", id)
		return nil
	}
	return c.selectLocked(id)
}

func (c *Controller) selectLocked(id string) []func() {
	c.selected = id

	// A newer selection supersedes a pending detail view.
	remaining := c.pending[:0]
	for _, a := range c.pending {
		if a.kind != openDetail {
			remaining = append(remaining, a)
		}
	}
	c.pending = remaining

	delay := c.opts.DetailDelay
	if id == c.opts.MoonID {
		delay = c.opts.MoonDetailDelay
	}
	c.schedule(delay, openDetail, id)

	var effects []func()
	if fn := c.hooks.OnSelect; fn != nil {
		effects = append(effects, func() { fn(id) })
	}
	if local, ok := c.store.Get(id); ok {
		if fn := c.hooks.OnNavigate; fn != nil {
			world := c.opts.Space.World(local)
			effects = append(effects, func() { fn(world) })
		}
	}
	logging.Debug("node selected", "id", id)
	return effects
}

func (c *Controller) markWasDraggingLocked() {
	c.wasDragging = true
	c.schedule(c.opts.ClickSuppress, clearWasDragging, "")
}

func (c *Controller) releaseLocked(h *Handle) {
	if h.writer != nil {
		h.writer.Release()
		h.writer = nil
	}
	h.State = Idle
	h.Drag.Active = false
	if c.active == h {
		c.active = nil
	}
}

func (c *Controller) schedule(after time.Duration, kind actionKind, id string) {
	c.pending = append(c.pending, delayedAction{due: c.now + after, kind: kind, id: id})
	sort.SliceStable(c.pending, func(i, j int) bool {
		return c.pending[i].due < c.pending[j].due
	})
}

func (c *Controller) neighborsOf(id string) []string {
	if c.neighbors == nil {
		return nil
	}
	return c.neighbors.Neighbors(id)
}

func run(effects []func()) {
	for _, fn := range effects {
		fn()
	}
}
