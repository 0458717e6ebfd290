// Package scene owns the graph, its layout and the camera and pointer controllers,
// and advances them frame by frame.
package scene

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ritzau/neural-portfolio/pkg/camera"
	"github.com/ritzau/neural-portfolio/pkg/graph"
	"github.com/ritzau/neural-portfolio/pkg/interaction"
	"github.com/ritzau/neural-portfolio/pkg/layout"
	"github.com/ritzau/neural-portfolio/pkg/lens"
	"github.com/ritzau/neural-portfolio/pkg/logging"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"github.com/ritzau/neural-portfolio/pkg/positions"
	"github.com/ritzau/neural-portfolio/pkg/pubsub"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnknownNode is returned for operations naming a node absent from the graph
var ErrUnknownNode = errors.New("unknown node")

// DefaultPose is the camera pose before anything is selected
var DefaultPose = camera.Pose{Position: r3.Vec{Y: 5, Z: 30}}

// Observer receives layout and frame notifications, typically a metrics collector
type Observer interface {
	layout.Observer
	ObserveFrame(panicked bool)
}

// Options configures a scene. The zero value is usable.
type Options struct {
	Layout      layout.Options
	Camera      camera.Options
	Interaction interaction.Options
	Filter      lens.Filter
	InitialPose *camera.Pose

	// OnFrame is called at the end of every tick. A panic in it is recovered and
	// logged, and the frame is counted as failed.
	OnFrame func(Frame)
}

// Frame is the observable state after a tick
type Frame struct {
	Seq              uint64      `json:"seq"`
	Camera           camera.Pose `json:"camera"`
	Transiting       bool        `json:"transiting"`
	Progress         float64     `json:"progress"`
	InputEnabled     bool        `json:"inputEnabled"`
	Selected         string      `json:"selected,omitempty"`
	Hovered          string      `json:"hovered,omitempty"`
	Highlighted      []string    `json:"highlighted,omitempty"`
	Detail           string      `json:"detail,omitempty"`
	PositionsVersion uint64      `json:"positionsVersion"`
}

// sameState compares frames ignoring the sequence number
func (f Frame) sameState(o Frame) bool {
	f.Seq, o.Seq = 0, 0
	return reflect.DeepEqual(f, o)
}

// Scene is the application object. All methods are safe for concurrent use.
type Scene struct {
	// publishMu serializes edge publications from resolve through commit so a
	// stale resolution can never replace a newer snapshot. It is taken before mu.
	publishMu sync.Mutex

	mu       sync.Mutex
	graph    *model.Graph // normalized
	conns    *graph.ConnectionGraph
	filter   lens.Filter
	result   layout.Result
	edges    *lens.EdgeSnapshot
	edgesVer uint64
	detail   string
	seq      uint64
	last     Frame

	store    *positions.Store
	engine   *layout.Engine
	camera   *camera.Controller
	input    *interaction.Controller
	pub      pubsub.Publisher
	observer Observer
	onFrame  func(Frame)
}

// New lays out g and creates a scene around it. pub and observer may be nil.
func New(g *model.Graph, pub pubsub.Publisher, observer Observer, opts *Options) (*Scene, error) {
	if opts == nil {
		opts = &Options{}
	}
	pose := DefaultPose
	if opts.InitialPose != nil {
		pose = *opts.InitialPose
	}

	var layoutObserver layout.Observer
	if observer != nil {
		layoutObserver = observer
	}

	s := &Scene{
		filter:   opts.Filter,
		store:    positions.NewStore(),
		engine:   layout.NewEngine(&opts.Layout, layoutObserver),
		camera:   camera.NewController(pose, &opts.Camera),
		pub:      pub,
		observer: observer,
		onFrame:  opts.OnFrame,
	}
	s.input = interaction.NewController(s.store, nil, s.camera, interaction.Hooks{
		OnSelect:     s.onSelect,
		OnNavigate:   s.onNavigate,
		OnOpenDetail: s.onOpenDetail,
		OnHighlight:  s.onHighlight,
	}, &opts.Interaction)

	if err := s.Reload(g); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the graph. The layout is recomputed only when nodes or
// connections changed; otherwise current positions, including dragged ones, stay.
func (s *Scene) Reload(g *model.Graph) error {
	s.publish(pubsub.TopicLayout, "loading", pubsub.LayoutStatus{State: "loading", Message: "computing layout", Nodes: g.Len()})

	if err := model.Validate(g); err != nil {
		s.publish(pubsub.TopicLayout, "failed", pubsub.LayoutStatus{State: "failed", Message: err.Error()})
		return fmt.Errorf("invalid graph: %w", err)
	}

	normalized := model.NormalizeConnections(g)
	if !model.IsSymmetric(g) {
		logging.Debug("connections mirrored", "nodes", g.Len())
	}
	res, err := s.engine.Layout(normalized)
	if err != nil {
		s.publish(pubsub.TopicLayout, "failed", pubsub.LayoutStatus{State: "failed", Message: err.Error()})
		return err
	}
	conns := graph.Build(normalized)

	s.mu.Lock()
	s.graph = normalized
	s.conns = conns
	s.result = res
	if !res.Reused {
		s.store.Replace(res.Positions)
	}
	s.mu.Unlock()

	s.input.SetNeighbors(conns)

	state := "computed"
	if res.Reused {
		state = "reused"
	}
	s.publish(pubsub.TopicLayout, state, pubsub.LayoutStatus{
		State:      state,
		Message:    fmt.Sprintf("%d nodes laid out", normalized.Len()),
		Nodes:      normalized.Len(),
		Links:      len(conns.Pairs()),
		Compliance: res.Quality.CollisionCompliance,
		Hash:       res.Hash,
	})
	logging.Info("graph loaded", "nodes", normalized.Len(), "links", len(conns.Pairs()), "reused", res.Reused)

	s.publishEdges()
	return nil
}

// Relayout discards the memoized layout and lays out the current graph again.
// Dragged positions are replaced by the fresh layout.
func (s *Scene) Relayout() error {
	s.mu.Lock()
	g := s.graph
	s.mu.Unlock()
	if g == nil {
		return fmt.Errorf("no graph loaded")
	}
	s.engine.Reset()
	return s.Reload(g.Clone())
}

// Tick advances the camera and pointer timers by dt. A panic inside the frame is
// recovered, logged and reported to the observer; the returned error is then non-nil.
func (s *Scene) Tick(dt time.Duration) (frame Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("frame panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("frame panicked: %v", r)
			if s.observer != nil {
				s.observer.ObserveFrame(true)
			}
		}
	}()

	s.camera.Update(dt)
	s.input.Tick(dt)

	if s.store.Version() != s.edgesVersion() {
		s.publishEdges()
	}

	frame = s.snapshotFrame()
	if s.onFrame != nil {
		s.onFrame(frame)
	}
	if s.observer != nil {
		s.observer.ObserveFrame(false)
	}
	return frame, nil
}

// Run ticks the scene at fps until ctx is cancelled, publishing frames that differ
// from the previous one.
func (s *Scene) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		return fmt.Errorf("invalid frame rate %d", fps)
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	logging.Info("frame loop started", "fps", fps)
	for {
		select {
		case <-ctx.Done():
			logging.Info("frame loop stopped")
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			frame, err := s.Tick(dt)
			if err != nil {
				continue
			}
			s.mu.Lock()
			changed := !frame.sameState(s.last)
			s.last = frame
			s.mu.Unlock()
			if changed {
				s.publish(pubsub.TopicFrames, "frame", frame)
			}
		}
	}
}

func (s *Scene) snapshotFrame() Frame {
	anim, transiting := s.camera.Animation()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return Frame{
		Seq:              s.seq,
		Camera:           s.camera.Pose(),
		Transiting:       transiting,
		Progress:         anim.Progress,
		InputEnabled:     s.camera.InputEnabled(),
		Selected:         s.input.Selected(),
		Hovered:          s.input.Hovered(),
		Highlighted:      s.input.Highlighted(),
		Detail:           s.detail,
		PositionsVersion: s.store.Version(),
	}
}

// Select selects a node as if it had been clicked: the camera moves to it and the
// detail view opens after the delay.
func (s *Scene) Select(id string) error {
	if !s.has(id) {
		return fmt.Errorf("select %q: %w", id, ErrUnknownNode)
	}
	s.input.Select(id)
	return nil
}

// NavigateTo moves the camera to a node without selecting it.
func (s *Scene) NavigateTo(id string) (camera.Animation, error) {
	p, ok := s.store.Get(id)
	if !ok || !s.has(id) {
		return camera.Animation{}, fmt.Errorf("navigate to %q: %w", id, ErrUnknownNode)
	}
	return s.camera.NavigateTo(p), nil
}

// JumpTo moves the camera to a node immediately.
func (s *Scene) JumpTo(id string) (camera.Pose, error) {
	p, ok := s.store.Get(id)
	if !ok || !s.has(id) {
		return camera.Pose{}, fmt.Errorf("jump to %q: %w", id, ErrUnknownNode)
	}
	return s.camera.JumpTo(p), nil
}

// SetCameraPose applies user camera input. It is rejected while transiting.
func (s *Scene) SetCameraPose(p camera.Pose) bool {
	return s.camera.SetPose(p)
}

// CloseDetail closes the detail view
func (s *Scene) CloseDetail() {
	s.mu.Lock()
	s.detail = ""
	s.mu.Unlock()
	s.publish(pubsub.TopicSelection, "closed", pubsub.SelectionEvent{})
}

// SetFilter changes the visible node types
func (s *Scene) SetFilter(f lens.Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	logging.Debug("filter changed", "visible", f.Key())
	s.publishEdges()
}

// Filter returns the visible node types
func (s *Scene) Filter() lens.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Edges resolves the edges to render for the current filter, positions and hover.
func (s *Scene) Edges() []lens.Edge {
	edges, _ := s.resolveEdges()
	return edges
}

func (s *Scene) resolveEdges() ([]lens.Edge, uint64) {
	version := s.store.Version()
	positions := s.store.Snapshot()
	hovered := s.input.Hovered()

	s.mu.Lock()
	in := lens.Input{
		Graph:       s.graph,
		Connections: s.conns,
		Filter:      s.filter,
		Positions:   positions,
		Hovered:     hovered,
	}
	s.mu.Unlock()
	return lens.Resolve(in), version
}

// publishEdges publishes the edge diff since the last publication
func (s *Scene) publishEdges() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	edges, version := s.resolveEdges()

	s.mu.Lock()
	diff := lens.ComputeDiff(s.edges, edges)
	s.edges = lens.CreateSnapshot(edges)
	s.edgesVer = version
	s.mu.Unlock()

	if !diff.Empty() {
		s.publish(pubsub.TopicEdges, "diff", diff)
	}
}

func (s *Scene) edgesVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgesVer
}

// Graph returns a copy of the normalized graph
func (s *Scene) Graph() *model.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Clone()
}

// Layout returns the result of the last layout
func (s *Scene) Layout() layout.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Positions returns a snapshot of all node positions
func (s *Scene) Positions() map[string]r3.Vec {
	return s.store.Snapshot()
}

// Store exposes the position store
func (s *Scene) Store() *positions.Store {
	return s.store
}

// Camera returns the camera controller
func (s *Scene) Camera() *camera.Controller {
	return s.camera
}

// Detail returns the node whose detail view is open
func (s *Scene) Detail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail
}

func (s *Scene) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph != nil && s.graph.Has(id)
}

func (s *Scene) onSelect(id string) {
	s.publish(pubsub.TopicSelection, "selected", pubsub.SelectionEvent{NodeID: id})
}

func (s *Scene) onNavigate(lookAt r3.Vec) {
	s.camera.NavigateTo(lookAt)
}

func (s *Scene) onOpenDetail(id string) {
	s.mu.Lock()
	s.detail = id
	s.mu.Unlock()
	logging.Debug("detail opened", "id", id)
	s.publish(pubsub.TopicSelection, "detail", pubsub.SelectionEvent{NodeID: id, Detail: true})
}

func (s *Scene) onHighlight(ids []string) {
	logging.Trace("highlight changed", "ids", ids)
	s.publishEdges()
}

func (s *Scene) publish(topic, eventType string, data interface{}) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(topic, eventType, data); err != nil {
		logging.Debug("publish failed", "topic", topic, "error", err)
	}
}
