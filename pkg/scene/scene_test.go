package scene

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ritzau/neural-portfolio/pkg/camera"
	"github.com/ritzau/neural-portfolio/pkg/layout"
	"github.com/ritzau/neural-portfolio/pkg/lens"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"github.com/ritzau/neural-portfolio/pkg/pubsub"
	"gonum.org/v1/gonum/spatial/r3"
)

const frame = 16 * time.Millisecond

type recordingObserver struct {
	mu      sync.Mutex
	layouts []layout.Result
	frames  int
	panics  int
}

func (o *recordingObserver) ObserveLayout(r layout.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.layouts = append(o.layouts, r)
}

func (o *recordingObserver) ObserveFrame(panicked bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames++
	if panicked {
		o.panics++
	}
}

func chain(t *testing.T) *model.Graph {
	t.Helper()
	g, err := model.FromNodes([]*model.Node{
		{ID: "A", Type: model.NodeTypeMain, Label: "Me"},
		{ID: "B", Type: model.NodeTypeProject, Label: "Project", Connections: []string{"A"}},
		{ID: "C", Type: model.NodeTypeSkill, Label: "Go", Connections: []string{"B"}},
	})
	if err != nil {
		t.Fatalf("FromNodes() error = %v", err)
	}
	return g
}

func newScene(t *testing.T, pub pubsub.Publisher, obs Observer, opts *Options) *Scene {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.Layout.Seed = 1
	opts.Layout.ChargeStrength = -1
	s, err := New(chain(t), pub, obs, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func dist(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

func ndcOf(t *testing.T, s *Scene, id string) camera.NDC {
	t.Helper()
	p, _ := s.Store().Get(id)
	ndc, ok := camera.DefaultProjection.Project(s.Camera().Pose(), p)
	if !ok {
		t.Fatalf("node %s is not in front of the camera", id)
	}
	return ndc
}

func TestScenarioEndToEnd(t *testing.T) {
	s := newScene(t, nil, nil, nil)

	g := s.Graph()
	b, _ := g.Node("B")
	if len(b.Connections) != 2 || b.Connections[0] != "A" || b.Connections[1] != "C" {
		t.Errorf("B.Connections = %v, want [A C]", b.Connections)
	}

	pos := s.Positions()
	if pos["A"] != (r3.Vec{}) {
		t.Errorf("A at %v, want origin", pos["A"])
	}
	if d := dist(pos["A"], pos["B"]); math.Abs(d-8) > 1 {
		t.Errorf("|AB| = %.2f, want about 8", d)
	}
	if d := dist(pos["B"], pos["C"]); math.Abs(d-5) > 1.5 {
		t.Errorf("|BC| = %.2f, want about 5", d)
	}

	s.SetFilter(lens.NewFilter(model.NodeTypeMain, model.NodeTypeSkill))
	edges := s.Edges()
	direct, indirect := lens.Counts(edges)
	if direct != 0 || indirect != 1 || edges[0].Key() != "indirect|A|C" {
		t.Errorf("edges = %+v, want one indirect A-C edge", edges)
	}
}

func TestSelectNavigatesAndOpensDetail(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, pubsub.TopicSelection)
	if err != nil {
		t.Fatal(err)
	}

	s := newScene(t, pub, nil, nil)
	if err := s.Select("B"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	posB, _ := s.Store().Get("B")

	var elapsed time.Duration
	for elapsed < time.Second {
		f, err := s.Tick(frame)
		if err != nil {
			t.Fatal(err)
		}
		if f.InputEnabled == f.Transiting {
			t.Fatalf("input enabled = %v while transiting = %v", f.InputEnabled, f.Transiting)
		}
		elapsed += frame
	}
	if s.Detail() != "B" {
		t.Errorf("Detail() = %q after %v, want B", s.Detail(), elapsed)
	}

	for i := 0; s.Camera().State() == camera.Transiting; i++ {
		s.Tick(frame)
		if i > 1000 {
			t.Fatal("camera never arrived")
		}
	}
	pose := s.Camera().Pose()
	if pose.LookAt != posB || pose.Position != r3.Add(posB, camera.DefaultOffset) {
		t.Errorf("final pose = %+v, want looking at %v", pose, posB)
	}

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-sub.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("selection events = %v", types)
		}
	}
	if types[0] != "selected" || types[1] != "detail" {
		t.Errorf("selection events = %v, want [selected detail]", types)
	}
}

func TestClickThroughPointerEvents(t *testing.T) {
	s := newScene(t, nil, nil, nil)
	ndc := ndcOf(t, s, "C")

	if err := s.Pointer(PointerEvent{Kind: PointerDown, NodeID: "C", X: ndc.X, Y: ndc.Y}); err != nil {
		t.Fatal(err)
	}
	s.Pointer(PointerEvent{Kind: PointerMove, X: ndc.X + 0.005, Y: ndc.Y})
	s.Pointer(PointerEvent{Kind: PointerUp})

	f, _ := s.Tick(frame)
	if f.Selected != "C" || !f.Transiting {
		t.Errorf("frame = %+v, want C selected and camera transiting", f)
	}
}

func TestDragMovesNodeAndEdges(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newScene(t, pub, nil, nil)
	sub, err := pub.Subscribe(ctx, pubsub.TopicEdges)
	if err != nil {
		t.Fatal(err)
	}

	before, _ := s.Store().Get("C")
	version := s.Store().Version()
	ndc := ndcOf(t, s, "C")

	s.Pointer(PointerEvent{Kind: PointerDown, NodeID: "C", X: ndc.X, Y: ndc.Y})
	s.Pointer(PointerEvent{Kind: PointerMove, X: ndc.X + 0.1, Y: ndc.Y})
	s.Pointer(PointerEvent{Kind: PointerUp})

	after, _ := s.Store().Get("C")
	if s.Store().Version() == version || after == before {
		t.Fatal("drag did not move C")
	}

	f, _ := s.Tick(frame)
	if f.Selected != "" {
		t.Errorf("drag selected %q", f.Selected)
	}

	select {
	case ev := <-sub.Events():
		if ev.Type != "diff" {
			t.Errorf("edge event type = %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no edge diff after drag")
	}

	for _, e := range s.Edges() {
		if e.Key() == "direct|B|C" && e.TargetPosition != after && e.SourcePosition != after {
			t.Errorf("edge B-C still ends at the old position: %+v", e)
		}
	}
}

func TestReloadKeepsPositionsForSameStructure(t *testing.T) {
	obs := &recordingObserver{}
	s := newScene(t, nil, obs, nil)

	moved := r3.Vec{X: 42}
	w, err := s.Store().Claim("C", "test")
	if err != nil {
		t.Fatal(err)
	}
	w.Set(moved)
	w.Release()

	relabeled := chain(t)
	n, _ := relabeled.Node("C")
	n.Label = "Golang"
	if err := s.Reload(relabeled); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Store().Get("C"); got != moved {
		t.Errorf("C at %v after relabel, want %v", got, moved)
	}
	if !s.Layout().Reused {
		t.Error("relabel triggered a new layout")
	}
	if n, _ := s.Graph().Node("C"); n.Label != "Golang" {
		t.Errorf("C label = %q after reload", n.Label)
	}

	extended := chain(t)
	extended.AddNode(&model.Node{ID: "D", Type: model.NodeTypeLesson, Connections: []string{"C"}})
	if err := s.Reload(extended); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Store().Get("D"); !ok {
		t.Error("D has no position after reload")
	}
	if s.Layout().Reused {
		t.Error("structural change reused the layout")
	}
	if len(obs.layouts) != 3 {
		t.Errorf("observer saw %d layouts, want 3", len(obs.layouts))
	}
}

func TestRelayoutDiscardsDrags(t *testing.T) {
	obs := &recordingObserver{}
	s := newScene(t, nil, obs, nil)
	original, _ := s.Store().Get("C")

	w, err := s.Store().Claim("C", "test")
	if err != nil {
		t.Fatal(err)
	}
	w.Set(r3.Vec{X: 42})
	w.Release()

	if err := s.Relayout(); err != nil {
		t.Fatalf("Relayout() error = %v", err)
	}
	if s.Layout().Reused {
		t.Error("Relayout() reused the memoized layout")
	}
	if got, _ := s.Store().Get("C"); got != original {
		t.Errorf("C at %v after relayout, want seeded position %v", got, original)
	}
	if len(obs.layouts) != 2 {
		t.Errorf("observer saw %d layouts, want 2", len(obs.layouts))
	}
}

func TestConcurrentEdgePublicationsKeepLatest(t *testing.T) {
	s := newScene(t, nil, nil, nil)
	w, err := s.Store().Claim("C", "test")
	if err != nil {
		t.Fatal(err)
	}
	defer w.Release()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				s.SetFilter(lens.NewFilter(model.NodeTypeMain, model.NodeTypeSkill))
			} else {
				s.SetFilter(lens.NewFilter())
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			w.Set(r3.Vec{X: float64(i), Y: 1})
			s.Tick(frame)
		}
	}()
	wg.Wait()

	want := lens.CreateSnapshot(s.Edges()).Hash
	s.mu.Lock()
	got := s.edges.Hash
	s.mu.Unlock()
	if got != want {
		t.Error("published edge snapshot is older than the current edges")
	}
}

func TestTickRecoversPanic(t *testing.T) {
	obs := &recordingObserver{}
	s := newScene(t, nil, obs, &Options{OnFrame: func(Frame) { panic("render failed") }})

	if _, err := s.Tick(frame); err == nil {
		t.Fatal("Tick() returned no error for a panicking frame")
	}
	if _, err := s.Tick(frame); err == nil {
		t.Fatal("second Tick() returned no error")
	}
	if obs.panics != 2 {
		t.Errorf("observer saw %d panics, want 2", obs.panics)
	}
}

func TestUnknownNodes(t *testing.T) {
	s := newScene(t, nil, nil, nil)

	if err := s.Select("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Select() error = %v", err)
	}
	if _, err := s.NavigateTo("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("NavigateTo() error = %v", err)
	}
	if _, err := s.JumpTo("nope"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("JumpTo() error = %v", err)
	}
	if err := s.Pointer(PointerEvent{Kind: PointerDown, NodeID: "nope"}); err != nil {
		t.Errorf("Pointer() on unknown node error = %v", err)
	}
	if s.Camera().State() != camera.Idle {
		t.Error("unknown node moved the camera")
	}
}

func TestPointerValidation(t *testing.T) {
	s := newScene(t, nil, nil, nil)
	bad := []PointerEvent{
		{Kind: "wiggle"},
		{Kind: PointerDown},
		{Kind: PointerEnter},
		{Kind: PointerMove, X: 2},
	}
	for _, ev := range bad {
		if err := s.Pointer(ev); err == nil {
			t.Errorf("Pointer(%+v) accepted", ev)
		}
	}
	if err := s.Pointer(PointerEvent{Kind: PointerUp}); err != nil {
		t.Errorf("Pointer(up) error = %v", err)
	}
}

func TestHoverHighlightsEdges(t *testing.T) {
	s := newScene(t, nil, nil, nil)
	s.Pointer(PointerEvent{Kind: PointerEnter, NodeID: "C"})

	for _, e := range s.Edges() {
		touches := e.Source == "C" || e.Target == "C"
		if e.Highlighted != touches {
			t.Errorf("edge %s highlighted = %v", e.Key(), e.Highlighted)
		}
	}
	f, _ := s.Tick(frame)
	if f.Hovered != "C" || len(f.Highlighted) != 2 {
		t.Errorf("frame hover = %q %v", f.Hovered, f.Highlighted)
	}
}

func TestJumpToAndNavigate(t *testing.T) {
	s := newScene(t, nil, nil, nil)
	posC, _ := s.Store().Get("C")

	pose, err := s.JumpTo("C")
	if err != nil {
		t.Fatal(err)
	}
	if pose.LookAt != posC {
		t.Errorf("JumpTo() look-at = %v, want %v", pose.LookAt, posC)
	}

	anim, err := s.NavigateTo("B")
	if err != nil {
		t.Fatal(err)
	}
	if anim.Start != pose {
		t.Errorf("navigation started at %+v, want %+v", anim.Start, pose)
	}
	if s.SetCameraPose(camera.Pose{}) {
		t.Error("user camera input accepted while transiting")
	}
}

func TestInvalidGraph(t *testing.T) {
	g, _ := model.FromNodes([]*model.Node{{ID: "x", Type: model.NodeTypeSkill}})
	if _, err := New(g, nil, nil, nil); !errors.Is(err, model.ErrNoMainNode) {
		t.Errorf("New() error = %v, want ErrNoMainNode", err)
	}
}

func TestRunPublishesFrames(t *testing.T) {
	pub := pubsub.NewSSEPublisher()
	defer pub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newScene(t, pub, nil, nil)
	sub, err := pub.Subscribe(ctx, pubsub.TopicFrames)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 100) }()
	s.Select("B")

	select {
	case ev := <-sub.Events():
		if ev.Type != "frame" {
			t.Errorf("event type = %q", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame published")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop")
	}

	if err := s.Run(context.Background(), 0); err == nil {
		t.Error("Run() accepted zero fps")
	}
}
