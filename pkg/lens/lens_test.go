package lens

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ritzau/neural-portfolio/pkg/graph"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"gonum.org/v1/gonum/spatial/r3"
)

func buildGraph(t *testing.T, nodes ...*model.Node) *model.Graph {
	t.Helper()
	g, err := model.FromNodes(nodes)
	if err != nil {
		t.Fatalf("FromNodes() error = %v", err)
	}
	return model.NormalizeConnections(g)
}

func node(id string, typ model.NodeType, conns ...string) *model.Node {
	return &model.Node{ID: id, Type: typ, Connections: conns}
}

func keys(edges []Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Key()
	}
	return out
}

func TestResolveScenarioHidingProject(t *testing.T) {
	g := buildGraph(t,
		node("A", model.NodeTypeMain),
		node("B", model.NodeTypeProject, "A"),
		node("C", model.NodeTypeSkill, "B"),
	)
	edges := Resolve(Input{Graph: g, Filter: NewFilter(model.NodeTypeMain, model.NodeTypeSkill)})

	direct, indirect := Counts(edges)
	if direct != 0 || indirect != 1 {
		t.Fatalf("got %d direct, %d indirect edges, want 0 and 1: %v", direct, indirect, keys(edges))
	}
	if got := edges[0].Key(); got != "indirect|A|C" {
		t.Errorf("edge key = %q, want indirect|A|C", got)
	}
}

func TestResolveProjectsOnly(t *testing.T) {
	g := buildGraph(t,
		node("me", model.NodeTypeMain),
		node("pa", model.NodeTypeProject, "me", "x"),
		node("pb", model.NodeTypeProject, "me", "x"),
		node("x", model.NodeTypeSkill),
		node("l", model.NodeTypeLesson, "x"),
	)
	edges := Resolve(Input{Graph: g, Filter: NewFilter(model.NodeTypeProject)})

	indirectAB := 0
	for _, e := range edges {
		if e.Indirect {
			if e.Key() == "indirect|pa|pb" {
				indirectAB++
			}
			continue
		}
		for _, id := range []string{e.Source, e.Target} {
			n, _ := g.Node(id)
			if n.Type != model.NodeTypeProject {
				t.Errorf("direct edge %s has %s endpoint %s", e.Key(), n.Type, id)
			}
		}
	}
	if indirectAB != 1 {
		t.Errorf("indirect pa-pb edges = %d, want 1 (edges %v)", indirectAB, keys(edges))
	}
}

func TestResolveAllVisible(t *testing.T) {
	g := buildGraph(t,
		node("A", model.NodeTypeMain),
		node("B", model.NodeTypeProject, "A"),
		node("C", model.NodeTypeSkill, "B", "A"),
	)
	edges := Resolve(Input{Graph: g})
	want := []string{"direct|A|B", "direct|A|C", "direct|B|C"}
	if got := keys(edges); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestIndirectSuppressedByDirect(t *testing.T) {
	g := buildGraph(t,
		node("me", model.NodeTypeMain),
		node("p1", model.NodeTypeProject, "p2", "s"),
		node("p2", model.NodeTypeProject, "s"),
		node("s", model.NodeTypeSkill),
	)
	edges := Resolve(Input{Graph: g, Filter: NewFilter(model.NodeTypeProject)})
	want := []string{"direct|p1|p2"}
	if got := keys(edges); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestIndirectThroughHiddenChainOnly(t *testing.T) {
	g := buildGraph(t,
		node("me", model.NodeTypeMain),
		node("p1", model.NodeTypeProject, "s1"),
		node("s1", model.NodeTypeSkill, "s2"),
		node("s2", model.NodeTypeSkill, "p2"),
		node("p2", model.NodeTypeProject, "s3"),
		node("s3", model.NodeTypeSkill, "p3"),
		node("p3", model.NodeTypeProject),
	)
	edges := Resolve(Input{Graph: g, Filter: NewFilter(model.NodeTypeProject)})
	want := []string{"indirect|p1|p2", "indirect|p2|p3"}
	if got := keys(edges); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestEdgeColorFallback(t *testing.T) {
	g := buildGraph(t,
		&model.Node{ID: "A", Type: model.NodeTypeMain, Color: "#111111"},
		&model.Node{ID: "B", Type: model.NodeTypeProject, Connections: []string{"A", "C"}},
		&model.Node{ID: "C", Type: model.NodeTypeSkill},
		&model.Node{ID: "D", Type: model.NodeTypeSkill, Color: "#222222", Connections: []string{"B"}},
	)
	colors := map[string]string{}
	for _, e := range Resolve(Input{Graph: g}) {
		colors[e.Key()] = e.Color
	}

	want := map[string]string{
		"direct|A|B": "#111111",
		"direct|B|C": DefaultEdgeColor,
		"direct|B|D": "#222222",
	}
	if !reflect.DeepEqual(colors, want) {
		t.Errorf("colors = %v, want %v", colors, want)
	}
}

func TestResolvePositionsAndHighlight(t *testing.T) {
	g := buildGraph(t,
		node("A", model.NodeTypeMain),
		node("B", model.NodeTypeProject, "A"),
		node("C", model.NodeTypeSkill, "B"),
	)
	positions := map[string]r3.Vec{"A": {}, "B": {X: 8}}
	edges := Resolve(Input{
		Graph:       g,
		Connections: graph.Build(g),
		Positions:   positions,
		Hovered:     "A",
	})
	if len(edges) != 1 {
		t.Fatalf("got %v, want only A-B (C has no position)", keys(edges))
	}
	if edges[0].TargetPosition != (r3.Vec{X: 8}) && edges[0].SourcePosition != (r3.Vec{X: 8}) {
		t.Errorf("positions not attached: %+v", edges[0])
	}
	if !edges[0].Highlighted {
		t.Error("edge touching the hovered node not highlighted")
	}
}

func TestEdgeJSONKeys(t *testing.T) {
	e := Edge{Source: "A", Target: "B", TargetPosition: r3.Vec{X: 8}, Color: DefaultEdgeColor}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"source":"A","target":"B","color":"#4a5568","indirect":false,"highlighted":false,` +
		`"sourcePosition":{"x":0,"y":0,"z":0},"targetPosition":{"x":8,"y":0,"z":0}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestResolveIsPure(t *testing.T) {
	g := buildGraph(t,
		node("A", model.NodeTypeMain),
		node("B", model.NodeTypeProject, "A"),
		node("C", model.NodeTypeSkill, "B"),
		node("D", model.NodeTypeSkill, "B"),
	)
	in := Input{Graph: g, Filter: NewFilter(model.NodeTypeMain, model.NodeTypeSkill)}
	first := Resolve(in)
	for i := 0; i < 5; i++ {
		if got := Resolve(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, keys(got), keys(first))
		}
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(" main, Skill ,")
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if !f.Visible(model.NodeTypeMain) || !f.Visible(model.NodeTypeSkill) || f.Visible(model.NodeTypeProject) {
		t.Errorf("filter = %v", f)
	}
	if f.Key() != "main,skill" {
		t.Errorf("Key() = %q", f.Key())
	}

	all, _ := ParseFilter("")
	for _, typ := range model.NodeTypes {
		if !all.Visible(typ) {
			t.Errorf("empty filter hides %s", typ)
		}
	}

	if _, err := ParseFilter("main,planet"); err == nil {
		t.Error("ParseFilter() accepted an unknown type")
	}
}

func TestHopDistances(t *testing.T) {
	g := buildGraph(t,
		node("A", model.NodeTypeMain),
		node("B", model.NodeTypeProject, "A"),
		node("C", model.NodeTypeSkill, "B"),
		node("Z", model.NodeTypeSkill),
	)
	got := HopDistances(graph.Build(g), "A")
	want := map[string]int{"A": 0, "B": 1, "C": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HopDistances() = %v, want %v", got, want)
	}
}

func TestComputeDiff(t *testing.T) {
	ab := Edge{Source: "A", Target: "B", Color: DefaultEdgeColor}
	bc := Edge{Source: "B", Target: "C", Color: DefaultEdgeColor}
	ac := Edge{Source: "A", Target: "C", Color: DefaultEdgeColor, Indirect: true}

	full := ComputeDiff(nil, []Edge{ab, bc})
	if !full.Full || len(full.Added) != 2 {
		t.Errorf("initial diff = %+v", full)
	}

	snap := CreateSnapshot([]Edge{ab, bc})
	moved := bc
	moved.TargetPosition = r3.Vec{Y: 1}
	diff := ComputeDiff(snap, []Edge{moved, ac})

	if got := keys(diff.Added); !reflect.DeepEqual(got, []string{"indirect|A|C"}) {
		t.Errorf("added = %v", got)
	}
	if !reflect.DeepEqual(diff.Removed, []string{"direct|A|B"}) {
		t.Errorf("removed = %v", diff.Removed)
	}
	if got := keys(diff.Modified); !reflect.DeepEqual(got, []string{"direct|B|C"}) {
		t.Errorf("modified = %v", got)
	}

	same := ComputeDiff(CreateSnapshot([]Edge{ab}), []Edge{ab})
	if !same.Empty() {
		t.Errorf("diff of identical sets = %+v", same)
	}
	if CreateSnapshot([]Edge{ab}).Hash == CreateSnapshot([]Edge{bc}).Hash {
		t.Error("different edge sets share a hash")
	}
	if ComputeHash(NewFilter(model.NodeTypeMain), "") == ComputeHash(NewFilter(), "") {
		t.Error("different filters share a hash")
	}
}
