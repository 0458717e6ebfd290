package lens

import (
	"encoding/json"
	"sort"

	"github.com/ritzau/neural-portfolio/pkg/graph"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"github.com/ritzau/neural-portfolio/pkg/positions"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultEdgeColor is used when neither endpoint declares a color.
const DefaultEdgeColor = "#4a5568"

const (
	directPrefix   = "direct|"
	indirectPrefix = "indirect|"
)

// Edge is a connection to render.
type Edge struct {
	Source         string `json:"source"`
	Target         string `json:"target"`
	SourcePosition r3.Vec `json:"sourcePosition"`
	TargetPosition r3.Vec `json:"targetPosition"`
	Color          string `json:"color"`
	Indirect       bool   `json:"indirect"`
	Highlighted    bool   `json:"highlighted"`
}

// MarshalJSON writes endpoint positions with lowercase x, y and z keys
func (e Edge) MarshalJSON() ([]byte, error) {
	type plain Edge
	return json.Marshal(struct {
		plain
		SourcePosition positions.Point `json:"sourcePosition"`
		TargetPosition positions.Point `json:"targetPosition"`
	}{
		plain:          plain(e),
		SourcePosition: positions.PointOf(e.SourcePosition),
		TargetPosition: positions.PointOf(e.TargetPosition),
	})
}

// Key identifies the edge. Direct and indirect edges live in separate key spaces.
func (e Edge) Key() string {
	if e.Indirect {
		return indirectPrefix + graph.PairKey(e.Source, e.Target)
	}
	return directPrefix + graph.PairKey(e.Source, e.Target)
}

// Input is everything edge resolution depends on.
type Input struct {
	Graph       *model.Graph
	Connections *graph.ConnectionGraph
	Filter      Filter
	// Positions places edge endpoints. When non-nil, edges with an unplaced endpoint
	// are skipped.
	Positions map[string]r3.Vec
	// Hovered marks edges touching this node as highlighted.
	Hovered string
}

// Resolve returns the edges to render: direct edges between visible nodes in
// declaration order, followed by indirect edges sorted by key. An indirect edge is
// dropped when a direct edge joins the same pair.
func Resolve(in Input) []Edge {
	if in.Graph == nil {
		return nil
	}
	cg := in.Connections
	if cg == nil {
		cg = graph.Build(in.Graph)
	}

	visible := func(id string) bool {
		n, ok := in.Graph.Node(id)
		return ok && in.Filter.Visible(n.Type)
	}

	var edges []Edge
	for _, p := range cg.Pairs() {
		if !visible(p.Source) || !visible(p.Target) {
			continue
		}
		e, ok := in.edge(p.Source, p.Target, false)
		if !ok {
			continue
		}
		edges = append(edges, e)
	}

	seen := make(map[string]bool)
	var indirect []Edge
	for _, node := range in.Graph.Nodes {
		if !visible(node.ID) {
			continue
		}
		for _, other := range hiddenReach(cg, node.ID, visible) {
			key := graph.PairKey(node.ID, other)
			if seen[key] || cg.Connected(node.ID, other) {
				continue
			}
			seen[key] = true
			if e, ok := in.edge(node.ID, other, true); ok {
				indirect = append(indirect, e)
			}
		}
	}
	sort.Slice(indirect, func(i, j int) bool {
		return indirect[i].Key() < indirect[j].Key()
	})

	return append(edges, indirect...)
}

func (in Input) edge(source, target string, indirect bool) (Edge, bool) {
	e := Edge{
		Source:      source,
		Target:      target,
		Color:       edgeColor(in.Graph, source, target),
		Indirect:    indirect,
		Highlighted: in.Hovered != "" && (source == in.Hovered || target == in.Hovered),
	}
	if in.Positions != nil {
		sp, sok := in.Positions[source]
		tp, tok := in.Positions[target]
		if !sok || !tok {
			return Edge{}, false
		}
		e.SourcePosition, e.TargetPosition = sp, tp
	}
	return e, true
}

func edgeColor(g *model.Graph, source, target string) string {
	if n, ok := g.Node(source); ok && n.Color != "" {
		return n.Color
	}
	if n, ok := g.Node(target); ok && n.Color != "" {
		return n.Color
	}
	return DefaultEdgeColor
}

// Counts returns the number of direct and indirect edges
func Counts(edges []Edge) (direct, indirect int) {
	for _, e := range edges {
		if e.Indirect {
			indirect++
		} else {
			direct++
		}
	}
	return direct, indirect
}
