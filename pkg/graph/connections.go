package graph

import (
	"sort"

	"github.com/ritzau/neural-portfolio/pkg/model"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Pair is an undirected connection between two node ids, oriented the way it was first declared
type Pair struct {
	Source string
	Target string
}

// Key returns the orientation-independent key of the pair.
func (p Pair) Key() string {
	return PairKey(p.Source, p.Target)
}

// PairKey returns the sorted "a|b" key of an unordered id pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// ConnectionGraph is the undirected, deduplicated view of a portfolio graph's connections
type ConnectionGraph struct {
	graph  *simple.UndirectedGraph
	ids    map[string]int64 // node id -> graph ID
	labels map[int64]string // graph ID -> node id
	order  []string         // node ids in insertion order
	pairs  []Pair           // pairs in declaration order
	nextID int64
}

// NewConnectionGraph creates an empty connection graph
func NewConnectionGraph() *ConnectionGraph {
	return &ConnectionGraph{
		graph:  simple.NewUndirectedGraph(),
		ids:    make(map[string]int64),
		labels: make(map[int64]string),
	}
}

// Build creates the connection graph of g. Connections naming unknown ids and self
// references are skipped; a pair declared from both ends appears once.
func Build(g *model.Graph) *ConnectionGraph {
	cg := NewConnectionGraph()

	for _, node := range g.Nodes {
		cg.AddNode(node.ID)
	}
	for _, node := range g.Nodes {
		for _, target := range node.Connections {
			if !cg.Has(target) {
				continue
			}
			cg.Connect(node.ID, target)
		}
	}

	return cg
}

// AddNode adds a node id to the graph
func (cg *ConnectionGraph) AddNode(id string) {
	if _, exists := cg.ids[id]; exists {
		return
	}

	cg.ids[id] = cg.nextID
	cg.labels[cg.nextID] = id
	cg.order = append(cg.order, id)
	cg.graph.AddNode(simple.Node(cg.nextID))

	cg.nextID++
}

// Connect adds an undirected edge between a and b, adding missing nodes.
// Returns false for self references and for pairs already present.
func (cg *ConnectionGraph) Connect(a, b string) bool {
	if a == b {
		return false
	}
	cg.AddNode(a)
	cg.AddNode(b)

	aID, bID := cg.ids[a], cg.ids[b]
	if cg.graph.HasEdgeBetween(aID, bID) {
		return false
	}
	cg.graph.SetEdge(cg.graph.NewEdge(cg.graph.Node(aID), cg.graph.Node(bID)))
	cg.pairs = append(cg.pairs, Pair{Source: a, Target: b})
	return true
}

// Has reports whether the node id is part of the graph
func (cg *ConnectionGraph) Has(id string) bool {
	_, ok := cg.ids[id]
	return ok
}

// Connected reports whether a and b share an edge
func (cg *ConnectionGraph) Connected(a, b string) bool {
	aID, aOK := cg.ids[a]
	bID, bOK := cg.ids[b]
	if !aOK || !bOK {
		return false
	}
	return cg.graph.HasEdgeBetween(aID, bID)
}

// ID returns the gonum node ID for a node id
func (cg *ConnectionGraph) ID(id string) (int64, bool) {
	gid, ok := cg.ids[id]
	return gid, ok
}

// Label returns the node id for a gonum node ID
func (cg *ConnectionGraph) Label(gid int64) string {
	return cg.labels[gid]
}

// Graph returns the underlying undirected graph
func (cg *ConnectionGraph) Graph() *simple.UndirectedGraph {
	return cg.graph
}

// Nodes returns node ids in insertion order
func (cg *ConnectionGraph) Nodes() []string {
	return append([]string(nil), cg.order...)
}

// Pairs returns every connection once, in declaration order
func (cg *ConnectionGraph) Pairs() []Pair {
	return append([]Pair(nil), cg.pairs...)
}

// Degree returns the number of distinct neighbors of a node
func (cg *ConnectionGraph) Degree(id string) int {
	gid, ok := cg.ids[id]
	if !ok {
		return 0
	}
	return cg.graph.From(gid).Len()
}

// Neighbors returns the sorted ids directly connected to a node
func (cg *ConnectionGraph) Neighbors(id string) []string {
	gid, ok := cg.ids[id]
	if !ok {
		return nil
	}

	var neighbors []string
	iter := cg.graph.From(gid)
	for iter.Next() {
		neighbors = append(neighbors, cg.labels[iter.Node().ID()])
	}
	sort.Strings(neighbors)

	return neighbors
}

// Components returns the connected components as sorted id lists, largest first
func (cg *ConnectionGraph) Components() [][]string {
	var components [][]string
	for _, comp := range topo.ConnectedComponents(cg.graph) {
		ids := make([]string, 0, len(comp))
		for _, n := range comp {
			ids = append(ids, cg.labels[n.ID()])
		}
		sort.Strings(ids)
		components = append(components, ids)
	}

	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})

	return components
}
