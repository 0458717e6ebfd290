package lens

import (
	"sort"

	"github.com/ritzau/neural-portfolio/pkg/graph"
	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/traverse"
)

// hiddenReach returns the visible nodes reachable from start through at least one
// hidden node, expanding only through hidden nodes. start itself is excluded.
func hiddenReach(cg *graph.ConnectionGraph, start string, visible func(id string) bool) []string {
	startID, ok := cg.ID(start)
	if !ok {
		return nil
	}
	g := cg.Graph()

	var reached []string
	bfs := traverse.BreadthFirst{
		Traverse: func(e gonumgraph.Edge) bool {
			from := cg.Label(e.From().ID())
			to := cg.Label(e.To().ID())
			if e.From().ID() == startID {
				// Leave the start only through hidden neighbors.
				return !visible(to)
			}
			return !visible(from)
		},
		Visit: func(n gonumgraph.Node) {
			if n.ID() == startID {
				return
			}
			if id := cg.Label(n.ID()); visible(id) {
				reached = append(reached, id)
			}
		},
	}
	bfs.Walk(g, g.Node(startID), nil)

	sort.Strings(reached)
	return reached
}

// HopDistances returns the number of hops from start to every reachable node.
func HopDistances(cg *graph.ConnectionGraph, start string) map[string]int {
	startID, ok := cg.ID(start)
	if !ok {
		return nil
	}
	g := cg.Graph()

	distances := map[string]int{start: 0}
	var bfs traverse.BreadthFirst
	bfs.Walk(g, g.Node(startID), func(n gonumgraph.Node, depth int) bool {
		distances[cg.Label(n.ID())] = depth
		return false
	})
	return distances
}
