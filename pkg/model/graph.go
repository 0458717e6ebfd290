package model

import "fmt"

// Graph is the portfolio graph: an ordered set of nodes with their declared connections.
// Order is irrelevant to the layout but keeps UI listings and edge resolution deterministic.
type Graph struct {
	Nodes []*Node `json:"nodes" yaml:"nodes"`

	index map[string]*Node
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make([]*Node, 0),
		index: make(map[string]*Node),
	}
}

// FromNodes builds a graph from a node list, rejecting duplicate ids.
func FromNodes(nodes []*Node) (*Graph, error) {
	g := NewGraph()
	for _, node := range nodes {
		if node == nil {
			continue
		}
		if _, exists := g.index[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		g.AddNode(node)
	}
	return g, nil
}

// Node represents a vertex in the portfolio graph: the profile, a project, a skill or a lesson.
type Node struct {
	ID            string                 `json:"id" yaml:"id" validate:"required"`
	Type          NodeType               `json:"type" yaml:"type" validate:"required,oneof=main project skill lesson"`
	Category      string                 `json:"category,omitempty" yaml:"category,omitempty"`
	SkillCategory string                 `json:"skillCategory,omitempty" yaml:"skillCategory,omitempty"`
	Label         string                 `json:"label" yaml:"label"`
	Connections   []string               `json:"connections" yaml:"connections"`
	Color         string                 `json:"color,omitempty" yaml:"color,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it is replaced in place.
func (g *Graph) AddNode(node *Node) {
	if g.index == nil {
		g.reindex()
	}
	if node.Connections == nil {
		node.Connections = make([]string, 0)
	}
	if existing, ok := g.index[node.ID]; ok {
		for i, n := range g.Nodes {
			if n == existing {
				g.Nodes[i] = node
				break
			}
		}
	} else {
		g.Nodes = append(g.Nodes, node)
	}
	g.index[node.ID] = node
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	if g.index == nil {
		g.reindex()
	}
	node, ok := g.index[id]
	return node, ok
}

// Has reports whether a node with the given id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// MainNode returns the unique node of type main, the anchor of the layout.
func (g *Graph) MainNode() (*Node, error) {
	var main *Node
	for _, node := range g.Nodes {
		if node.Type != NodeTypeMain {
			continue
		}
		if main != nil {
			return nil, fmt.Errorf("%w: %q and %q", ErrMultipleMainNodes, main.ID, node.ID)
		}
		main = node
	}
	if main == nil {
		return nil, ErrNoMainNode
	}
	return main, nil
}

// IDs returns node ids in graph order.
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, node := range g.Nodes {
		ids[i] = node.ID
	}
	return ids
}

// Clone returns a copy whose nodes and connection slices can be mutated independently.
// Details payloads are shared.
func (g *Graph) Clone() *Graph {
	clone := NewGraph()
	for _, node := range g.Nodes {
		n := *node
		n.Connections = append(make([]string, 0, len(node.Connections)), node.Connections...)
		clone.AddNode(&n)
	}
	return clone
}

func (g *Graph) reindex() {
	g.index = make(map[string]*Node, len(g.Nodes))
	for _, node := range g.Nodes {
		g.index[node.ID] = node
	}
}
