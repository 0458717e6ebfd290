package model

// NormalizeConnections returns a copy of the graph whose connections are symmetric:
// for every declared A -> B, A is appended to B's list unless already present.
// Declared order is kept with back-references appended last. Connections to unknown
// ids are left in place and get no back-reference. The operation is idempotent.
func NormalizeConnections(g *Graph) *Graph {
	out := g.Clone()

	for _, node := range out.Nodes {
		// Only the declared prefix is walked; back-references appended to this node
		// during the pass are already symmetric.
		declared := len(node.Connections)
		for i := 0; i < declared; i++ {
			target, ok := out.Node(node.Connections[i])
			if !ok {
				continue
			}
			if !containsID(target.Connections, node.ID) {
				target.Connections = append(target.Connections, node.ID)
			}
		}
	}

	return out
}

// IsSymmetric reports whether every connection between existing nodes is mirrored.
func IsSymmetric(g *Graph) bool {
	for _, node := range g.Nodes {
		for _, id := range node.Connections {
			target, ok := g.Node(id)
			if !ok {
				continue
			}
			if !containsID(target.Connections, node.ID) {
				return false
			}
		}
	}
	return true
}

func containsID(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
