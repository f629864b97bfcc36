package memgraph

// Node returns a copy of the node's properties, or nil.
func (g *Graph) Node(label, name string) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nodes[label][name] == nil {
		return nil
	}
	return g.nodeValue(label, name)
}

func (g *Graph) NodeCount(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes[label])
}

func (g *Graph) EdgeCount(relType string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges[relType])
}

// Edge reports whether start-[relType]->end exists and returns its name property.
func (g *Graph) Edge(relType, startLabel, start, endLabel, end string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	props, ok := g.edges[relType][edgeKey{startLabel, start, endLabel, end}]
	if !ok {
		return "", false
	}
	name, _ := props["name"].(string)
	return name, true
}

// Queries returns every statement seen, whitespace-collapsed.
func (g *Graph) Queries() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

func (g *Graph) HasConstraint(label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.constraints[label]
}
