package graph

// DFS node colors for cycle detection
type visitColor int

const (
	colorUnvisited visitColor = iota
	colorInProgress
	colorDone
)

// findCycle runs a three-color DFS over the dependency edges and returns the
// first cycle found as its actual node path, or nil when the graph is acyclic.
// Nodes are visited in declaration order so the reported cycle is stable.
func (g *Graph) findCycle() []string {
	colors := make(map[string]visitColor, len(g.order))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = colorInProgress
		path = append(path, id)

		for _, dep := range g.deps[id] {
			switch colors[dep] {
			case colorInProgress:
				// Found the cycle: slice the current path from the first
				// occurrence of dep, so the result is the minimal loop.
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append([]string(nil), path[start:]...)
				return true
			case colorUnvisited:
				if visit(dep) {
					return true
				}
			}
		}

		colors[id] = colorDone
		path = path[:len(path)-1]
		return false
	}

	for _, id := range g.order {
		if colors[id] == colorUnvisited {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
