package graph

// TopologicalOrder returns every job id in a valid execution order.
// Jobs that become ready at the same time keep their declaration order, so
// repeated runs over unchanged configuration always order identically.
func (g *Graph) TopologicalOrder() ([]string, error) {
	return g.TopologicalOrderFor(g.order)
}

// TopologicalOrderFor is TopologicalOrder restricted to the induced subgraph
// over the given job ids.
func (g *Graph) TopologicalOrderFor(ids []string) ([]string, error) {
	levels, err := g.ExecutionLevelsFor(ids)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(ids))
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// ExecutionLevels partitions all jobs into parallel-safe levels: level 0
// holds jobs with no dependencies, level k holds jobs whose dependencies all
// lie in levels below k.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	return g.ExecutionLevelsFor(g.order)
}

// ExecutionLevelsFor computes execution levels for the induced subgraph over
// the given job ids. Dependencies outside the id set are ignored; callers
// resolve closures first when prerequisites must be included.
//
// Kahn's algorithm variant: repeatedly collect every currently zero-in-degree
// node as one level, then decrement the in-degrees of their dependents. A
// pass that yields no new level before all nodes are consumed means a cycle,
// the same condition Build rejects.
func (g *Graph) ExecutionLevelsFor(ids []string) ([][]string, error) {
	included := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, exists := g.jobs[id]; !exists {
			return nil, &UnknownDependencyError{JobID: id, MissingRef: id}
		}
		included[id] = true
	}

	inDegree := make(map[string]int, len(ids))
	for _, id := range g.order {
		if !included[id] {
			continue
		}
		count := 0
		for _, dep := range g.deps[id] {
			if included[dep] {
				count++
			}
		}
		inDegree[id] = count
	}

	var levels [][]string
	remaining := len(inDegree)
	done := make(map[string]bool, remaining)

	for remaining > 0 {
		var level []string
		// Declaration-order scan keeps the tie-break deterministic
		for _, id := range g.order {
			if included[id] && !done[id] && inDegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, &CycleError{Path: g.findCycle()}
		}
		for _, id := range level {
			done[id] = true
			remaining--
			for _, dependent := range g.dependents[id] {
				if included[dependent] {
					inDegree[dependent]--
				}
			}
		}
		levels = append(levels, level)
	}

	return levels, nil
}
