// Package graph builds the job dependency DAG and derives deterministic
// execution orderings from it. The graph is rebuilt from the job set on every
// run; acyclicity is a hard configuration invariant checked at build time.
package graph

import (
	"github.com/ternarybob/ordino/internal/models"
)

// Graph is the dependency DAG over a set of jobs. Edges run from a job to the
// jobs that must finish before it ("A before B" is an edge B -> A in deps and
// A -> B in dependents).
type Graph struct {
	jobs  map[string]*models.Job
	order []string // query_ids in declaration order, the deterministic tie-break

	deps       map[string][]string // job -> jobs it depends on
	dependents map[string][]string // job -> jobs that depend on it
}

// Build validates cross-job references and constructs the graph.
// It fails with DuplicateJobError, UnknownDependencyError or CycleError;
// any of these is a configuration error that aborts the run before dispatch.
func Build(jobs []*models.Job) (*Graph, error) {
	g := &Graph{
		jobs:       make(map[string]*models.Job, len(jobs)),
		order:      make([]string, 0, len(jobs)),
		deps:       make(map[string][]string, len(jobs)),
		dependents: make(map[string][]string, len(jobs)),
	}

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, err
		}
		if _, exists := g.jobs[job.QueryID]; exists {
			return nil, &DuplicateJobError{JobID: job.QueryID}
		}
		g.jobs[job.QueryID] = job
		g.order = append(g.order, job.QueryID)
	}

	for _, id := range g.order {
		job := g.jobs[id]
		for _, dep := range job.EffectiveDependencies() {
			if _, exists := g.jobs[dep]; !exists {
				return nil, &UnknownDependencyError{JobID: id, MissingRef: dep}
			}
			g.deps[id] = append(g.deps[id], dep)
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	return g, nil
}

// Job returns the job for a query_id, or nil if not declared
func (g *Graph) Job(id string) *models.Job {
	return g.jobs[id]
}

// JobIDs returns all query_ids in declaration order
func (g *Graph) JobIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// DependenciesOf returns the jobs that must finish before the given job
func (g *Graph) DependenciesOf(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// DependentsOf returns the jobs that directly depend on the given job
func (g *Graph) DependentsOf(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Closure returns the given jobs plus all of their transitive dependencies,
// in declaration order. A selected job cannot run without its prerequisites
// being part of the same invocation.
func (g *Graph) Closure(ids []string) ([]string, error) {
	required := make(map[string]bool, len(ids))
	queue := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, exists := g.jobs[id]; !exists {
			return nil, &UnknownDependencyError{JobID: id, MissingRef: id}
		}
		if !required[id] {
			required[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.deps[current] {
			if !required[dep] {
				required[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	result := make([]string, 0, len(required))
	for _, id := range g.order {
		if required[id] {
			result = append(result, id)
		}
	}
	return result, nil
}

// TransitiveDependents returns every job downstream of the given job.
// Used to propagate skips when a job fails.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	queue := append([]string(nil), g.dependents[id]...)
	result := make([]string, 0)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		result = append(result, current)
		queue = append(queue, g.dependents[current]...)
	}
	return result
}
