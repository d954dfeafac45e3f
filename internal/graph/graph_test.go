package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/ordino/internal/models"
)

// loadJob creates a minimal load-kind job for graph tests
func loadJob(id string, deps ...string) *models.Job {
	return &models.Job{
		QueryID:       id,
		Kind:          models.JobKindLoad,
		ConnectionRef: "main",
		QueryTemplate: "SELECT 1",
		Dependencies:  deps,
	}
}

func TestBuild_Simple(t *testing.T) {
	g, err := Build([]*models.Job{
		loadJob("extract"),
		loadJob("transform", "extract"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"extract", "transform"}, g.JobIDs())
	assert.Equal(t, []string{"extract"}, g.DependenciesOf("transform"))
	assert.Equal(t, []string{"transform"}, g.DependentsOf("extract"))
}

func TestBuild_DuplicateJob(t *testing.T) {
	_, err := Build([]*models.Job{
		loadJob("extract"),
		loadJob("extract"),
	})
	require.Error(t, err)

	var dup *DuplicateJobError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "extract", dup.JobID)
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := Build([]*models.Job{
		loadJob("transform", "missing"),
	})
	require.Error(t, err)

	var unknown *UnknownDependencyError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "transform", unknown.JobID)
	assert.Equal(t, "missing", unknown.MissingRef)
}

func TestBuild_CycleReportsActualPath(t *testing.T) {
	_, err := Build([]*models.Job{
		loadJob("a", "c"),
		loadJob("b", "a"),
		loadJob("c", "b"),
	})
	require.Error(t, err)

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	require.Len(t, cycle.Path, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle.Path)

	// Every consecutive pair, wraparound included, must be a real edge:
	// each path element depends on the next one
	jobs := map[string][]string{"a": {"c"}, "b": {"a"}, "c": {"b"}}
	for i, id := range cycle.Path {
		next := cycle.Path[(i+1)%len(cycle.Path)]
		assert.Contains(t, jobs[id], next, "expected %s to depend on %s", id, next)
	}
}

func TestBuild_ValidationJobImplicitDependency(t *testing.T) {
	validate := &models.Job{
		QueryID:              "check_users",
		Kind:                 models.JobKindValidate,
		MainQueryRef:         "load_users",
		ValidationRoutineRef: "not_empty",
	}
	g, err := Build([]*models.Job{loadJob("load_users"), validate})
	require.NoError(t, err)

	assert.Equal(t, []string{"load_users"}, g.DependenciesOf("check_users"))
}

func TestExecutionLevels_DiamondShape(t *testing.T) {
	g, err := Build([]*models.Job{
		loadJob("root"),
		loadJob("left", "root"),
		loadJob("right", "root"),
		loadJob("join", "left", "right"),
	})
	require.NoError(t, err)

	levels, err := g.ExecutionLevels()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"root"},
		{"left", "right"},
		{"join"},
	}, levels)
}

func TestExecutionLevels_DeclarationOrderTieBreak(t *testing.T) {
	g, err := Build([]*models.Job{
		loadJob("zeta"),
		loadJob("alpha"),
		loadJob("mid"),
	})
	require.NoError(t, err)

	levels, err := g.ExecutionLevels()
	require.NoError(t, err)

	// Ties resolve by declaration order, not by name
	require.Len(t, levels, 1)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, levels[0])
}

func TestTopologicalOrder_EveryJobAfterItsDependencies(t *testing.T) {
	g, err := Build([]*models.Job{
		loadJob("a"),
		loadJob("b", "a"),
		loadJob("c", "a"),
		loadJob("d", "b", "c"),
		loadJob("e"),
	})
	require.NoError(t, err)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 5)

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for _, id := range g.JobIDs() {
		for _, dep := range g.DependenciesOf(id) {
			assert.Less(t, position[dep], position[id], "%s must come after %s", id, dep)
		}
	}
}

func TestClosure_PullsTransitiveDependencies(t *testing.T) {
	g, err := Build([]*models.Job{
		loadJob("a"),
		loadJob("b", "a"),
		loadJob("c", "b"),
		loadJob("unrelated"),
	})
	require.NoError(t, err)

	closure, err := g.Closure([]string{"c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, closure)
}

func TestClosure_UnknownSelection(t *testing.T) {
	g, err := Build([]*models.Job{loadJob("a")})
	require.NoError(t, err)

	_, err = g.Closure([]string{"nope"})
	require.Error(t, err)
}

func TestTransitiveDependents(t *testing.T) {
	g, err := Build([]*models.Job{
		loadJob("a"),
		loadJob("b", "a"),
		loadJob("c", "b"),
		loadJob("d", "a"),
		loadJob("unrelated"),
	})
	require.NoError(t, err)

	dependents := g.TransitiveDependents("a")
	assert.ElementsMatch(t, []string{"b", "c", "d"}, dependents)
	assert.Empty(t, g.TransitiveDependents("c"))
}

func TestExecutionLevelsFor_SubsetIgnoresOutsideEdges(t *testing.T) {
	g, err := Build([]*models.Job{
		loadJob("a"),
		loadJob("b", "a"),
		loadJob("c", "b"),
	})
	require.NoError(t, err)

	// Without the closure, b's dependency on a is outside the set and ignored
	levels, err := g.ExecutionLevelsFor([]string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b"}, {"c"}}, levels)
}
