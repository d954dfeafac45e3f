package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle. Path holds the actual cycle: each
// consecutive pair (including the wraparound from last to first) is a real
// dependency edge.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency detected: %s", strings.Join(e.Path, " -> "))
}

// UnknownDependencyError reports a job depending on an undeclared job
type UnknownDependencyError struct {
	JobID      string
	MissingRef string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("job %s depends on undeclared job %s", e.JobID, e.MissingRef)
}

// DuplicateJobError reports two jobs declared with the same query_id
type DuplicateJobError struct {
	JobID string
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("duplicate job query_id: %s", e.JobID)
}
