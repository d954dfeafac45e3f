package interfaces

import (
	"github.com/ternarybob/ordino/internal/models"
)

// ValidationContext carries job-level information into validation routines
type ValidationContext struct {
	JobID        string                 `json:"job_id"`
	MainQueryRef string                 `json:"main_query"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// PerRecordFunc judges a single record. A returned error marks that record
// as failed with the error text; it does not abort the validation job.
type PerRecordFunc func(record models.Record, vctx *ValidationContext) (models.ValidationOutcome, error)

// PerDatasetFunc judges a whole dataset at once. A returned error fails the
// validation job; an unsuccessful outcome fails it as a finding.
type PerDatasetFunc func(dataset *models.Dataset, vctx *ValidationContext) (models.ValidationOutcome, error)

// ValidationRoutine is the capability pair a routine reference resolves to.
// When both functions are present, per-record takes precedence.
type ValidationRoutine struct {
	PerRecord  PerRecordFunc
	PerDataset PerDatasetFunc
}

// RoutineLoader resolves a routine reference from a validation job
// definition to an executable routine. An unresolvable reference is a
// configuration error and must surface before any job dispatch.
type RoutineLoader interface {
	Load(ref string) (*ValidationRoutine, error)
}
