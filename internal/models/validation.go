package models

import "time"

// maxSampledFailures bounds how many failing/erroring record details a
// summary keeps for reporting.
const maxSampledFailures = 10

// ValidationOutcome is the result of validating a single record or a whole
// dataset. Record failures are data findings, not execution errors.
type ValidationOutcome struct {
	RecordIndex int                    `json:"record_index"`
	Success     bool                   `json:"success"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// ValidationSummary aggregates per-record outcomes for one validation job run
type ValidationSummary struct {
	Total          int                 `json:"total"`
	SuccessCount   int                 `json:"success_count"`
	FailureCount   int                 `json:"failure_count"`
	SuccessRate    float64             `json:"success_rate"`
	SampleFailures []ValidationOutcome `json:"sample_failures,omitempty"`
}

// Add accumulates one outcome into the summary
func (s *ValidationSummary) Add(outcome ValidationOutcome) {
	s.Total++
	if outcome.Success {
		s.SuccessCount++
	} else {
		s.FailureCount++
		if len(s.SampleFailures) < maxSampledFailures {
			s.SampleFailures = append(s.SampleFailures, outcome)
		}
	}
}

// Finalize computes the success rate once all outcomes are accumulated
func (s *ValidationSummary) Finalize() {
	if s.Total > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(s.Total) * 100.0
	}
}

// StoredValidationOutcome is the persisted form of a per-record outcome.
// Repeated runs of the same validation job append batches distinguished by a
// strictly increasing ExecutionCount, so history is preserved.
type StoredValidationOutcome struct {
	ID              string                 `json:"id" badgerhold:"key"`
	OutputTable     string                 `json:"output_table" badgerholdIndex:"OutputTable"`
	ExecutionCount  int                    `json:"execution_count"`
	PrimaryKeyValue string                 `json:"primary_key_value"`
	RecordIndex     int                    `json:"record_index"`
	Success         bool                   `json:"success"`
	Message         string                 `json:"message,omitempty"`
	Details         map[string]interface{} `json:"details,omitempty"`
	ValidatedAt     time.Time              `json:"validated_at"`
}
