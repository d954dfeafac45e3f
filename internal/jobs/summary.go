package jobs

import (
	"time"

	"github.com/ternarybob/ordino/internal/models"
)

// RunSummary aggregates the outcomes of one orchestrated run
type RunSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
	Outcomes   []*Outcome    `json:"outcomes"` // In execution order
	TotalRows  int           `json:"total_rows"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
}

// add folds one outcome into the summary counters
func (s *RunSummary) add(outcome *Outcome) {
	s.Outcomes = append(s.Outcomes, outcome)
	switch outcome.State {
	case models.JobStateSucceeded:
		s.Succeeded++
		if outcome.Record != nil {
			s.TotalRows += outcome.Record.RowCount
		}
	case models.JobStateFailed:
		s.Failed++
	case models.JobStateSkipped:
		s.Skipped++
	}
}

// Outcome lookup by job id
func (s *RunSummary) Outcome(queryID string) *Outcome {
	for _, outcome := range s.Outcomes {
		if outcome.QueryID == queryID {
			return outcome
		}
	}
	return nil
}

// PartiallyFailed reports whether any job failed or was skipped
func (s *RunSummary) PartiallyFailed() bool {
	return s.Failed > 0 || s.Skipped > 0
}
