package models

import (
	"time"

	"github.com/ternarybob/ordino/internal/common"
)

// JobState represents a job's position in its execution lifecycle.
// Pending, Rendering and Dispatched are transient; the rest are terminal.
type JobState string

// JobState constants
const (
	JobStatePending    JobState = "pending"
	JobStateRendering  JobState = "rendering"
	JobStateDispatched JobState = "dispatched"
	JobStateSucceeded  JobState = "succeeded"
	JobStateFailed     JobState = "failed"
	JobStateSkipped    JobState = "skipped" // Dependency failed upstream, never dispatched
)

// IsTerminal reports whether the state is final
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateSkipped:
		return true
	default:
		return false
	}
}

// RunStatus is the outcome recorded in the audit trail
type RunStatus string

// RunStatus constants
const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// ExecutionRecord is the immutable audit entry for one job invocation.
// Created at dispatch, sealed exactly once at the terminal transition,
// and never mutated afterwards.
type ExecutionRecord struct {
	RunID         string    `json:"run_id" badgerhold:"key"`
	QueryID       string    `json:"query_id" badgerholdIndex:"QueryID"`
	Kind          JobKind   `json:"kind"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Status        RunStatus `json:"status"`
	RowCount      int       `json:"row_count"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	TargetTable   string    `json:"target_table,omitempty"`
	ConnectionRef string    `json:"connection,omitempty"`
}

// NewExecutionRecord creates a record for a fresh job dispatch
func NewExecutionRecord(job *Job) *ExecutionRecord {
	return &ExecutionRecord{
		RunID:         common.NewRunID(),
		QueryID:       job.QueryID,
		Kind:          job.Kind,
		StartedAt:     time.Now(),
		ConnectionRef: job.ConnectionRef,
	}
}

// Seal finalizes the record with its outcome. Sealing is idempotent in the
// sense that callers invoke it exactly once per record.
func (r *ExecutionRecord) Seal(status RunStatus, rowCount int, errMsg string) {
	r.FinishedAt = time.Now()
	r.Status = status
	r.RowCount = rowCount
	r.ErrorMessage = errMsg
}

// Duration returns the elapsed execution time
func (r *ExecutionRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
