package interfaces

import (
	"context"

	"github.com/ternarybob/ordino/internal/models"
)

// AuditFilter narrows audit history queries
type AuditFilter struct {
	QueryID string // Filter by job id; empty matches all
	Limit   int    // Max records returned, newest first; <= 0 uses a default
}

// TableInfo describes one stored result table
type TableInfo struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
}

// AuditSink records every job execution. Records are append-only: once
// written they are never mutated, regardless of outcome.
type AuditSink interface {
	// Append persists a sealed execution record
	Append(ctx context.Context, record *models.ExecutionRecord) error

	// Query returns execution history matching the filter, newest first
	Query(ctx context.Context, filter AuditFilter) ([]*models.ExecutionRecord, error)
}

// ResultStore persists job result datasets and per-record validation
// outcomes. The on-disk layout is the store's own concern; the core only
// relies on the operations below.
type ResultStore interface {
	// SaveDataset stores a dataset under a table name, replacing any
	// previous contents when replace is true
	SaveDataset(ctx context.Context, table string, dataset *models.Dataset, replace bool) error

	// LoadDataset returns a previously stored dataset in its original row order
	LoadDataset(ctx context.Context, table string) (*models.Dataset, error)

	// ListTables enumerates stored result tables
	ListTables(ctx context.Context) ([]TableInfo, error)

	// DropTable removes a result table. It refuses members of the protected
	// set used for audit and bookkeeping storage, returning false.
	DropTable(ctx context.Context, table string) (bool, error)

	// NextExecutionCount returns a strictly increasing sequence number scoped
	// to the given output table, so repeated validation runs append history
	// rather than overwrite it
	NextExecutionCount(ctx context.Context, table string) (int, error)

	// SaveValidationOutcomes persists one batch of per-record outcomes
	SaveValidationOutcomes(ctx context.Context, outcomes []*models.StoredValidationOutcome) error

	// LoadValidationOutcomes returns stored outcomes for an output table,
	// ordered by execution count then record index
	LoadValidationOutcomes(ctx context.Context, table string) ([]*models.StoredValidationOutcome, error)
}
