// Package interfaces defines the narrow contracts the execution core
// consumes from its collaborators: connections, storage, record sources and
// validation routines. The core treats every implementation as a black box.
package interfaces

import (
	"context"
	"fmt"

	"github.com/ternarybob/ordino/internal/models"
)

// ConnectionError wraps a failure to reach or authenticate against a
// backend, keeping it distinguishable from query-level errors.
type ConnectionError struct {
	Ref string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Ref, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Connection is an open session against one backend. Each job owns its
// connection for the duration of its dispatch; connections are not shared
// across concurrently executing jobs.
type Connection interface {
	// ExecuteQuery runs rendered SQL and returns the result set.
	// A rowLimit <= 0 means unlimited.
	ExecuteQuery(ctx context.Context, sql string, rowLimit int) (*models.Dataset, error)

	// Close releases the session
	Close() error
}

// ConnectionProvider resolves a connection reference from the job definition
// to an open session.
type ConnectionProvider interface {
	Open(ctx context.Context, ref string) (Connection, error)
}

// RecordSource reads rows for CSV-backed jobs, bypassing SQL entirely
type RecordSource interface {
	ReadAll(ctx context.Context) (*models.Dataset, error)
}

// CSVSink writes a dataset to an external CSV destination for export jobs
type CSVSink interface {
	Write(ctx context.Context, path string, dataset *models.Dataset) error
}
