package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const defaultHistoryLimit = 100

// AuditStorage implements the AuditSink interface for Badger
type AuditStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuditStorage creates a new AuditStorage instance
func NewAuditStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuditSink {
	return &AuditStorage{
		db:     db,
		logger: logger,
	}
}

// Append persists a sealed execution record. Records are keyed by run ID and
// never updated afterwards.
func (s *AuditStorage) Append(ctx context.Context, record *models.ExecutionRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("execution record run_id is required")
	}
	if err := s.db.Store().Insert(record.RunID, record); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("execution record %s already written", record.RunID)
		}
		return fmt.Errorf("failed to append execution record: %w", err)
	}
	return nil
}

// Query returns execution history matching the filter, newest first
func (s *AuditStorage) Query(ctx context.Context, filter interfaces.AuditFilter) ([]*models.ExecutionRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := badgerhold.Where("RunID").Ne("")
	if filter.QueryID != "" {
		query = badgerhold.Where("QueryID").Eq(filter.QueryID).Index("QueryID")
	}
	query = query.SortBy("StartedAt").Reverse().Limit(limit)

	var records []models.ExecutionRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}

	result := make([]*models.ExecutionRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}
