package badger

import (
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func init() {
	// Record and outcome detail values travel through interface{} fields;
	// gob needs the concrete types registered before encoding
	gob.Register(models.Record{})
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register([]string{})
	gob.Register(int64(0))
	gob.Register(time.Time{})
}

// protectedTables are the logical table names the store refuses to drop:
// they back the audit trail and the store's own bookkeeping.
var protectedTables = map[string]bool{
	"audit_job_runs":    true,
	"ordino_tables":     true,
	"ordino_counters":   true,
	"ordino_validation": true,
}

// storedRow is one persisted result-table row
type storedRow struct {
	ID    string        `badgerhold:"key"` // <table>:<index>
	Table string        `badgerholdIndex:"Table"`
	Index int           // Original dataset row position
	Data  models.Record
}

// tableMeta tracks column order and row count per stored table
type tableMeta struct {
	Name      string `badgerhold:"key"`
	Columns   []string
	RowCount  int
	UpdatedAt time.Time
}

// executionCounter is the per-output-table validation batch sequence
type executionCounter struct {
	Table string `badgerhold:"key"`
	Count int
}

// ResultStorage implements the ResultStore interface for Badger
type ResultStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// Guards read-modify-write of execution counters
	counterMu sync.Mutex
}

// NewResultStorage creates a new ResultStorage instance
func NewResultStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResultStore {
	return &ResultStorage{
		db:     db,
		logger: logger,
	}
}

// SaveDataset stores a dataset under a table name
func (s *ResultStorage) SaveDataset(ctx context.Context, table string, dataset *models.Dataset, replace bool) error {
	if table == "" {
		return fmt.Errorf("table name is required")
	}
	if protectedTables[table] {
		return fmt.Errorf("table %s is protected", table)
	}

	store := s.db.Store()

	offset := 0
	if replace {
		if err := store.DeleteMatching(&storedRow{}, badgerhold.Where("Table").Eq(table).Index("Table")); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	} else {
		var meta tableMeta
		if err := store.Get(table, &meta); err == nil {
			offset = meta.RowCount
		}
	}

	for i, row := range dataset.Rows {
		record := &storedRow{
			ID:    fmt.Sprintf("%s:%d", table, offset+i),
			Table: table,
			Index: offset + i,
			Data:  row,
		}
		if err := store.Upsert(record.ID, record); err != nil {
			return fmt.Errorf("failed to save row %d of table %s: %w", i, table, err)
		}
	}

	meta := &tableMeta{
		Name:      table,
		Columns:   dataset.Columns,
		RowCount:  offset + len(dataset.Rows),
		UpdatedAt: time.Now(),
	}
	if err := store.Upsert(table, meta); err != nil {
		return fmt.Errorf("failed to save table metadata for %s: %w", table, err)
	}

	s.logger.Debug().
		Str("table", table).
		Int("rows", len(dataset.Rows)).
		Bool("replace", replace).
		Msg("Dataset saved")

	return nil
}

// LoadDataset returns a stored dataset in its original row order
func (s *ResultStorage) LoadDataset(ctx context.Context, table string) (*models.Dataset, error) {
	var meta tableMeta
	if err := s.db.Store().Get(table, &meta); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("table not found: %s", table)
		}
		return nil, fmt.Errorf("failed to load table metadata for %s: %w", table, err)
	}

	var rows []storedRow
	query := badgerhold.Where("Table").Eq(table).Index("Table")
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to load rows for table %s: %w", table, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })

	dataset := models.NewDataset(meta.Columns)
	for _, row := range rows {
		dataset.Append(row.Data)
	}
	return dataset, nil
}

// ListTables enumerates stored result tables sorted by name
func (s *ResultStorage) ListTables(ctx context.Context) ([]interfaces.TableInfo, error) {
	var metas []tableMeta
	if err := s.db.Store().Find(&metas, badgerhold.Where("Name").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })

	result := make([]interfaces.TableInfo, len(metas))
	for i, meta := range metas {
		result[i] = interfaces.TableInfo{Name: meta.Name, RowCount: meta.RowCount}
	}
	return result, nil
}

// DropTable removes a result table. Protected tables are refused.
func (s *ResultStorage) DropTable(ctx context.Context, table string) (bool, error) {
	if protectedTables[table] {
		s.logger.Warn().Str("table", table).Msg("Refusing to drop protected table")
		return false, nil
	}

	var meta tableMeta
	if err := s.db.Store().Get(table, &meta); err != nil {
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}

	if err := s.db.Store().DeleteMatching(&storedRow{}, badgerhold.Where("Table").Eq(table).Index("Table")); err != nil {
		return false, fmt.Errorf("failed to drop rows of table %s: %w", table, err)
	}
	if err := s.db.Store().Delete(table, &tableMeta{}); err != nil {
		return false, fmt.Errorf("failed to drop table metadata for %s: %w", table, err)
	}
	return true, nil
}

// NextExecutionCount returns the next batch sequence number for an output
// table. The sequence is strictly increasing so validation re-runs append.
func (s *ResultStorage) NextExecutionCount(ctx context.Context, table string) (int, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	var counter executionCounter
	err := s.db.Store().Get(table, &counter)
	if err != nil && err != badgerhold.ErrNotFound {
		return 0, fmt.Errorf("failed to read execution counter for %s: %w", table, err)
	}

	counter.Table = table
	counter.Count++
	if err := s.db.Store().Upsert(table, &counter); err != nil {
		return 0, fmt.Errorf("failed to advance execution counter for %s: %w", table, err)
	}
	return counter.Count, nil
}

// SaveValidationOutcomes persists one batch of per-record outcomes
func (s *ResultStorage) SaveValidationOutcomes(ctx context.Context, outcomes []*models.StoredValidationOutcome) error {
	for _, outcome := range outcomes {
		if outcome.ID == "" {
			outcome.ID = fmt.Sprintf("%s:%d:%s", outcome.OutputTable, outcome.ExecutionCount, outcome.PrimaryKeyValue)
		}
		if err := s.db.Store().Upsert(outcome.ID, outcome); err != nil {
			return fmt.Errorf("failed to save validation outcome %s: %w", outcome.ID, err)
		}
	}
	return nil
}

// LoadValidationOutcomes returns stored outcomes for an output table,
// ordered by execution count then record index
func (s *ResultStorage) LoadValidationOutcomes(ctx context.Context, table string) ([]*models.StoredValidationOutcome, error) {
	var outcomes []models.StoredValidationOutcome
	query := badgerhold.Where("OutputTable").Eq(table).Index("OutputTable")
	if err := s.db.Store().Find(&outcomes, query); err != nil {
		return nil, fmt.Errorf("failed to load validation outcomes for %s: %w", table, err)
	}

	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].ExecutionCount != outcomes[j].ExecutionCount {
			return outcomes[i].ExecutionCount < outcomes[j].ExecutionCount
		}
		return outcomes[i].RecordIndex < outcomes[j].RecordIndex
	})

	result := make([]*models.StoredValidationOutcome, len(outcomes))
	for i := range outcomes {
		result[i] = &outcomes[i]
	}
	return result, nil
}
