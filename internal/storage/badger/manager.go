package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/common"
	"github.com/ternarybob/ordino/internal/interfaces"
)

// Manager bundles the Badger-backed audit sink and result store behind a
// single database handle.
type Manager struct {
	db      *BadgerDB
	audit   interfaces.AuditSink
	results interfaces.ResultStore
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		audit:   NewAuditStorage(db, logger),
		results: NewResultStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// AuditSink returns the audit storage interface
func (m *Manager) AuditSink() interfaces.AuditSink {
	return m.audit
}

// ResultStore returns the result storage interface
func (m *Manager) ResultStore() interfaces.ResultStore {
	return m.results
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
