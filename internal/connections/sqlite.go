package connections

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ternarybob/ordino/internal/models"
)

// sqliteConnection is one open session against a sqlite database file
type sqliteConnection struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, path string) (*sqliteConnection, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &sqliteConnection{db: db}, nil
}

// ExecuteQuery runs rendered SQL and materializes the result set
func (c *sqliteConnection) ExecuteQuery(ctx context.Context, query string, rowLimit int) (*models.Dataset, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	dataset := models.NewDataset(columns)
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if rowLimit > 0 && dataset.RowCount() >= rowLimit {
			break
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record := make(models.Record, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		dataset.Append(record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("result iteration failed: %w", err)
	}

	return dataset, nil
}

// Close releases the session
func (c *sqliteConnection) Close() error {
	return c.db.Close()
}

// normalizeValue converts driver byte slices to strings so records compare
// and serialize predictably
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
