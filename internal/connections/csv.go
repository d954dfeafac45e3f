package connections

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/models"
)

// csvSource reads a CSV file as a dataset, bypassing SQL
type csvSource struct {
	path      string
	separator rune
	hasHeader bool
	logger    arbor.ILogger
}

// ReadAll reads the whole file in input order
func (s *csvSource) ReadAll(ctx context.Context) (*models.Dataset, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file %s: %w", s.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = s.separator
	reader.FieldsPerRecord = -1 // Tolerate ragged rows; short rows yield empty cells

	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return models.NewDataset(nil), nil
	}

	var columns []string
	var body [][]string
	if s.hasHeader {
		columns = raw[0]
		body = raw[1:]
	} else {
		for i := range raw[0] {
			columns = append(columns, fmt.Sprintf("col_%d", i+1))
		}
		body = raw
	}

	dataset := models.NewDataset(columns)
	for _, row := range body {
		record := make(models.Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				record[col] = row[i]
			} else {
				record[col] = ""
			}
		}
		dataset.Append(record)
	}

	s.logger.Debug().
		Str("file", s.path).
		Int("rows", dataset.RowCount()).
		Msg("CSV file read")

	return dataset, nil
}

// CSVFileSink writes datasets to CSV files for export jobs
type CSVFileSink struct {
	logger arbor.ILogger
}

// NewCSVFileSink creates a CSV export sink
func NewCSVFileSink(logger arbor.ILogger) *CSVFileSink {
	return &CSVFileSink{logger: logger}
}

// Write creates the destination file, parent directories included, and
// writes a header row followed by the dataset rows in order.
func (s *CSVFileSink) Write(ctx context.Context, path string, dataset *models.Dataset) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(dataset.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(dataset.Columns))
	for _, record := range dataset.Rows {
		for i, col := range dataset.Columns {
			value := record[col]
			if value == nil {
				row[i] = ""
			} else {
				row[i] = fmt.Sprintf("%v", value)
			}
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv export failed: %w", err)
	}

	s.logger.Info().
		Str("file", path).
		Int("rows", dataset.RowCount()).
		Msg("Dataset exported to CSV")

	return nil
}
