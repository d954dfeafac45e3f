package models

// Record is a single row keyed by column name
type Record map[string]interface{}

// Dataset is an ordered collection of records with a stable column order.
// It is the unit of data passed between the execution engine and its
// collaborators (connections, result store, validation routines).
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// NewDataset creates an empty dataset with the given column order
func NewDataset(columns []string) *Dataset {
	return &Dataset{
		Columns: columns,
		Rows:    make([]Record, 0),
	}
}

// Append adds a row to the dataset
func (d *Dataset) Append(row Record) {
	d.Rows = append(d.Rows, row)
}

// RowCount returns the number of rows
func (d *Dataset) RowCount() int {
	return len(d.Rows)
}
