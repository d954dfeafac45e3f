package models

import "fmt"

// ConnectionDriver represents the kind of backend a connection talks to
type ConnectionDriver string

// ConnectionDriver constants
const (
	ConnectionDriverSQLite ConnectionDriver = "sqlite"
	ConnectionDriverCSV    ConnectionDriver = "csv"
)

// ConnectionDef describes a named connection that jobs reference by name.
// Params may contain ${var:} and ${env:} placeholders; they are rendered
// immediately before a connection is opened.
type ConnectionDef struct {
	Name   string           `json:"name" toml:"name" validate:"required"`
	Driver ConnectionDriver `json:"driver" toml:"driver" validate:"required"`

	// Path is the database file for sqlite, the source file for csv
	Path string `json:"path" toml:"path"`

	// CSV-specific options
	Separator string `json:"separator,omitempty" toml:"separator"`
	HasHeader *bool  `json:"has_header,omitempty" toml:"has_header"`

	// Extra driver parameters, rendered recursively
	Params map[string]interface{} `json:"params,omitempty" toml:"params"`
}

// Validate checks the connection definition
func (c *ConnectionDef) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid connection definition: %w", err)
	}
	switch c.Driver {
	case ConnectionDriverSQLite, ConnectionDriverCSV:
	default:
		return fmt.Errorf("connection %s: invalid driver %s (must be one of: sqlite, csv)", c.Name, c.Driver)
	}
	if c.Path == "" {
		return fmt.Errorf("connection %s: path is required", c.Name)
	}
	return nil
}

// CSVHasHeader reports whether the CSV file carries a header row (default true)
func (c *ConnectionDef) CSVHasHeader() bool {
	if c.HasHeader == nil {
		return true
	}
	return *c.HasHeader
}

// CSVSeparator returns the configured field separator (default comma)
func (c *ConnectionDef) CSVSeparator() rune {
	if c.Separator == "" {
		return ','
	}
	return []rune(c.Separator)[0]
}
