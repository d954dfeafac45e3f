package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate runs the struct tags declared on definition types. Shared across
// the package; validator instances cache struct metadata.
var validate = validator.New()

// JobKind represents the kind of work a job performs
type JobKind string

// JobKind constants
const (
	JobKindLoad      JobKind = "load"       // Execute query and load result into target table
	JobKindReconcile JobKind = "reconcile"  // Execute query and store result as reconciliation output
	JobKindExportCSV JobKind = "export_csv" // Execute query and write result to a CSV file
	JobKindValidate  JobKind = "validate"   // Run a validation routine over a prior job's dataset
)

// IsValidJobKind checks if a given JobKind is one of the valid constants
func IsValidJobKind(kind JobKind) bool {
	switch kind {
	case JobKindLoad, JobKindReconcile, JobKindExportCSV, JobKindValidate:
		return true
	default:
		return false
	}
}

// Job represents a declaratively-defined unit of work. The Kind field
// discriminates which of the optional fields are required: query jobs carry a
// connection and template, validation jobs carry routine references instead.
type Job struct {
	QueryID       string   `json:"query_id" toml:"query_id" validate:"required"`
	Kind          JobKind  `json:"kind" toml:"kind" validate:"required"`
	ConnectionRef string   `json:"connection,omitempty" toml:"connection"`
	QueryTemplate string   `json:"query,omitempty" toml:"query"`
	TargetTable   string   `json:"target_table,omitempty" toml:"target_table"`
	Dependencies  []string `json:"dependencies,omitempty" toml:"dependencies"`

	// Validation-only fields
	MainQueryRef         string `json:"main_query,omitempty" toml:"main_query"`
	ValidationRoutineRef string `json:"routine,omitempty" toml:"routine"`
	OutputTable          string `json:"output_table,omitempty" toml:"output_table"`
	PrimaryKeyField      string `json:"primary_key_field,omitempty" toml:"primary_key_field"`

	// ExportPath is the destination file for export_csv jobs. May contain
	// ${var:} / ${env:} placeholders.
	ExportPath string `json:"export_path,omitempty" toml:"export_path"`
}

// Validate checks the fields that the job's kind makes required.
// Cross-job checks (unknown or cyclic dependencies) happen at graph build.
func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid job definition: %w", err)
	}
	if !IsValidJobKind(j.Kind) {
		return fmt.Errorf("invalid job kind: %s (must be one of: load, reconcile, export_csv, validate)", j.Kind)
	}

	for _, dep := range j.Dependencies {
		if dep == j.QueryID {
			return fmt.Errorf("job %s cannot depend on itself", j.QueryID)
		}
	}

	switch j.Kind {
	case JobKindLoad, JobKindReconcile, JobKindExportCSV:
		if j.ConnectionRef == "" {
			return fmt.Errorf("job %s: connection is required for kind %s", j.QueryID, j.Kind)
		}
		if j.Kind == JobKindExportCSV && j.ExportPath == "" {
			return fmt.Errorf("job %s: export_path is required for kind export_csv", j.QueryID)
		}
	case JobKindValidate:
		if j.MainQueryRef == "" {
			return fmt.Errorf("job %s: main_query is required for kind validate", j.QueryID)
		}
		if j.MainQueryRef == j.QueryID {
			return fmt.Errorf("job %s cannot validate itself", j.QueryID)
		}
		if j.ValidationRoutineRef == "" {
			return fmt.Errorf("job %s: routine is required for kind validate", j.QueryID)
		}
		if (j.OutputTable == "") != (j.PrimaryKeyField == "") {
			return fmt.Errorf("job %s: output_table and primary_key_field must be set together", j.QueryID)
		}
	}

	return nil
}

// EffectiveDependencies returns the declared dependencies plus the implicit
// dependency a validation job has on its main query.
func (j *Job) EffectiveDependencies() []string {
	deps := make([]string, 0, len(j.Dependencies)+1)
	seen := make(map[string]bool, len(j.Dependencies)+1)
	for _, dep := range j.Dependencies {
		if !seen[dep] {
			deps = append(deps, dep)
			seen[dep] = true
		}
	}
	if j.Kind == JobKindValidate && j.MainQueryRef != "" && !seen[j.MainQueryRef] {
		deps = append(deps, j.MainQueryRef)
	}
	return deps
}
