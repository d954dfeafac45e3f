package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/models"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// RegisterBuiltins installs the bundled routines on a registry. Callers add
// their own routines the same way before handing the registry to the
// dispatcher.
func RegisterBuiltins(registry *Registry) error {
	builtins := map[string]*interfaces.ValidationRoutine{
		"user_per_record": {PerRecord: validateUserRecord},
		"not_empty":       {PerDataset: validateNotEmpty},
		"no_null_keys":    {PerRecord: validateNoNullKeys},
	}
	for ref, routine := range builtins {
		if err := registry.Register(ref, routine); err != nil {
			return err
		}
	}
	return nil
}

// validateUserRecord checks one user row: name present and plausible, email
// present and well formed, age numeric and in range when declared, status in
// the known set when declared.
func validateUserRecord(record models.Record, _ *interfaces.ValidationContext) (models.ValidationOutcome, error) {
	var errors []string

	name := stringField(record, "name")
	switch {
	case name == "":
		errors = append(errors, "name is required")
	case len(name) < 2:
		errors = append(errors, "name must have at least 2 characters")
	}

	email := stringField(record, "email")
	switch {
	case email == "":
		errors = append(errors, "email is required")
	case !emailPattern.MatchString(email):
		errors = append(errors, "email must be well formed")
	}

	if raw := stringField(record, "age"); raw != "" {
		age, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			errors = append(errors, "age must be numeric")
		case age < 0:
			errors = append(errors, "age must be positive")
		case age > 150:
			errors = append(errors, "age out of range")
		}
	}

	if status := strings.ToLower(stringField(record, "status")); status != "" {
		switch status {
		case "active", "inactive", "pending", "suspended", "deleted":
		default:
			errors = append(errors, fmt.Sprintf("unknown status %q", status))
		}
	}

	if len(errors) > 0 {
		return models.ValidationOutcome{
			Success: false,
			Message: strings.Join(errors, "; "),
			Details: map[string]interface{}{"errors": errors},
		}, nil
	}
	return models.ValidationOutcome{Success: true, Message: "record valid"}, nil
}

// validateNotEmpty fails the whole dataset when it holds no rows
func validateNotEmpty(dataset *models.Dataset, _ *interfaces.ValidationContext) (models.ValidationOutcome, error) {
	if dataset.RowCount() == 0 {
		return models.ValidationOutcome{Success: false, Message: "dataset is empty"}, nil
	}
	return models.ValidationOutcome{
		Success: true,
		Message: fmt.Sprintf("dataset has %d rows", dataset.RowCount()),
	}, nil
}

// validateNoNullKeys flags records carrying a nil or blank value in any column
func validateNoNullKeys(record models.Record, _ *interfaces.ValidationContext) (models.ValidationOutcome, error) {
	var nullKeys []string
	for key, value := range record {
		if value == nil || fmt.Sprintf("%v", value) == "" {
			nullKeys = append(nullKeys, key)
		}
	}
	if len(nullKeys) > 0 {
		return models.ValidationOutcome{
			Success: false,
			Message: fmt.Sprintf("null or empty values in: %s", strings.Join(nullKeys, ", ")),
			Details: map[string]interface{}{"null_keys": nullKeys},
		}, nil
	}
	return models.ValidationOutcome{Success: true, Message: "record valid"}, nil
}

func stringField(record models.Record, key string) string {
	value, ok := record[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}
