package models

import (
	"fmt"
	"strconv"
	"strings"
)

// VariableType represents the declared type of a run-time variable
type VariableType string

// VariableType constants
const (
	VariableTypeString  VariableType = "string"
	VariableTypeNumber  VariableType = "number"
	VariableTypeBoolean VariableType = "boolean"
)

// IsValidVariableType checks if a given VariableType is one of the valid constants
func IsValidVariableType(t VariableType) bool {
	switch t {
	case VariableTypeString, VariableTypeNumber, VariableTypeBoolean:
		return true
	default:
		return false
	}
}

// Variable is a named, typed value substituted into job templates via
// ${var:name} placeholders. Variables are loaded once per run and are
// immutable for the duration of that run.
type Variable struct {
	Name        string       `json:"name" toml:"name" validate:"required"`
	Value       string       `json:"value" toml:"value"`
	Type        VariableType `json:"type" toml:"type" validate:"required"`
	Description string       `json:"description,omitempty" toml:"description"`
}

// TypedValue coerces the raw value according to the declared type.
// Numbers resolve to int64 when the raw value carries no decimal point,
// float64 otherwise.
func (v *Variable) TypedValue() (interface{}, error) {
	switch v.Type {
	case VariableTypeString:
		return v.Value, nil
	case VariableTypeNumber:
		if strings.Contains(v.Value, ".") {
			f, err := strconv.ParseFloat(v.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("variable %s: cannot convert %q to number", v.Name, v.Value)
			}
			return f, nil
		}
		i, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("variable %s: cannot convert %q to number", v.Name, v.Value)
		}
		return i, nil
	case VariableTypeBoolean:
		switch strings.ToLower(v.Value) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		default:
			return nil, fmt.Errorf("variable %s: cannot convert %q to boolean", v.Name, v.Value)
		}
	default:
		return nil, fmt.Errorf("variable %s: unknown type %s", v.Name, v.Type)
	}
}

// Validate checks the variable declaration
func (v *Variable) Validate() error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid variable declaration: %w", err)
	}
	if !IsValidVariableType(v.Type) {
		return fmt.Errorf("variable %s: invalid type %s (must be one of: string, number, boolean)", v.Name, v.Type)
	}
	if _, err := v.TypedValue(); err != nil {
		return err
	}
	return nil
}
