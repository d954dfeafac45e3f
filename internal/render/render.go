// Package render resolves ${var:name} and ${env:NAME} placeholders in job
// templates and connection parameters.
//
// The two placeholder families fail differently on purpose: an undeclared
// ${var:} reference is fatal for the job, while a missing ${env:} value
// leaves the placeholder intact and logs a warning, since absent environment
// variables commonly reflect optional configuration.
//
// Rendering is purely functional over the engine's inputs: the variable table
// is immutable for the duration of a run, so identical templates always
// render identically.
package render

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/models"
)

var (
	// varRefPattern matches ${var:name} references
	varRefPattern = regexp.MustCompile(`\$\{var:([^}]+)\}`)
	// envRefPattern matches ${env:NAME} references
	envRefPattern = regexp.MustCompile(`\$\{env:([^}]+)\}`)
)

// UndefinedVariableError reports a ${var:} reference to an undeclared variable
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable reference: ${var:%s}", e.Name)
}

// EnvLookup resolves an environment variable name. os.LookupEnv satisfies it.
type EnvLookup func(name string) (string, bool)

// Engine substitutes variable and environment references into strings and
// nested configuration maps.
type Engine struct {
	variables map[string]*models.Variable
	envLookup EnvLookup
	logger    arbor.ILogger
}

// NewEngine creates a substitution engine over the given variable table.
// A nil envLookup falls back to the process environment.
func NewEngine(variables map[string]*models.Variable, envLookup EnvLookup, logger arbor.ILogger) *Engine {
	if envLookup == nil {
		envLookup = os.LookupEnv
	}
	if variables == nil {
		variables = make(map[string]*models.Variable)
	}
	return &Engine{
		variables: variables,
		envLookup: envLookup,
		logger:    logger,
	}
}

// Render substitutes ${env:} then ${var:} references in the input string.
// Environment references resolve fail-open; variable references are fatal
// when undeclared or uncoercible.
func (e *Engine) Render(input string) (string, error) {
	rendered := e.renderEnv(input)

	var renderErr error
	rendered = varRefPattern.ReplaceAllStringFunc(rendered, func(match string) string {
		name := strings.TrimSpace(varRefPattern.FindStringSubmatch(match)[1])

		variable, exists := e.variables[name]
		if !exists {
			if renderErr == nil {
				renderErr = &UndefinedVariableError{Name: name}
			}
			return match
		}

		literal, err := Literal(variable)
		if err != nil {
			if renderErr == nil {
				renderErr = err
			}
			return match
		}
		return literal
	})

	if renderErr != nil {
		return "", renderErr
	}
	return rendered, nil
}

// renderEnv expands ${env:NAME} references, leaving unresolved ones intact
func (e *Engine) renderEnv(input string) string {
	return envRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envRefPattern.FindStringSubmatch(match)[1]
		if value, ok := e.envLookup(name); ok {
			return value
		}
		e.logger.Warn().
			Str("reference", match).
			Str("name", name).
			Msg("Unresolved environment reference left unchanged")
		return match
	})
}

// RenderMap recursively renders every string value in a nested configuration
// map. Connection parameters carry placeholders too, so substitution cannot
// be limited to top-level query text. The map is mutated in place.
func (e *Engine) RenderMap(m map[string]interface{}) error {
	for key, value := range m {
		switch v := value.(type) {
		case string:
			rendered, err := e.Render(v)
			if err != nil {
				return fmt.Errorf("key %s: %w", key, err)
			}
			m[key] = rendered

		case map[string]interface{}:
			if err := e.RenderMap(v); err != nil {
				return fmt.Errorf("key %s: %w", key, err)
			}

		case []interface{}:
			for i, elem := range v {
				switch el := elem.(type) {
				case string:
					rendered, err := e.Render(el)
					if err != nil {
						return fmt.Errorf("key %s[%d]: %w", key, i, err)
					}
					v[i] = rendered
				case map[string]interface{}:
					if err := e.RenderMap(el); err != nil {
						return fmt.Errorf("key %s[%d]: %w", key, i, err)
					}
				}
			}
		}
	}
	return nil
}

// Variables returns the resolved, typed value of every declared variable
func (e *Engine) Variables() (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(e.variables))
	for name, variable := range e.variables {
		value, err := variable.TypedValue()
		if err != nil {
			return nil, err
		}
		result[name] = value
	}
	return result, nil
}

// Literal formats a variable as a SQL literal. String values are wrapped in
// single quotes with embedded quotes doubled; numbers and booleans are
// embedded unquoted (TRUE/FALSE for booleans).
func Literal(variable *models.Variable) (string, error) {
	value, err := variable.TypedValue()
	if err != nil {
		return "", err
	}

	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return fmt.Sprintf("%g", v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}
