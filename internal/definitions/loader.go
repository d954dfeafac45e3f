// Package definitions loads the declarative configuration a run consumes:
// job definitions, connection definitions and the variable table. It is the
// sole writer of that configuration; the execution core only reads it.
package definitions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ordino/internal/common"
	"github.com/ternarybob/ordino/internal/models"
)

// Definitions is the loaded, validated configuration for one run
type Definitions struct {
	Jobs        []*models.Job
	Connections []*models.ConnectionDef
	Variables   map[string]*models.Variable
}

// Loader reads definition files from the configured locations
type Loader struct {
	config *common.DefinitionsConfig
	logger arbor.ILogger
}

// NewLoader creates a definitions loader
func NewLoader(config *common.DefinitionsConfig, logger arbor.ILogger) *Loader {
	return &Loader{
		config: config,
		logger: logger,
	}
}

// jobsFile is the on-disk shape of a job definition file
type jobsFile struct {
	Job []models.Job `toml:"job"`
}

// connectionSection is one named section of the connections file
type connectionSection struct {
	Driver    string                 `toml:"driver"`
	Path      string                 `toml:"path"`
	Separator string                 `toml:"separator"`
	HasHeader *bool                  `toml:"has_header"`
	Params    map[string]interface{} `toml:"params"`
}

// variableSection is one named section of the variables file
type variableSection struct {
	Value       string `toml:"value"`
	Type        string `toml:"type"`
	Description string `toml:"description"`
}

// Load reads every definition source. An optional .env file is loaded first
// so ${env:} references can resolve against it.
func (l *Loader) Load() (*Definitions, error) {
	if l.config.EnvFile != "" {
		if err := godotenv.Load(l.config.EnvFile); err != nil {
			if os.IsNotExist(err) {
				l.logger.Debug().Str("file", l.config.EnvFile).Msg("Env file not found, skipping")
			} else {
				l.logger.Warn().Err(err).Str("file", l.config.EnvFile).Msg("Failed to load env file")
			}
		}
	}

	jobs, err := l.loadJobs()
	if err != nil {
		return nil, err
	}

	connections, err := l.loadConnections()
	if err != nil {
		return nil, err
	}

	variables, err := l.loadVariables()
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Int("jobs", len(jobs)).
		Int("connections", len(connections)).
		Int("variables", len(variables)).
		Msg("Definitions loaded")

	return &Definitions{
		Jobs:        jobs,
		Connections: connections,
		Variables:   variables,
	}, nil
}

// loadJobs reads every *.toml file in the jobs directory. Files are visited
// in name order so job declaration order, and with it the execution
// tie-break, is stable across runs.
func (l *Loader) loadJobs() ([]*models.Job, error) {
	entries, err := os.ReadDir(l.config.JobsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory %s: %w", l.config.JobsDir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	var jobs []*models.Job
	seen := make(map[string]string) // query_id -> file, for duplicate reporting

	for _, name := range files {
		path := filepath.Join(l.config.JobsDir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read job file %s: %w", path, err)
		}

		var file jobsFile
		if err := toml.Unmarshal(content, &file); err != nil {
			return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
		}

		for i := range file.Job {
			job := file.Job[i]
			if err := job.Validate(); err != nil {
				return nil, fmt.Errorf("job file %s: %w", path, err)
			}
			if prev, exists := seen[job.QueryID]; exists {
				return nil, fmt.Errorf("job %s declared in both %s and %s", job.QueryID, prev, name)
			}
			seen[job.QueryID] = name
			jobs = append(jobs, &job)
		}

		l.logger.Debug().Str("file", name).Int("jobs", len(file.Job)).Msg("Job file loaded")
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("no job definitions found in %s", l.config.JobsDir)
	}
	return jobs, nil
}

// loadConnections reads the connections file, one named section per connection
func (l *Loader) loadConnections() ([]*models.ConnectionDef, error) {
	content, err := os.ReadFile(l.config.ConnectionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read connections file %s: %w", l.config.ConnectionsFile, err)
	}

	var sections map[string]connectionSection
	if err := toml.Unmarshal(content, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse connections file %s: %w", l.config.ConnectionsFile, err)
	}

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	connections := make([]*models.ConnectionDef, 0, len(sections))
	for _, name := range names {
		section := sections[name]
		def := &models.ConnectionDef{
			Name:      name,
			Driver:    models.ConnectionDriver(section.Driver),
			Path:      section.Path,
			Separator: section.Separator,
			HasHeader: section.HasHeader,
			Params:    section.Params,
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("connections file %s: %w", l.config.ConnectionsFile, err)
		}
		connections = append(connections, def)
	}
	return connections, nil
}

// loadVariables reads the variables file, one named section per variable.
// A missing file means an empty variable table, not an error.
func (l *Loader) loadVariables() (map[string]*models.Variable, error) {
	variables := make(map[string]*models.Variable)

	if l.config.VariablesFile == "" {
		return variables, nil
	}

	content, err := os.ReadFile(l.config.VariablesFile)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug().Str("file", l.config.VariablesFile).Msg("Variables file not found, starting with empty table")
			return variables, nil
		}
		return nil, fmt.Errorf("failed to read variables file %s: %w", l.config.VariablesFile, err)
	}

	var sections map[string]variableSection
	if err := toml.Unmarshal(content, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse variables file %s: %w", l.config.VariablesFile, err)
	}

	for name, section := range sections {
		variable := &models.Variable{
			Name:        name,
			Value:       section.Value,
			Type:        models.VariableType(section.Type),
			Description: section.Description,
		}
		if err := variable.Validate(); err != nil {
			return nil, fmt.Errorf("variables file %s: %w", l.config.VariablesFile, err)
		}
		variables[name] = variable
	}
	return variables, nil
}
