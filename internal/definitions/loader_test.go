package definitions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ordino/internal/common"
	"github.com/ternarybob/ordino/internal/models"
)

func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// testLayout writes a full definitions directory and returns its config
func testLayout(t *testing.T) (*common.DefinitionsConfig, string) {
	t.Helper()
	dir := t.TempDir()
	jobsDir := filepath.Join(dir, "jobs")
	require.NoError(t, os.MkdirAll(jobsDir, 0755))

	config := &common.DefinitionsConfig{
		JobsDir:         jobsDir,
		ConnectionsFile: filepath.Join(dir, "connections.toml"),
		VariablesFile:   filepath.Join(dir, "variables.toml"),
	}
	return config, dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_FullLayout(t *testing.T) {
	config, dir := testLayout(t)

	write(t, filepath.Join(config.JobsDir, "10_extract.toml"), `
[[job]]
query_id = "load_users"
kind = "load"
connection = "main"
query = "SELECT * FROM users WHERE region = ${var:region}"
target_table = "stg_users"
`)
	write(t, filepath.Join(config.JobsDir, "20_validate.toml"), `
[[job]]
query_id = "check_users"
kind = "validate"
main_query = "load_users"
routine = "user_per_record"
output_table = "val_users"
primary_key_field = "id"
`)
	write(t, config.ConnectionsFile, `
[main]
driver = "sqlite"
path = "`+filepath.ToSlash(filepath.Join(dir, "main.db"))+`"

[inbox]
driver = "csv"
path = "data/inbox.csv"
separator = ";"
has_header = false
`)
	write(t, config.VariablesFile, `
[region]
value = "south"
type = "string"
description = "Sales region filter"

[max_rows]
value = "500"
type = "number"
`)

	loader := NewLoader(config, createTestLogger())
	defs, err := loader.Load()
	require.NoError(t, err)

	require.Len(t, defs.Jobs, 2)
	assert.Equal(t, "load_users", defs.Jobs[0].QueryID)
	assert.Equal(t, models.JobKindLoad, defs.Jobs[0].Kind)
	assert.Equal(t, "check_users", defs.Jobs[1].QueryID)
	assert.Equal(t, "load_users", defs.Jobs[1].MainQueryRef)

	require.Len(t, defs.Connections, 2)
	assert.Equal(t, "inbox", defs.Connections[0].Name)
	assert.Equal(t, models.ConnectionDriverCSV, defs.Connections[0].Driver)
	assert.Equal(t, ';', defs.Connections[0].CSVSeparator())
	assert.False(t, defs.Connections[0].CSVHasHeader())
	assert.Equal(t, "main", defs.Connections[1].Name)

	require.Len(t, defs.Variables, 2)
	assert.Equal(t, "south", defs.Variables["region"].Value)
	assert.Equal(t, models.VariableTypeNumber, defs.Variables["max_rows"].Type)
}

func TestLoad_JobFilesVisitedInNameOrder(t *testing.T) {
	config, _ := testLayout(t)

	write(t, filepath.Join(config.JobsDir, "20_second.toml"), `
[[job]]
query_id = "second"
kind = "load"
connection = "main"
`)
	write(t, filepath.Join(config.JobsDir, "10_first.toml"), `
[[job]]
query_id = "first"
kind = "load"
connection = "main"
`)
	write(t, config.ConnectionsFile, "[main]\ndriver = \"sqlite\"\npath = \"x.db\"\n")

	defs, err := NewLoader(config, createTestLogger()).Load()
	require.NoError(t, err)

	require.Len(t, defs.Jobs, 2)
	assert.Equal(t, "first", defs.Jobs[0].QueryID)
	assert.Equal(t, "second", defs.Jobs[1].QueryID)
}

func TestLoad_DuplicateJobAcrossFiles(t *testing.T) {
	config, _ := testLayout(t)

	jobBody := `
[[job]]
query_id = "dup"
kind = "load"
connection = "main"
`
	write(t, filepath.Join(config.JobsDir, "a.toml"), jobBody)
	write(t, filepath.Join(config.JobsDir, "b.toml"), jobBody)
	write(t, config.ConnectionsFile, "[main]\ndriver = \"sqlite\"\npath = \"x.db\"\n")

	_, err := NewLoader(config, createTestLogger()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared in both")
}

func TestLoad_InvalidJobDefinition(t *testing.T) {
	config, _ := testLayout(t)

	write(t, filepath.Join(config.JobsDir, "bad.toml"), `
[[job]]
query_id = "bad"
kind = "load"
`)
	write(t, config.ConnectionsFile, "[main]\ndriver = \"sqlite\"\npath = \"x.db\"\n")

	_, err := NewLoader(config, createTestLogger()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection is required")
}

func TestLoad_NoJobsIsAnError(t *testing.T) {
	config, _ := testLayout(t)
	write(t, config.ConnectionsFile, "[main]\ndriver = \"sqlite\"\npath = \"x.db\"\n")

	_, err := NewLoader(config, createTestLogger()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job definitions")
}

func TestLoad_MissingVariablesFileIsEmptyTable(t *testing.T) {
	config, _ := testLayout(t)

	write(t, filepath.Join(config.JobsDir, "a.toml"), `
[[job]]
query_id = "a"
kind = "load"
connection = "main"
`)
	write(t, config.ConnectionsFile, "[main]\ndriver = \"sqlite\"\npath = \"x.db\"\n")
	// Variables file deliberately not written

	defs, err := NewLoader(config, createTestLogger()).Load()
	require.NoError(t, err)
	assert.Empty(t, defs.Variables)
}

func TestLoad_InvalidVariableType(t *testing.T) {
	config, _ := testLayout(t)

	write(t, filepath.Join(config.JobsDir, "a.toml"), `
[[job]]
query_id = "a"
kind = "load"
connection = "main"
`)
	write(t, config.ConnectionsFile, "[main]\ndriver = \"sqlite\"\npath = \"x.db\"\n")
	write(t, config.VariablesFile, "[bad]\nvalue = \"x\"\ntype = \"tuple\"\n")

	_, err := NewLoader(config, createTestLogger()).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid type")
}

func TestLoad_EnvFilePopulatesEnvironment(t *testing.T) {
	config, dir := testLayout(t)

	envFile := filepath.Join(dir, ".env")
	write(t, envFile, "ORDINO_LOADER_TEST_KEY=from_env_file\n")
	config.EnvFile = envFile
	t.Cleanup(func() { os.Unsetenv("ORDINO_LOADER_TEST_KEY") })

	write(t, filepath.Join(config.JobsDir, "a.toml"), `
[[job]]
query_id = "a"
kind = "load"
connection = "main"
`)
	write(t, config.ConnectionsFile, "[main]\ndriver = \"sqlite\"\npath = \"x.db\"\n")

	_, err := NewLoader(config, createTestLogger()).Load()
	require.NoError(t, err)
	assert.Equal(t, "from_env_file", os.Getenv("ORDINO_LOADER_TEST_KEY"))
}
