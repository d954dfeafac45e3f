package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ordino/internal/connections"
	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/ternarybob/ordino/internal/render"
	"github.com/ternarybob/ordino/internal/validation"
)

func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// fakeAuditSink captures appended records in order
type fakeAuditSink struct {
	mu      sync.Mutex
	records []*models.ExecutionRecord
}

func (f *fakeAuditSink) Append(_ context.Context, record *models.ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeAuditSink) Query(_ context.Context, filter interfaces.AuditFilter) ([]*models.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ExecutionRecord
	for _, r := range f.records {
		if filter.QueryID == "" || r.QueryID == filter.QueryID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAuditSink) byJob(queryID string) []*models.ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ExecutionRecord
	for _, r := range f.records {
		if r.QueryID == queryID {
			out = append(out, r)
		}
	}
	return out
}

// fakeResultStore is an in-memory ResultStore
type fakeResultStore struct {
	mu       sync.Mutex
	datasets map[string]*models.Dataset
	counters map[string]int
	stored   []*models.StoredValidationOutcome
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{
		datasets: make(map[string]*models.Dataset),
		counters: make(map[string]int),
	}
}

func (f *fakeResultStore) SaveDataset(_ context.Context, table string, dataset *models.Dataset, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasets[table] = dataset
	return nil
}

func (f *fakeResultStore) LoadDataset(_ context.Context, table string) (*models.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dataset, ok := f.datasets[table]
	if !ok {
		return nil, fmt.Errorf("table not found: %s", table)
	}
	return dataset, nil
}

func (f *fakeResultStore) ListTables(_ context.Context) ([]interfaces.TableInfo, error) {
	return nil, nil
}

func (f *fakeResultStore) DropTable(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (f *fakeResultStore) NextExecutionCount(_ context.Context, table string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[table]++
	return f.counters[table], nil
}

func (f *fakeResultStore) SaveValidationOutcomes(_ context.Context, outcomes []*models.StoredValidationOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, outcomes...)
	return nil
}

func (f *fakeResultStore) LoadValidationOutcomes(_ context.Context, _ string) ([]*models.StoredValidationOutcome, error) {
	return nil, nil
}

// harness wires an orchestrator over CSV-backed connections and in-memory
// storage
type harness struct {
	dir          string
	audit        *fakeAuditSink
	results      *fakeResultStore
	registry     *validation.Registry
	orchestrator *Orchestrator
}

func newHarness(t *testing.T, jobs []*models.Job) *harness {
	t.Helper()
	logger := createTestLogger()
	dir := t.TempDir()

	defs := []*models.ConnectionDef{
		{Name: "files", Driver: models.ConnectionDriverCSV, Path: filepath.Join(dir, "in.csv")},
		{Name: "missing", Driver: models.ConnectionDriverCSV, Path: filepath.Join(dir, "does-not-exist.csv")},
	}

	renderer := render.NewEngine(nil, nil, logger)
	provider := connections.NewProvider(defs, renderer, logger)

	registry := validation.NewRegistry()
	require.NoError(t, validation.RegisterBuiltins(registry))

	audit := &fakeAuditSink{}
	results := newFakeResultStore()
	validator := validation.NewDispatcher(results, registry, time.Second, logger)
	executor := NewExecutor(provider, renderer, audit, results, connections.NewCSVFileSink(logger), validator, logger)

	return &harness{
		dir:          dir,
		audit:        audit,
		results:      results,
		registry:     registry,
		orchestrator: NewOrchestrator(jobs, executor, validator, logger),
	}
}

func (h *harness) writeInput(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "in.csv"), []byte(content), 0644))
}

func csvJob(id, connection string, deps ...string) *models.Job {
	return &models.Job{
		QueryID:       id,
		Kind:          models.JobKindLoad,
		ConnectionRef: connection,
		Dependencies:  deps,
	}
}

func TestRun_AllJobsSucceed(t *testing.T) {
	jobs := []*models.Job{
		csvJob("extract", "files"),
		csvJob("stage", "files", "extract"),
	}
	h := newHarness(t, jobs)
	h.writeInput(t, "id,name\n1,alpha\n2,beta\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 4, summary.TotalRows)

	stored, err := h.results.LoadDataset(context.Background(), "stg_extract")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RowCount())
	assert.Equal(t, "alpha", stored.Rows[0]["name"])
}

func TestRun_FailurePropagatesSkips(t *testing.T) {
	jobs := []*models.Job{
		csvJob("broken", "missing"),
		csvJob("downstream", "files", "broken"),
		csvJob("further", "files", "downstream"),
		csvJob("independent", "files"),
	}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.True(t, summary.PartiallyFailed())

	assert.Equal(t, models.JobStateFailed, summary.Outcome("broken").State)
	assert.Equal(t, models.JobStateSkipped, summary.Outcome("downstream").State)
	assert.Contains(t, summary.Outcome("downstream").SkipReason, "broken")
	assert.Equal(t, models.JobStateSkipped, summary.Outcome("further").State)
	assert.Equal(t, models.JobStateSucceeded, summary.Outcome("independent").State)

	// Skipped jobs are never dispatched and leave no audit trace
	assert.Empty(t, h.audit.byJob("downstream"))
	assert.Len(t, h.audit.byJob("broken"), 1)
	assert.Equal(t, models.RunStatusError, h.audit.byJob("broken")[0].Status)
}

func TestRun_LevelBarrierOrdering(t *testing.T) {
	jobs := []*models.Job{
		csvJob("first_a", "files"),
		csvJob("first_b", "files"),
		csvJob("second", "files", "first_a", "first_b"),
	}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, 3, summary.Succeeded)

	second := summary.Outcome("second").Record
	for _, upstream := range []string{"first_a", "first_b"} {
		record := summary.Outcome(upstream).Record
		assert.False(t, second.StartedAt.Before(record.FinishedAt),
			"%s must finish before the next level starts", upstream)
	}
}

func TestRun_DryRunRendersAndAuditsOnly(t *testing.T) {
	jobs := []*models.Job{csvJob("extract", "files")}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.TotalRows)
	assert.Len(t, h.audit.byJob("extract"), 1)

	_, err = h.results.LoadDataset(context.Background(), "stg_extract")
	assert.Error(t, err, "dry run must not persist datasets")
}

func TestRun_SelectionPullsDependencies(t *testing.T) {
	jobs := []*models.Job{
		csvJob("base", "files"),
		csvJob("mid", "files", "base"),
		csvJob("top", "files", "mid"),
		csvJob("unrelated", "files"),
	}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{IDs: []string{"top"}}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Succeeded)
	assert.Nil(t, summary.Outcome("unrelated"))
}

func TestRun_KindSelection(t *testing.T) {
	export := &models.Job{
		QueryID:       "export",
		Kind:          models.JobKindExportCSV,
		ConnectionRef: "files",
		ExportPath:    "out/result.csv",
	}
	jobs := []*models.Job{csvJob("extract", "files"), export}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")
	export.ExportPath = filepath.Join(h.dir, "out", "result.csv")

	summary, err := h.orchestrator.Run(context.Background(), Selection{Kind: models.JobKindExportCSV}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Nil(t, summary.Outcome("extract"))
	assert.FileExists(t, export.ExportPath)
}

func TestRun_ValidationPipeline(t *testing.T) {
	check := &models.Job{
		QueryID:              "check",
		Kind:                 models.JobKindValidate,
		MainQueryRef:         "extract",
		ValidationRoutineRef: "not_empty",
	}
	jobs := []*models.Job{csvJob("extract", "files"), check}
	h := newHarness(t, jobs)
	h.writeInput(t, "id,name\n1,alpha\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	outcome := summary.Outcome("check")
	require.NotNil(t, outcome.ValidationSummary)
	assert.Equal(t, 1, outcome.ValidationSummary.SuccessCount)
}

func TestRun_UnknownRoutineAbortsBeforeDispatch(t *testing.T) {
	check := &models.Job{
		QueryID:              "check",
		Kind:                 models.JobKindValidate,
		MainQueryRef:         "extract",
		ValidationRoutineRef: "ghost_routine",
	}
	jobs := []*models.Job{csvJob("extract", "files"), check}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")

	_, err := h.orchestrator.Run(context.Background(), Selection{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost_routine")
	assert.Empty(t, h.audit.records, "configuration errors must surface before any dispatch")
}

func TestRun_CycleAborts(t *testing.T) {
	jobs := []*models.Job{
		csvJob("a", "files", "b"),
		csvJob("b", "files", "a"),
	}
	h := newHarness(t, jobs)

	_, err := h.orchestrator.Run(context.Background(), Selection{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic dependency")
}

func TestRun_CancelledContextSkipsEverything(t *testing.T) {
	jobs := []*models.Job{csvJob("extract", "files")}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.orchestrator.Run(ctx, Selection{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "run cancelled", summary.Outcome("extract").SkipReason)
}

func TestRun_SaveAsOverridesTargetTable(t *testing.T) {
	jobs := []*models.Job{csvJob("extract", "files")}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n")

	_, err := h.orchestrator.Run(context.Background(), Selection{IDs: []string{"extract"}}, Options{SaveAs: "my custom table"})
	require.NoError(t, err)

	stored, err := h.results.LoadDataset(context.Background(), "my_custom_table")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RowCount())
}

func TestRun_RowLimitTruncatesCSVInput(t *testing.T) {
	jobs := []*models.Job{csvJob("extract", "files")}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n2\n3\n4\n5\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{RowLimit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalRows)
}

func TestRun_ValidationResolvesSanitizedTargetTable(t *testing.T) {
	load := csvJob("extract", "files")
	load.TargetTable = "stg-users"
	check := &models.Job{
		QueryID:              "check",
		Kind:                 models.JobKindValidate,
		MainQueryRef:         "extract",
		ValidationRoutineRef: "not_empty",
	}
	h := newHarness(t, []*models.Job{load, check})
	h.writeInput(t, "id\n1\n2\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{})
	require.NoError(t, err)

	// The load writes under the sanitized name and the validation reads
	// through the same resolution
	stored, err := h.results.LoadDataset(context.Background(), "stg_users")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RowCount())

	outcome := summary.Outcome("check")
	assert.Equal(t, models.JobStateSucceeded, outcome.State)
	require.NotNil(t, outcome.ValidationSummary)
	assert.Equal(t, 1, outcome.ValidationSummary.SuccessCount)
}

func TestRun_ReconcileAlwaysWritesValTable(t *testing.T) {
	recon := &models.Job{
		QueryID:       "match_totals",
		Kind:          models.JobKindReconcile,
		ConnectionRef: "files",
		TargetTable:   "custom_output",
	}
	h := newHarness(t, []*models.Job{recon})
	h.writeInput(t, "id\n1\n")

	summary, err := h.orchestrator.Run(context.Background(), Selection{}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	stored, err := h.results.LoadDataset(context.Background(), "val_match_totals")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RowCount())

	_, err = h.results.LoadDataset(context.Background(), "custom_output")
	assert.Error(t, err, "declared target table must not receive reconcile output")

	assert.Equal(t, "val_match_totals", summary.Outcome("match_totals").Record.TargetTable)
}

func TestRun_CancellationLetsInFlightJobsFinish(t *testing.T) {
	check := &models.Job{
		QueryID:              "check",
		Kind:                 models.JobKindValidate,
		MainQueryRef:         "extract",
		ValidationRoutineRef: "cancel_midway",
	}
	jobs := []*models.Job{
		csvJob("extract", "files"),
		check,
		csvJob("after", "files", "check"),
	}
	h := newHarness(t, jobs)
	h.writeInput(t, "id\n1\n2\n3\n4\n5\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The routine cancels the run while the validation job is mid-flight
	processed := 0
	require.NoError(t, h.registry.Register("cancel_midway", &interfaces.ValidationRoutine{
		PerRecord: func(models.Record, *interfaces.ValidationContext) (models.ValidationOutcome, error) {
			processed++
			if processed == 2 {
				cancel()
			}
			return models.ValidationOutcome{Success: true}, nil
		},
	}))

	summary, err := h.orchestrator.Run(ctx, Selection{}, Options{})
	require.NoError(t, err)

	// The in-flight validation runs to completion and seals successfully
	outcome := summary.Outcome("check")
	assert.Equal(t, models.JobStateSucceeded, outcome.State)
	assert.Equal(t, 5, processed)
	require.NotNil(t, outcome.ValidationSummary)
	assert.Equal(t, 5, outcome.ValidationSummary.Total)

	records := h.audit.byJob("check")
	require.Len(t, records, 1)
	assert.Equal(t, models.RunStatusSuccess, records[0].Status)

	// Further levels stay undispatched
	assert.Equal(t, models.JobStateSkipped, summary.Outcome("after").State)
	assert.Equal(t, "run cancelled", summary.Outcome("after").SkipReason)
	assert.Empty(t, h.audit.byJob("after"))
}

func TestPlan_ReturnsLevels(t *testing.T) {
	jobs := []*models.Job{
		csvJob("a", "files"),
		csvJob("b", "files", "a"),
		csvJob("c", "files", "a"),
	}
	h := newHarness(t, jobs)

	levels, err := h.orchestrator.Plan(Selection{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}}, levels)
}
