// Package jobs drives job execution: the per-job state machine and the
// level-ordered orchestrator above it.
package jobs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/connections"
	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/ternarybob/ordino/internal/render"
	"github.com/ternarybob/ordino/internal/validation"
)

// Options control one run
type Options struct {
	DryRun   bool   // Stop after rendering, dispatch nothing
	RowLimit int    // LIMIT applied to rendered queries (0 = none)
	SaveAs   string // Target table override, meaningful for single-job selections
	Workers  int    // Concurrent jobs per level (0 = level size)
}

// Outcome is the result of driving one job through its lifecycle
type Outcome struct {
	QueryID           string
	State             models.JobState
	Record            *models.ExecutionRecord
	RenderedSQL       string
	ValidationSummary *models.ValidationSummary
	SkipReason        string
	Err               error
}

// Executor drives a single job through
// Pending -> Rendering -> Dispatched -> {Succeeded, Failed}.
// Every terminal transition seals and appends exactly one execution record,
// success or failure alike.
type Executor struct {
	provider  *connections.Provider
	renderer  *render.Engine
	audit     interfaces.AuditSink
	results   interfaces.ResultStore
	csvSink   interfaces.CSVSink
	validator *validation.Dispatcher
	logger    arbor.ILogger
}

// NewExecutor creates a job executor
func NewExecutor(
	provider *connections.Provider,
	renderer *render.Engine,
	audit interfaces.AuditSink,
	results interfaces.ResultStore,
	csvSink interfaces.CSVSink,
	validator *validation.Dispatcher,
	logger arbor.ILogger,
) *Executor {
	return &Executor{
		provider:  provider,
		renderer:  renderer,
		audit:     audit,
		results:   results,
		csvSink:   csvSink,
		validator: validator,
		logger:    logger,
	}
}

// Execute runs one job to a terminal state. mainJob is the dataset-producing
// job for validate-kind jobs and nil otherwise.
func (e *Executor) Execute(ctx context.Context, job *models.Job, mainJob *models.Job, opts Options) *Outcome {
	jobLogger := e.logger.WithCorrelationId(job.QueryID)

	outcome := &Outcome{
		QueryID: job.QueryID,
		State:   models.JobStateRendering,
	}

	record := models.NewExecutionRecord(job)
	record.TargetTable = e.targetTable(job, opts)

	jobLogger.Info().
		Str("kind", string(job.Kind)).
		Str("connection", job.ConnectionRef).
		Str("target_table", record.TargetTable).
		Msg("Job starting")

	// Rendering. A substitution failure is fatal for this job only and no
	// dispatch is attempted.
	renderedSQL, err := e.renderQuery(job, opts)
	if err != nil {
		jobLogger.Error().Err(err).Msg("Template rendering failed")
		e.seal(ctx, outcome, record, models.JobStateFailed, 0, err)
		return outcome
	}
	outcome.RenderedSQL = renderedSQL

	if renderedSQL != "" {
		jobLogger.Debug().Str("sql", render.TruncateForLog(renderedSQL, 200)).Msg("Query rendered")
	}

	if opts.DryRun {
		jobLogger.Info().Msg("Dry run - job stops after rendering")
		e.seal(ctx, outcome, record, models.JobStateSucceeded, 0, nil)
		return outcome
	}

	// Dispatch to the collaborator the job's kind selects
	outcome.State = models.JobStateDispatched
	rowCount, summary, err := e.dispatch(ctx, job, mainJob, record.TargetTable, renderedSQL, opts)
	outcome.ValidationSummary = summary
	if err != nil {
		jobLogger.Error().Err(err).Msg("Job failed")
		e.seal(ctx, outcome, record, models.JobStateFailed, rowCount, err)
		return outcome
	}

	jobLogger.Info().Int("rows", rowCount).Msg("Job succeeded")
	e.seal(ctx, outcome, record, models.JobStateSucceeded, rowCount, nil)
	return outcome
}

// renderQuery renders the job's template. CSV-backed and validate jobs have
// no SQL; jobs on database connections must declare a template.
func (e *Executor) renderQuery(job *models.Job, opts Options) (string, error) {
	if job.Kind == models.JobKindValidate {
		return "", nil
	}

	def := e.provider.Definition(job.ConnectionRef)
	if def != nil && def.Driver == models.ConnectionDriverCSV {
		return "", nil
	}

	if job.QueryTemplate == "" {
		return "", fmt.Errorf("job %s: query is required for database connections", job.QueryID)
	}

	sql, err := e.renderer.Render(job.QueryTemplate)
	if err != nil {
		return "", fmt.Errorf("job %s: %w", job.QueryID, err)
	}
	if opts.RowLimit > 0 {
		sql = render.ApplyLimit(sql, opts.RowLimit)
	}
	return sql, nil
}

func (e *Executor) dispatch(ctx context.Context, job *models.Job, mainJob *models.Job, targetTable, renderedSQL string, opts Options) (int, *models.ValidationSummary, error) {
	switch job.Kind {
	case models.JobKindValidate:
		summary, rowCount, err := e.validator.Dispatch(ctx, job, mainJob)
		return rowCount, summary, err

	case models.JobKindExportCSV:
		dataset, err := e.fetchDataset(ctx, job, renderedSQL, opts)
		if err != nil {
			return 0, nil, err
		}
		path, err := e.renderer.Render(job.ExportPath)
		if err != nil {
			return 0, nil, fmt.Errorf("job %s: %w", job.QueryID, err)
		}
		if err := e.csvSink.Write(ctx, path, dataset); err != nil {
			return 0, nil, err
		}
		return dataset.RowCount(), nil, nil

	case models.JobKindLoad, models.JobKindReconcile:
		dataset, err := e.fetchDataset(ctx, job, renderedSQL, opts)
		if err != nil {
			return 0, nil, err
		}
		if err := e.results.SaveDataset(ctx, targetTable, dataset, true); err != nil {
			return 0, nil, err
		}
		return dataset.RowCount(), nil, nil

	default:
		return 0, nil, fmt.Errorf("job %s: unsupported kind %s", job.QueryID, job.Kind)
	}
}

// fetchDataset reads the job's input rows: through the record source for
// CSV-backed connections, through a fresh SQL session otherwise. Each job
// owns its session for the duration of the dispatch.
func (e *Executor) fetchDataset(ctx context.Context, job *models.Job, renderedSQL string, opts Options) (*models.Dataset, error) {
	def := e.provider.Definition(job.ConnectionRef)
	if def != nil && def.Driver == models.ConnectionDriverCSV {
		source, err := e.provider.RecordSource(job.ConnectionRef)
		if err != nil {
			return nil, err
		}
		dataset, err := source.ReadAll(ctx)
		if err != nil {
			return nil, err
		}
		if opts.RowLimit > 0 && dataset.RowCount() > opts.RowLimit {
			dataset.Rows = dataset.Rows[:opts.RowLimit]
		}
		return dataset, nil
	}

	conn, err := e.provider.Open(ctx, job.ConnectionRef)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.ExecuteQuery(ctx, renderedSQL, opts.RowLimit)
}

// targetTable resolves the table a job writes to, sanitized. Reconcile
// output always goes to val_<query_id>, overrides included.
func (e *Executor) targetTable(job *models.Job, opts Options) string {
	switch job.Kind {
	case models.JobKindValidate:
		return job.OutputTable
	case models.JobKindExportCSV:
		return ""
	case models.JobKindReconcile:
		return render.TargetTableFor(job)
	}

	if opts.SaveAs != "" {
		return render.SanitizeTableName(opts.SaveAs)
	}
	return render.TargetTableFor(job)
}

// seal finalizes the record and outcome and appends the audit entry. The
// audit write happens on every terminal transition; a sink failure is logged
// and surfaced on the outcome but cannot un-fail or un-succeed the job.
func (e *Executor) seal(ctx context.Context, outcome *Outcome, record *models.ExecutionRecord, state models.JobState, rowCount int, jobErr error) {
	status := models.RunStatusSuccess
	errMsg := ""
	if state == models.JobStateFailed {
		status = models.RunStatusError
		if jobErr != nil {
			errMsg = jobErr.Error()
		}
	}
	record.Seal(status, rowCount, errMsg)

	outcome.State = state
	outcome.Record = record
	outcome.Err = jobErr

	if err := e.audit.Append(ctx, record); err != nil {
		e.logger.Error().Err(err).Str("run_id", record.RunID).Msg("Failed to append audit record")
		if outcome.Err == nil {
			outcome.Err = err
		}
	}
}
