package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/ternarybob/ordino/internal/render"
)

// Dispatcher runs validate-kind jobs. Individual record failures are data
// findings, not execution errors: the job itself fails only when the dataset
// cannot be resolved, the routine crashes at dataset level, or a
// dataset-level routine reports failure.
type Dispatcher struct {
	results  interfaces.ResultStore
	loader   interfaces.RoutineLoader
	interval time.Duration
	logger   arbor.ILogger
}

// NewDispatcher creates a validation dispatcher
func NewDispatcher(results interfaces.ResultStore, loader interfaces.RoutineLoader, progressInterval time.Duration, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		results:  results,
		loader:   loader,
		interval: progressInterval,
		logger:   logger,
	}
}

// CheckRoutine resolves the job's routine reference without executing it.
// The orchestrator calls this before any dispatch so an unloadable routine
// aborts the run as a configuration error.
func (d *Dispatcher) CheckRoutine(job *models.Job) error {
	if job.Kind != models.JobKindValidate {
		return nil
	}
	if _, err := d.loader.Load(job.ValidationRoutineRef); err != nil {
		return fmt.Errorf("job %s: %w", job.QueryID, err)
	}
	return nil
}

// Dispatch validates the dataset produced by the job's main query and
// returns the aggregated summary plus the number of records examined.
// mainJob is the already-executed job the dataset came from.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.Job, mainJob *models.Job) (*models.ValidationSummary, int, error) {
	routine, err := d.loader.Load(job.ValidationRoutineRef)
	if err != nil {
		return nil, 0, err
	}

	// Resolve through the same table resolver the executor writes with, so
	// sanitized and defaulted names match on both sides
	table := render.TargetTableFor(mainJob)

	dataset, err := d.results.LoadDataset(ctx, table)
	if err != nil {
		return nil, 0, fmt.Errorf("job %s: failed to resolve dataset from %s: %w", job.QueryID, table, err)
	}

	vctx := &interfaces.ValidationContext{
		JobID:        job.QueryID,
		MainQueryRef: job.MainQueryRef,
	}

	// Per-record takes precedence when the routine provides both shapes
	if routine.PerRecord != nil {
		return d.dispatchPerRecord(ctx, job, routine.PerRecord, dataset, vctx)
	}
	return d.dispatchPerDataset(job, routine.PerDataset, dataset, vctx)
}

func (d *Dispatcher) dispatchPerRecord(ctx context.Context, job *models.Job, fn interfaces.PerRecordFunc, dataset *models.Dataset, vctx *interfaces.ValidationContext) (*models.ValidationSummary, int, error) {
	jobLogger := d.logger.WithCorrelationId(job.QueryID)

	tracker := NewTracker(dataset.RowCount(), d.interval, func(p Progress) {
		jobLogger.Info().
			Int("processed", p.Processed).
			Int("total", p.Total).
			Str("elapsed", p.Elapsed.Round(time.Millisecond).String()).
			Float64("throughput", p.Throughput).
			Str("eta", p.ETA.Round(time.Second).String()).
			Msg("Validation progress")
	})

	summary := &models.ValidationSummary{}
	outcomes := make([]models.ValidationOutcome, 0, dataset.RowCount())

	for i, record := range dataset.Rows {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		outcome, err := fn(record, vctx)
		if err != nil {
			// A routine error on one record marks that record failed, it
			// does not abort the batch
			outcome = models.ValidationOutcome{
				Success: false,
				Message: fmt.Sprintf("routine error: %v", err),
			}
		}
		outcome.RecordIndex = i

		summary.Add(outcome)
		outcomes = append(outcomes, outcome)
		tracker.Increment()
	}
	tracker.Finish()
	summary.Finalize()

	if job.OutputTable != "" {
		if err := d.persistOutcomes(ctx, job, dataset, outcomes); err != nil {
			return nil, 0, err
		}
	}

	jobLogger.Info().
		Int("total", summary.Total).
		Int("passed", summary.SuccessCount).
		Int("failed", summary.FailureCount).
		Float64("success_rate", summary.SuccessRate).
		Msg("Validation finished")

	return summary, summary.Total, nil
}

func (d *Dispatcher) dispatchPerDataset(job *models.Job, fn interfaces.PerDatasetFunc, dataset *models.Dataset, vctx *interfaces.ValidationContext) (*models.ValidationSummary, int, error) {
	outcome, err := fn(dataset, vctx)
	if err != nil {
		return nil, 0, fmt.Errorf("job %s: validation routine failed: %w", job.QueryID, err)
	}

	summary := &models.ValidationSummary{}
	summary.Add(outcome)
	summary.Finalize()

	if !outcome.Success {
		return summary, dataset.RowCount(), fmt.Errorf("job %s: validation reported failure: %s", job.QueryID, outcome.Message)
	}
	return summary, dataset.RowCount(), nil
}

// persistOutcomes writes one batch of per-record outcomes keyed by
// (execution count, primary key value). The execution count advances per
// output table, so every re-run appends a new batch and history survives.
func (d *Dispatcher) persistOutcomes(ctx context.Context, job *models.Job, dataset *models.Dataset, outcomes []models.ValidationOutcome) error {
	executionCount, err := d.results.NextExecutionCount(ctx, job.OutputTable)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.QueryID, err)
	}

	stored := make([]*models.StoredValidationOutcome, len(outcomes))
	now := time.Now()
	for i, outcome := range outcomes {
		pk := primaryKeyValue(dataset.Rows[i], job.PrimaryKeyField, i)
		stored[i] = &models.StoredValidationOutcome{
			ID:              fmt.Sprintf("%s:%d:%s", job.OutputTable, executionCount, pk),
			OutputTable:     job.OutputTable,
			ExecutionCount:  executionCount,
			PrimaryKeyValue: pk,
			RecordIndex:     outcome.RecordIndex,
			Success:         outcome.Success,
			Message:         outcome.Message,
			Details:         outcome.Details,
			ValidatedAt:     now,
		}
	}

	if err := d.results.SaveValidationOutcomes(ctx, stored); err != nil {
		return fmt.Errorf("job %s: %w", job.QueryID, err)
	}

	d.logger.Debug().
		Str("output_table", job.OutputTable).
		Int("execution_count", executionCount).
		Int("outcomes", len(stored)).
		Msg("Validation outcomes persisted")

	return nil
}

// primaryKeyValue extracts the configured key field from a record, falling
// back to the record index when the field is absent or empty
func primaryKeyValue(record models.Record, field string, index int) string {
	if field != "" {
		if value, ok := record[field]; ok && value != nil {
			if s := fmt.Sprintf("%v", value); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("%d", index)
}
