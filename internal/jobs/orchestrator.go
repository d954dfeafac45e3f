package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ordino/internal/graph"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/ternarybob/ordino/internal/validation"
)

// Selection names the jobs a run should execute. An empty selection means
// every declared job. Transitive dependencies of selected jobs are always
// pulled in: a job cannot run without its prerequisites.
type Selection struct {
	IDs  []string
	Kind models.JobKind
}

// Orchestrator walks the dependency graph level by level and dispatches the
// jobs of each level to the executor, in parallel up to the worker bound.
// A hard barrier separates levels: no job of level k+1 starts before every
// job of level k reaches a terminal state.
type Orchestrator struct {
	jobs      []*models.Job
	executor  *Executor
	validator *validation.Dispatcher
	logger    arbor.ILogger
}

// NewOrchestrator creates an orchestrator over the declared job set
func NewOrchestrator(jobs []*models.Job, executor *Executor, validator *validation.Dispatcher, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		jobs:      jobs,
		executor:  executor,
		validator: validator,
		logger:    logger,
	}
}

// Run executes the selected jobs plus their transitive dependencies.
// Configuration errors (cycles, unknown references, unloadable validation
// routines) abort before any dispatch. Per-job failures are isolated: the
// failing job's downstream set is skipped, independent jobs continue.
func (o *Orchestrator) Run(ctx context.Context, selection Selection, opts Options) (*RunSummary, error) {
	g, err := graph.Build(o.jobs)
	if err != nil {
		return nil, err
	}

	closure, err := o.resolve(g, selection)
	if err != nil {
		return nil, err
	}

	levels, err := g.ExecutionLevelsFor(closure)
	if err != nil {
		return nil, err
	}

	// Resolve validation routines up front so a broken reference surfaces
	// before the first dispatch
	for _, id := range closure {
		if err := o.validator.CheckRoutine(g.Job(id)); err != nil {
			return nil, err
		}
	}

	summary := &RunSummary{StartedAt: time.Now()}
	skipped := make(map[string]string) // query_id -> reason

	o.logger.Info().
		Int("jobs", len(closure)).
		Int("levels", len(levels)).
		Bool("dry_run", opts.DryRun).
		Msg("Run starting")

	// Dispatched jobs run on a detached context: cancellation is observed
	// between levels only, so in-flight jobs finish and their audit records
	// stay complete
	jobCtx := context.WithoutCancel(ctx)

	cancelled := false
	for levelIdx, level := range levels {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			o.logger.Warn().Int("level", levelIdx).Msg("Cancellation observed, no further jobs dispatched")
		}

		outcomes := make([]*Outcome, len(level))
		var wg sync.WaitGroup
		workers := opts.Workers
		if workers <= 0 || workers > len(level) {
			workers = len(level)
		}
		sem := make(chan struct{}, workers)

		for i, id := range level {
			if reason, isSkipped := skipped[id]; isSkipped {
				outcomes[i] = &Outcome{QueryID: id, State: models.JobStateSkipped, SkipReason: reason}
				continue
			}
			if cancelled {
				outcomes[i] = &Outcome{QueryID: id, State: models.JobStateSkipped, SkipReason: "run cancelled"}
				continue
			}

			job := g.Job(id)
			var mainJob *models.Job
			if job.Kind == models.JobKindValidate {
				mainJob = g.Job(job.MainQueryRef)
			}

			wg.Add(1)
			go func(slot int, job, mainJob *models.Job) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				outcomes[slot] = o.executor.Execute(jobCtx, job, mainJob, opts)
			}(i, job, mainJob)
		}

		// Level barrier: all terminal before the next level is considered
		wg.Wait()

		// Level bookkeeping happens on this single coordinating path
		for _, outcome := range outcomes {
			summary.add(outcome)
			if outcome.State == models.JobStateFailed {
				for _, dependent := range g.TransitiveDependents(outcome.QueryID) {
					if _, already := skipped[dependent]; !already {
						skipped[dependent] = "dependency failed: " + outcome.QueryID
					}
				}
			}
		}
	}

	summary.FinishedAt = time.Now()
	summary.Elapsed = summary.FinishedAt.Sub(summary.StartedAt)

	o.logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("total_rows", summary.TotalRows).
		Str("elapsed", summary.Elapsed.Round(time.Millisecond).String()).
		Msg("Run finished")

	return summary, nil
}

// Plan returns the execution levels the selection would run, without
// dispatching anything
func (o *Orchestrator) Plan(selection Selection) ([][]string, error) {
	g, err := graph.Build(o.jobs)
	if err != nil {
		return nil, err
	}
	closure, err := o.resolve(g, selection)
	if err != nil {
		return nil, err
	}
	return g.ExecutionLevelsFor(closure)
}

// resolve expands a selection to the closed set of job ids in declaration order
func (o *Orchestrator) resolve(g *graph.Graph, selection Selection) ([]string, error) {
	var ids []string
	switch {
	case len(selection.IDs) > 0:
		ids = selection.IDs
	case selection.Kind != "":
		for _, id := range g.JobIDs() {
			if g.Job(id).Kind == selection.Kind {
				ids = append(ids, id)
			}
		}
	default:
		ids = g.JobIDs()
	}
	return g.Closure(ids)
}
