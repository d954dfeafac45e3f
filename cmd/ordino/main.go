package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ordino/internal/common"
	"github.com/ternarybob/ordino/internal/connections"
	"github.com/ternarybob/ordino/internal/definitions"
	"github.com/ternarybob/ordino/internal/interfaces"
	"github.com/ternarybob/ordino/internal/jobs"
	"github.com/ternarybob/ordino/internal/models"
	"github.com/ternarybob/ordino/internal/render"
	badgerstore "github.com/ternarybob/ordino/internal/storage/badger"
	"github.com/ternarybob/ordino/internal/validation"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
	dryRun       = flag.Bool("dry-run", false, "Render queries and write audit records without dispatching")
	rowLimit     = flag.Int("limit", 0, "LIMIT applied to rendered queries (0 = config default)")
	saveAs       = flag.String("save-as", "", "Target table override for single-job runs")
	workers      = flag.Int("workers", 0, "Concurrent jobs per level (0 = config default)")
	kindFilter   = flag.String("kind", "", "Select jobs by kind (load, reconcile, export_csv, validate)")
	historyLimit = flag.Int("history-limit", 0, "Max audit records shown (0 = config default)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ordino [flags] <command> [args]

Commands:
  run [job ...]        Execute selected jobs and their dependencies (default: all)
  plan [job ...]       Print the execution levels a run would follow
  jobs                 List declared jobs
  variables            List declared variables with resolved values
  history [job]        Show execution history, newest first
  tables               List stored result tables
  drop-table <name>    Remove a stored result table

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Ordino version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("ordino.toml"); err == nil {
			configFiles = append(configFiles, "ordino.toml")
		}
	}

	config, err := common.LoadConfig(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}
	args := flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	if command == "run" {
		common.PrintBanner(common.GetVersion())
	}

	if err := dispatch(command, args, config, logger); err != nil {
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

// app holds the wired collaborators behind every command
type app struct {
	config       *common.Config
	logger       arbor.ILogger
	defs         *definitions.Definitions
	renderer     *render.Engine
	storage      *badgerstore.Manager
	orchestrator *jobs.Orchestrator
}

func dispatch(command string, args []string, config *common.Config, logger arbor.ILogger) error {
	a, err := buildApp(config, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		return a.cmdRun(ctx, args)
	case "plan":
		return a.cmdPlan(args)
	case "jobs":
		return a.cmdJobs()
	case "variables":
		return a.cmdVariables()
	case "history":
		return a.cmdHistory(ctx, args)
	case "tables":
		return a.cmdTables(ctx)
	case "drop-table":
		return a.cmdDropTable(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func buildApp(config *common.Config, logger arbor.ILogger) (*app, error) {
	loader := definitions.NewLoader(&config.Definitions, logger)
	defs, err := loader.Load()
	if err != nil {
		return nil, err
	}

	renderer := render.NewEngine(defs.Variables, nil, logger)

	storage, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	provider := connections.NewProvider(defs.Connections, renderer, logger)

	registry := validation.NewRegistry()
	if err := validation.RegisterBuiltins(registry); err != nil {
		storage.Close()
		return nil, err
	}

	interval, err := config.ProgressInterval()
	if err != nil {
		storage.Close()
		return nil, err
	}

	validator := validation.NewDispatcher(storage.ResultStore(), registry, interval, logger)
	executor := jobs.NewExecutor(
		provider,
		renderer,
		storage.AuditSink(),
		storage.ResultStore(),
		connections.NewCSVFileSink(logger),
		validator,
		logger,
	)

	return &app{
		config:       config,
		logger:       logger,
		defs:         defs,
		renderer:     renderer,
		storage:      storage,
		orchestrator: jobs.NewOrchestrator(defs.Jobs, executor, validator, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close storage")
	}
}

func (a *app) selection(args []string) jobs.Selection {
	return jobs.Selection{
		IDs:  args,
		Kind: models.JobKind(*kindFilter),
	}
}

func (a *app) options() jobs.Options {
	opts := jobs.Options{
		DryRun:   *dryRun,
		RowLimit: a.config.Run.RowLimit,
		SaveAs:   *saveAs,
		Workers:  a.config.Run.Workers,
	}
	if *rowLimit > 0 {
		opts.RowLimit = *rowLimit
	}
	if *workers > 0 {
		opts.Workers = *workers
	}
	return opts
}

func (a *app) cmdRun(ctx context.Context, args []string) error {
	if *saveAs != "" && len(args) != 1 {
		return fmt.Errorf("-save-as requires exactly one selected job")
	}

	summary, err := a.orchestrator.Run(ctx, a.selection(args), a.options())
	if err != nil {
		return err
	}

	for _, outcome := range summary.Outcomes {
		line := fmt.Sprintf("  %-30s %s", outcome.QueryID, outcome.State)
		switch {
		case outcome.State == models.JobStateSkipped:
			line += "  (" + outcome.SkipReason + ")"
		case outcome.Err != nil:
			line += "  " + outcome.Err.Error()
		case outcome.Record != nil:
			line += fmt.Sprintf("  rows=%d elapsed=%s", outcome.Record.RowCount, outcome.Record.Duration().Round(time.Millisecond))
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d succeeded, %d failed, %d skipped, %d rows in %s\n",
		summary.Succeeded, summary.Failed, summary.Skipped, summary.TotalRows,
		summary.Elapsed.Round(time.Millisecond))

	if summary.PartiallyFailed() {
		return fmt.Errorf("run finished with failures")
	}
	return nil
}

func (a *app) cmdPlan(args []string) error {
	levels, err := a.orchestrator.Plan(a.selection(args))
	if err != nil {
		return err
	}
	for i, level := range levels {
		fmt.Printf("Level %d: %s\n", i+1, strings.Join(level, ", "))
	}
	return nil
}

func (a *app) cmdJobs() error {
	for _, job := range a.defs.Jobs {
		deps := ""
		if effective := job.EffectiveDependencies(); len(effective) > 0 {
			deps = "  <- " + strings.Join(effective, ", ")
		}
		fmt.Printf("  %-30s %-12s %s%s\n", job.QueryID, job.Kind, job.ConnectionRef, deps)
	}
	return nil
}

func (a *app) cmdVariables() error {
	resolved, err := a.renderer.Variables()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-24s %v\n", name, resolved[name])
	}
	return nil
}

func (a *app) cmdHistory(ctx context.Context, args []string) error {
	filter := interfaces.AuditFilter{Limit: a.config.Run.HistoryLimit}
	if *historyLimit > 0 {
		filter.Limit = *historyLimit
	}
	if len(args) > 0 {
		filter.QueryID = args[0]
	}

	records, err := a.storage.AuditSink().Query(ctx, filter)
	if err != nil {
		return err
	}
	for _, record := range records {
		line := fmt.Sprintf("  %s  %-30s %-7s rows=%-8d %s",
			record.StartedAt.Format("2006-01-02 15:04:05"),
			record.QueryID, record.Status, record.RowCount,
			record.Duration().Round(time.Millisecond))
		if record.ErrorMessage != "" {
			line += "  " + record.ErrorMessage
		}
		fmt.Println(line)
	}
	return nil
}

func (a *app) cmdTables(ctx context.Context) error {
	tables, err := a.storage.ResultStore().ListTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		fmt.Printf("  %-40s %d rows\n", table.Name, table.RowCount)
	}
	return nil
}

func (a *app) cmdDropTable(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("drop-table requires exactly one table name")
	}
	dropped, err := a.storage.ResultStore().DropTable(ctx, args[0])
	if err != nil {
		return err
	}
	if !dropped {
		return fmt.Errorf("table %s was not dropped (unknown or protected)", args[0])
	}
	fmt.Printf("Dropped %s\n", args[0])
	return nil
}
