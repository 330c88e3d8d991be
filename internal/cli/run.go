package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/gxo-labs/taskgraph/internal/engine"
	intEvents "github.com/gxo-labs/taskgraph/internal/events"
	"github.com/gxo-labs/taskgraph/internal/metrics"
	"github.com/gxo-labs/taskgraph/internal/paramutil"
	"github.com/gxo-labs/taskgraph/internal/state"
	"github.com/gxo-labs/taskgraph/internal/tracing"
	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

const eventBusSize = 256

type runOptions struct {
	params      []string
	workers     int
	timeout     time.Duration
	metricsFile string
	reportFile  string
}

func newRunCommand(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <Family> [Family...]",
		Short: "Run tasks and everything they depend on",
		Long: `Run builds the dependency graph of the named task families and runs
every task whose outputs are missing. Parameters given with --param apply to
every named family.`,
		Example: `  taskgraph run AllExpo
  taskgraph run GenerateExpo --param fold=dev --param weight=8
  taskgraph run CreateGuesses AllGuessers --workers 4`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, g, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.params, "param", "p", nil, "task parameter as key=value (repeatable)")
	f.IntVarP(&opts.workers, "workers", "w", 0, "concurrent task bodies (default: configuration, then one per CPU)")
	f.DurationVar(&opts.timeout, "timeout", 0, "abort the pass after this duration (0 disables)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the pass")
	f.StringVar(&opts.reportFile, "report-file", "", "write the execution report as JSON to this file")
	return cmd
}

// resolveRoots builds one root task per family name.
func resolveRoots(a *app, families, rawParams []string) ([]task.Task, error) {
	params, err := paramutil.ParseKeyValues(rawParams)
	if err != nil {
		return nil, &usageError{err}
	}
	roots := make([]task.Task, 0, len(families))
	for _, family := range families {
		t, err := a.tasks.Resolve(family, params)
		if err != nil {
			return nil, err
		}
		roots = append(roots, t)
	}
	return roots, nil
}

func runPass(cmd *cobra.Command, g *globalOptions, opts *runOptions, families []string) error {
	if opts.workers < 0 {
		return &usageError{errors.New("--workers must not be negative")}
	}
	a, err := g.loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	roots, err := resolveRoots(a, families, opts.params)
	if err != nil {
		return err
	}

	workers := opts.workers
	if workers == 0 {
		workers = a.cfg.Workers
	}
	engineOpts := []tg.EngineOption{tg.WithStateStore(state.NewMemoryStateStore())}
	if workers > 0 {
		engineOpts = append(engineOpts, tg.WithWorkerPoolSize(workers))
	}

	metricsProvider := metrics.NewProcessRegistryProvider()
	tracerProvider := tracing.NewProviderFromEnv(cmd.Context(), a.log)
	bus := intEvents.NewChannelEventBus(eventBusSize, a.log)
	engineOpts = append(engineOpts,
		tg.WithMetricsRegistryProvider(metricsProvider),
		tg.WithTracerProvider(tracerProvider),
		tg.WithEventBus(bus),
	)

	eng, err := engine.NewEngine(a.log, engineOpts...)
	if err != nil {
		return err
	}
	listener, err := intEvents.NewMetricsEventListener(bus, metricsProvider.Registry(), a.log)
	if err != nil {
		return err
	}
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		listener.Start(context.Background())
	}()

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	var engineAPI tg.EngineV1 = eng
	report, runErr := engineAPI.Run(ctx, tg.RunRequest{Roots: roots, Hooks: a.hooks})
	if runErr != nil && opts.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		runErr = &timeoutError{err: runErr}
	}
	bus.Close()
	<-listenerDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		a.log.Warnf("Error shutting down tracer provider: %v", err)
	}
	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(metricsProvider, opts.metricsFile); err != nil {
			a.log.Warnf("Failed to write metrics: %v", err)
		}
	}
	if opts.reportFile != "" && report != nil {
		if err := writeReport(opts.reportFile, report); err != nil {
			a.log.Warnf("Failed to write report: %v", err)
		}
	}

	g.report = report
	printReportSummary(a.log, report, runErr)
	return runErr
}

func writeReport(path string, report *tg.ExecutionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printReportSummary(log tglog.Logger, report *tg.ExecutionReport, runErr error) {
	if report == nil {
		if runErr != nil {
			log.Errorf("Pass failed before running: %v", runErr)
		}
		return
	}
	summary := fmt.Sprintf("Pass %s in %v. Tasks: total=%d, ran=%d, satisfied=%d, failed=%d, blocked=%d, cancelled=%d",
		report.OverallStatus, report.Duration.Truncate(time.Millisecond),
		report.TotalTasks, report.CompletedTasks, report.SatisfiedTasks,
		report.FailedTasks, report.BlockedTasks, report.CancelledTasks)
	if runErr == nil {
		log.Infof("%s", summary)
		return
	}
	log.Errorf("%s", summary)
	var timeout *timeoutError
	switch {
	case errors.As(runErr, &timeout):
		log.Errorf("Reason: timeout.")
	case errors.Is(runErr, context.Canceled):
		log.Warnf("Reason: cancelled.")
	case report.TotalTasks == 0:
		log.Errorf("Error: %v", runErr)
	}

	ids := make([]string, 0, len(report.TaskResults))
	for id := range report.TaskResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		res := report.TaskResults[id]
		switch res.Status {
		case "Failed":
			log.Errorf("  - %s failed: %s", id, res.Error)
			for _, h := range res.HookErrors {
				log.Warnf("    failure hook: %s", h)
			}
		case "Blocked":
			log.Warnf("  - %s blocked by %s", id, res.BlockedBy)
		}
	}
}
