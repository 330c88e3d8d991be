// Package cli implements the taskgraph command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/logger"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/pipeline/catalog"
	"github.com/gxo-labs/taskgraph/internal/registry"
	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
)

const (
	DefaultConfigPath = "taskgraph.yaml"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	stdout io.Writer
	stderr io.Writer
	// report is set by commands that run a pass; it drives the exit code.
	report *tg.ExecutionReport
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdout: stdout, stderr: stderr}
	return newRootCommand(opts)
}

func newRootCommand(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskgraph",
		Short: "Run declarative task dependency pipelines",
		Long: `taskgraph resolves a task and everything it depends on into a graph,
then runs each task whose outputs are missing, dependencies first.
Tasks whose outputs already exist are never run again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.logFormat != "text" && opts.logFormat != "json" {
				return &usageError{fmt.Errorf("--log-format must be 'text' or 'json', got %q", opts.logFormat)}
			}
			return nil
		},
	}
	root.SetOut(opts.stdout)
	root.SetErr(opts.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", DefaultConfigPath, "pipeline configuration file")
	pf.StringVar(&opts.logLevel, "log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", DefaultLogFormat, "log format (text, json)")

	root.AddCommand(
		newRunCommand(opts),
		newPlanCommand(opts),
		newValidateCommand(opts),
		newListCommand(opts),
		newImportQuestionsCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// Execute runs the command line in args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &globalOptions{stdout: stdout, stderr: stderr}
	root := newRootCommand(opts)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		err = &usageError{err}
	}
	if err != nil && opts.report == nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCodeFor(opts.report, err)
}

// Main is the process entry point: it wires SIGINT and SIGTERM to
// cancellation and maps an interrupted run to 128+signal.
func Main(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var received atomic.Int32
	go func() {
		select {
		case s := <-sigCh:
			if ss, ok := s.(syscall.Signal); ok {
				received.Store(int32(ss))
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	code := Execute(ctx, args, os.Stdout, os.Stderr)
	if sig := syscall.Signal(received.Load()); sig != 0 && code != ExitSuccess {
		return ExitSigIntBase + int(sig)
	}
	return code
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// app is what every command that touches the pipeline needs.
type app struct {
	cfg      *config.Config
	log      tglog.Logger
	env      *pipeline.Env
	tasks    *registry.StaticRegistry
	guessers *registry.StaticRegistry
	hooks    *hooks.Registry
}

func (o *globalOptions) newLogger() tglog.Logger {
	return logger.NewLogger(o.logLevel, o.logFormat, o.stderr)
}

// loadConfig reads --config. When the flag was left at its default and the
// file does not exist, the built-in defaults are used.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(o.configPath); errors.Is(err, os.ErrNotExist) {
			cfg := config.Defaults()
			cfg.FilePath = "(built-in defaults)"
			return &cfg, nil
		}
	}
	return config.LoadFile(o.configPath)
}

func (o *globalOptions) loadApp(cmd *cobra.Command) (*app, error) {
	log := o.newLogger()
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded configuration %s", cfg.FilePath)

	a := &app{
		cfg:      cfg,
		log:      log,
		env:      pipeline.NewEnv(cfg, log),
		tasks:    registry.NewStaticRegistry(),
		guessers: registry.NewStaticRegistry(),
		hooks:    hooks.NewRegistry(),
	}
	if err := catalog.RegisterAll(a.tasks, a.guessers, a.env); err != nil {
		return nil, err
	}
	catalog.RegisterFailureHooks(a.hooks, a.env)
	return a, nil
}

func (a *app) close() {
	if err := a.env.Close(); err != nil {
		a.log.Warnf("Failed to close question database: %v", err)
	}
}
