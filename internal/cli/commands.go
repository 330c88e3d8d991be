package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gxo-labs/taskgraph/internal/logger"
	"github.com/gxo-labs/taskgraph/internal/questions"
)

func newValidateCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline configuration",
		Long: `Validate checks the configuration against its schema, its schema
version, and the pipeline rules: guesser identifiers, path templates and
step bindings. Every configured guesser must also be registered.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			for _, id := range a.cfg.Guessers {
				if _, err := a.guessers.Get(id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid.\n", a.cfg.FilePath)
			return nil
		},
	}
}

func newListCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the task families and guessers",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Task families:")
			for _, name := range a.tasks.List() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintln(out, "Guessers:")
			for _, name := range a.guessers.List() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}

func newImportQuestionsCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-questions <file.csv>",
		Short: "Import questions into the question database",
		Long: `Import reads rows of qnum,fold,page,sentence,text (with that header)
into the configured question database, creating it when missing. Questions
already present are replaced.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := g.newLogger()
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			storeCfg := questions.DefaultConfig(cfg.Paths.QuestionDB)
			storeCfg.Logger = logger.Slog(log)
			store, err := questions.Open(storeCfg)
			if err != nil {
				return err
			}
			n, err := store.ImportCSV(cmd.Context(), f, args[0])
			if cerr := store.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			log.Infof("Imported %d question(s) into %s", n, cfg.Paths.QuestionDB)
			return nil
		},
	}
}

func newVersionCommand(*globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "taskgraph version %s\n", version)
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "built: %s\n", buildDate)
			fmt.Fprintf(out, "go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
