package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gxo-labs/taskgraph/internal/engine"
	"github.com/gxo-labs/taskgraph/internal/logger"
)

func newPlanCommand(g *globalOptions) *cobra.Command {
	var (
		params []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "plan <Family> [Family...]",
		Short: "Show what a run would do without running anything",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			roots, err := resolveRoots(a, args, params)
			if err != nil {
				return err
			}

			eng, err := engine.NewEngine(logger.NewLogger("error", g.logFormat, g.stderr))
			if err != nil {
				return err
			}
			plan, err := eng.Plan(cmd.Context(), roots)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACTION\tTASK\tKIND\tDEPENDS ON")
			for _, e := range plan.Tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Action, e.ID, e.Kind, strings.Join(e.DependsOn, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "task parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}
