package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	intTracing "github.com/gxo-labs/taskgraph/internal/tracing"
	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// Plan builds the graph for roots and classifies every node by what a pass
// would do with it. No task body is run and no status is written.
func (e *Engine) Plan(ctx context.Context, roots []task.Task) (*tg.PlanReport, error) {
	_, span := e.tracerProvider.GetTracer(tracerName).Start(ctx, "taskgraph.pass.plan")
	defer span.End()

	dag, err := BuildDAG(roots)
	if err != nil {
		intTracing.RecordError(span, err)
		return nil, err
	}

	report := &tg.PlanReport{Tasks: make([]tg.PlanEntry, 0, len(dag.Nodes))}
	for _, r := range dag.Roots {
		report.Roots = append(report.Roots, r.ID)
	}

	actions := make(map[string]string, len(dag.Nodes))
	for _, n := range dag.Order() {
		action := e.planAction(n, actions)
		actions[n.ID] = action

		entry := tg.PlanEntry{
			ID:     n.ID,
			Family: n.Task.Family(),
			Kind:   n.Kind.String(),
			Action: action,
		}
		for _, o := range n.Outputs {
			entry.Outputs = append(entry.Outputs, o.String())
		}
		for _, d := range n.DependsOn {
			entry.DependsOn = append(entry.DependsOn, d.ID)
		}
		report.Tasks = append(report.Tasks, entry)
	}
	span.SetAttributes(attribute.Int("taskgraph.pass.total_tasks", len(report.Tasks)))
	return report, nil
}

func (e *Engine) planAction(n *Node, actions map[string]string) string {
	if n.Kind == task.KindExternal {
		e.completenessChecks.Inc()
		if task.OutputsExist(n.Outputs) {
			return tg.PlanComplete
		}
		return tg.PlanMissing
	}
	for _, d := range n.DependsOn {
		if a := actions[d.ID]; a == tg.PlanMissing || a == tg.PlanUnreachable {
			return tg.PlanUnreachable
		}
	}
	if n.Kind == task.KindWrapper || len(n.Outputs) == 0 {
		return tg.PlanAggregate
	}
	e.completenessChecks.Inc()
	if task.OutputsExist(n.Outputs) {
		return tg.PlanComplete
	}
	return tg.PlanRun
}
