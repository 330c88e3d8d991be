package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	intTracing "github.com/gxo-labs/taskgraph/internal/tracing"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/events"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TaskRunner invokes one task body and checks its postcondition.
type TaskRunner struct {
	eventBus     events.Bus
	log          tglog.Logger
	taskDuration *prometheus.HistogramVec
}

// NewTaskRunner creates a runner emitting to bus. taskDuration may be nil.
func NewTaskRunner(bus events.Bus, log tglog.Logger, taskDuration *prometheus.HistogramVec) *TaskRunner {
	return &TaskRunner{eventBus: bus, log: log, taskDuration: taskDuration}
}

// runResult is what one invocation of a task body produced.
type runResult struct {
	err      error
	hookErrs []error
}

// Execute runs the body of node. A panic in the body becomes a failure. A
// successful body whose outputs still do not all exist is a
// ContractViolationError. Either kind of failure fires the failure hooks
// registered for the task family; hook errors never replace the task error.
func (r *TaskRunner) Execute(
	ctx context.Context,
	runID string,
	node *Node,
	hookTable *hooks.Registry,
	tracer oteltrace.Tracer,
) runResult {
	t := node.Task
	log := r.log.With("task_id", node.ID)

	ctx, span := tracer.Start(ctx, "taskgraph.task.run",
		oteltrace.WithAttributes(intTracing.TaskAttributes(t)...),
		oteltrace.WithAttributes(intTracing.AttrRunID.String(runID)),
	)
	defer span.End()

	r.eventBus.Emit(events.Event{
		Type:      events.TaskStart,
		Timestamp: time.Now(),
		RunID:     runID,
		TaskID:    node.ID,
		Family:    t.Family(),
	})
	log.LogCtx(ctx, slog.LevelInfo, "Running task")

	start := time.Now()
	res := invoke(ctx, t)
	elapsed := time.Since(start)
	if r.taskDuration != nil {
		r.taskDuration.WithLabelValues(t.Family()).Observe(elapsed.Seconds())
	}

	var out runResult
	if res.Failed() {
		out.err = tgerrors.NewTaskExecutionError(node.ID, res.Err())
	} else if len(node.Outputs) > 0 {
		if missing := task.MissingOutputs(node.Outputs); len(missing) > 0 {
			out.err = tgerrors.NewContractViolationError(node.ID, missing)
		}
	}

	if out.err != nil {
		if errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded) {
			log.Warnf("Task interrupted: %v", out.err)
		} else {
			log.Errorf("Task failed: %v", out.err)
		}
		intTracing.RecordError(span, out.err)
		out.hookErrs = r.fireHooks(ctx, runID, node, hookTable, out.err, log)
	} else {
		span.SetStatus(codes.Ok, "")
		log.Debugf("Task finished in %s", elapsed)
	}

	span.SetAttributes(attribute.Int64("taskgraph.task.duration_ms", elapsed.Milliseconds()))
	payload := map[string]interface{}{"duration_ms": elapsed.Milliseconds()}
	if out.err != nil {
		payload["error"] = out.err.Error()
	}
	r.eventBus.Emit(events.Event{
		Type:      events.TaskEnd,
		Timestamp: time.Now(),
		RunID:     runID,
		TaskID:    node.ID,
		Family:    t.Family(),
		Payload:   payload,
	})
	return out
}

func (r *TaskRunner) fireHooks(ctx context.Context, runID string, node *Node, hookTable *hooks.Registry, cause error, log tglog.Logger) []error {
	if !hookTable.Has(node.Task.Family()) {
		return nil
	}
	hookErrs := hookTable.Fire(node.Task, cause)
	for _, herr := range hookErrs {
		log.LogCtx(ctx, slog.LevelError, "Failure hook returned an error", "error", herr)
	}
	payload := map[string]interface{}{"hook_errors": len(hookErrs)}
	r.eventBus.Emit(events.Event{
		Type:      events.FailureHookFired,
		Timestamp: time.Now(),
		RunID:     runID,
		TaskID:    node.ID,
		Family:    node.Task.Family(),
		Payload:   payload,
	})
	return hookErrs
}

// invoke calls t.Run, converting a panic into a failure Result.
func invoke(ctx context.Context, t task.Task) (res task.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = task.Failure(fmt.Errorf("panic: %v\n%s", p, debug.Stack()))
		}
	}()
	return t.Run(ctx)
}
