package v1

import (
	"context"
	"runtime"
	"time"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/events"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/metrics"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/state"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/tracing"
)

// EngineV1 defines the public interface of the task-graph engine.
type EngineV1 interface {
	// Run performs one scheduling pass: it builds the graph reachable from
	// the roots, checks external inputs, then runs every incomplete task
	// after its dependencies. It returns an error when the graph cannot be
	// built or when any task failed or was blocked.
	Run(ctx context.Context, req RunRequest) (*ExecutionReport, error)

	// Plan builds the graph and reports what a pass would do, without
	// running any task body.
	Plan(ctx context.Context, roots []task.Task) (*PlanReport, error)

	MetricsRegistryProvider() metrics.RegistryProvider
	TracerProvider() tracing.TracerProvider

	SetStateStore(store state.Store) error
	SetEventBus(bus events.Bus) error
	SetMetricsRegistryProvider(provider metrics.RegistryProvider) error
	SetTracerProvider(provider tracing.TracerProvider) error
	SetWorkerPoolSize(size int) error
}

// EngineOption configures the engine at creation.
type EngineOption func(EngineV1) error

// RunRequest describes one scheduling pass.
type RunRequest struct {
	// Roots are the tasks the caller wants satisfied.
	Roots []task.Task
	// Hooks is the failure-hook table for this pass. May be nil.
	Hooks *hooks.Registry
}

// Task statuses reported in TaskResult.Status.
const (
	StatusPending   = "Pending"
	StatusRunning   = "Running"
	StatusSatisfied = "Satisfied" // Complete without running in this pass
	StatusCompleted = "Completed" // Ran successfully in this pass
	StatusFailed    = "Failed"
	StatusBlocked   = "Blocked"   // Not run because a dependency failed
	StatusCancelled = "Cancelled" // Not dispatched before the pass was cancelled
)

// Overall pass statuses reported in ExecutionReport.OverallStatus.
const (
	PassCompleted = "Completed"
	PassFailed    = "Failed"
	PassCancelled = "Cancelled"
)

// TaskResult holds the outcome of a single task in a pass.
type TaskResult struct {
	Family     string        `json:"family"`
	Status     string        `json:"status"`
	Ran        bool          `json:"ran"`
	Error      string        `json:"error,omitempty"`
	BlockedBy  string        `json:"blocked_by,omitempty"`
	HookErrors []string      `json:"hook_errors,omitempty"`
	StartTime  time.Time     `json:"start_time,omitempty"`
	EndTime    time.Time     `json:"end_time,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ExecutionReport summarises a scheduling pass.
type ExecutionReport struct {
	RunID          string                `json:"run_id"`
	Roots          []string              `json:"roots"`
	OverallStatus  string                `json:"overall_status"`
	StartTime      time.Time             `json:"start_time"`
	EndTime        time.Time             `json:"end_time"`
	Duration       time.Duration         `json:"duration"`
	TotalTasks     int                   `json:"total_tasks"`
	CompletedTasks int                   `json:"completed_tasks"`
	SatisfiedTasks int                   `json:"satisfied_tasks"`
	FailedTasks    int                   `json:"failed_tasks"`
	BlockedTasks   int                   `json:"blocked_tasks"`
	CancelledTasks int                   `json:"cancelled_tasks"`
	RunsInvoked    int                   `json:"runs_invoked"`
	Error          string                `json:"error,omitempty"`
	TaskResults    map[string]TaskResult `json:"task_results"`
}

// Plan actions reported in PlanEntry.Action.
const (
	PlanComplete    = "complete"    // Outputs exist; nothing to do
	PlanRun         = "run"         // Outputs missing; the body would run
	PlanAggregate   = "aggregate"   // Zero-output task, decided by its dependencies
	PlanMissing     = "missing"     // External task with missing outputs
	PlanUnreachable = "unreachable" // Regular task below a missing external
)

// PlanEntry describes one task of a planned pass.
type PlanEntry struct {
	ID        string   `json:"id"`
	Family    string   `json:"family"`
	Kind      string   `json:"kind"`
	Action    string   `json:"action"`
	Outputs   []string `json:"outputs,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// PlanReport lists the tasks of a graph with dependencies before dependents.
type PlanReport struct {
	Roots []string    `json:"roots"`
	Tasks []PlanEntry `json:"tasks"`
}

// WithStateStore sets the store receiving per-task statuses.
func WithStateStore(store state.Store) EngineOption {
	return func(e EngineV1) error {
		if store == nil {
			return tgerrors.NewConfigError("state store cannot be nil", nil)
		}
		return e.SetStateStore(store)
	}
}

// WithEventBus sets the bus receiving engine events.
func WithEventBus(bus events.Bus) EngineOption {
	return func(e EngineV1) error {
		if bus == nil {
			return tgerrors.NewConfigError("event bus cannot be nil", nil)
		}
		return e.SetEventBus(bus)
	}
}

// WithMetricsRegistryProvider sets where engine metrics are registered.
func WithMetricsRegistryProvider(provider metrics.RegistryProvider) EngineOption {
	return func(e EngineV1) error {
		if provider == nil {
			return tgerrors.NewConfigError("metrics registry provider cannot be nil", nil)
		}
		return e.SetMetricsRegistryProvider(provider)
	}
}

// WithTracerProvider sets the provider used for pass and task spans.
func WithTracerProvider(provider tracing.TracerProvider) EngineOption {
	return func(e EngineV1) error {
		if provider == nil {
			return tgerrors.NewConfigError("tracer provider cannot be nil", nil)
		}
		return e.SetTracerProvider(provider)
	}
}

// WithWorkerPoolSize bounds how many task bodies run at once. Non-positive
// sizes select runtime.NumCPU().
func WithWorkerPoolSize(size int) EngineOption {
	return func(e EngineV1) error {
		if size <= 0 {
			size = runtime.NumCPU()
		}
		return e.SetWorkerPoolSize(size)
	}
}
