package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	intEvents "github.com/gxo-labs/taskgraph/internal/events"
	intMetrics "github.com/gxo-labs/taskgraph/internal/metrics"
	intState "github.com/gxo-labs/taskgraph/internal/state"
	intTracing "github.com/gxo-labs/taskgraph/internal/tracing"
	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/events"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/metrics"
	tgstate "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/state"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
	tgtracing "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/tracing"
)

const tracerName = "taskgraph-engine"

// Engine schedules task graphs. It keeps no state between passes other than
// its collaborators, so concurrent Run calls are independent.
type Engine struct {
	stateStore      tgstate.Store
	eventBus        events.Bus
	metricsProvider metrics.RegistryProvider
	tracerProvider  tgtracing.TracerProvider
	log             tglog.Logger
	taskRunner      *TaskRunner
	workerPoolSize  int

	activeWorkers atomic.Int32

	passCounter        *prometheus.CounterVec
	passDuration       prometheus.Histogram
	taskCounter        *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	activeWorkersGauge prometheus.Gauge
	completenessChecks prometheus.Counter
}

var _ tg.EngineV1 = (*Engine)(nil)

// NewEngine applies opts and fills every collaborator left unset with a
// default: in-memory state, no-op event bus, private Prometheus registry,
// no-op tracing, and one worker per CPU.
func NewEngine(log tglog.Logger, opts ...tg.EngineOption) (*Engine, error) {
	if log == nil {
		return nil, tgerrors.NewConfigError("logger cannot be nil", nil)
	}
	e := &Engine{
		log:            log,
		workerPoolSize: runtime.NumCPU(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, tgerrors.NewConfigError("failed to apply engine option", err)
		}
	}

	if e.stateStore == nil {
		e.log.Debugf("No state store provided, using in-memory store.")
		e.stateStore = intState.NewMemoryStateStore()
	}
	if e.eventBus == nil {
		e.eventBus = intEvents.NewNoOpEventBus()
	}
	if e.metricsProvider == nil {
		e.log.Debugf("No metrics provider provided, using a private Prometheus registry.")
		e.metricsProvider = intMetrics.NewPrometheusRegistryProvider()
	}
	if e.tracerProvider == nil {
		e.tracerProvider = intTracing.NewNoOpProvider()
	}

	if err := e.initMetrics(); err != nil {
		return nil, tgerrors.NewConfigError("failed to register engine metrics", err)
	}
	e.taskRunner = NewTaskRunner(e.eventBus, e.log, e.taskDuration)
	return e, nil
}

func (e *Engine) initMetrics() error {
	reg := e.metricsProvider.Registry()
	if reg == nil {
		return errors.New("metrics provider returned a nil registry")
	}

	var err error
	if e.passCounter, err = registerOrReuse(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "taskgraph_pass_runs_total", Help: "Scheduling passes finished, by overall status."},
		[]string{"status"},
	)); err != nil {
		return err
	}
	if e.passDuration, err = registerOrReuse(reg, prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "taskgraph_pass_duration_seconds", Help: "Duration of scheduling passes in seconds.", Buckets: prometheus.DefBuckets},
	)); err != nil {
		return err
	}
	if e.taskCounter, err = registerOrReuse(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "taskgraph_task_outcomes_total", Help: "Terminal task statuses, by family and status."},
		[]string{"family", "status"},
	)); err != nil {
		return err
	}
	if e.taskDuration, err = registerOrReuse(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "taskgraph_task_run_duration_seconds", Help: "Duration of task bodies in seconds.", Buckets: prometheus.ExponentialBuckets(0.01, 4, 10)},
		[]string{"family"},
	)); err != nil {
		return err
	}
	if e.activeWorkersGauge, err = registerOrReuse(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "taskgraph_engine_active_workers", Help: "Task evaluations currently in progress."},
	)); err != nil {
		return err
	}
	if e.completenessChecks, err = registerOrReuse(reg, prometheus.NewCounter(
		prometheus.CounterOpts{Name: "taskgraph_completeness_checks_total", Help: "Output existence checks performed."},
	)); err != nil {
		return err
	}
	return nil
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// nodeResult is the pass-local record of one node. It is only touched by the
// scheduling loop goroutine.
type nodeResult struct {
	status    TaskStatus
	err       error
	blockedBy string
	ran       bool
	// changed is true when the node ran, or is a zero-output node with a
	// changed dependency.
	changed  bool
	hookErrs []error
	start    time.Time
	end      time.Time
}

// outcome is sent by a worker when it finishes evaluating a node.
type outcome struct {
	node *Node
	nodeResult
}

type pass struct {
	runID   string
	dag     *DAG
	hooks   *hooks.Registry
	log     tglog.Logger
	tracer  oteltrace.Tracer
	results map[string]*nodeResult
}

// Run performs one scheduling pass over the graph reachable from req.Roots.
func (e *Engine) Run(ctx context.Context, req tg.RunRequest) (report *tg.ExecutionReport, finalErr error) {
	p := &pass{
		runID:   uuid.NewString(),
		hooks:   req.Hooks,
		tracer:  e.tracerProvider.GetTracer(tracerName),
		results: make(map[string]*nodeResult),
	}
	p.log = e.log.With("run_id", p.runID)

	ctx, span := p.tracer.Start(ctx, "taskgraph.pass.run",
		oteltrace.WithAttributes(intTracing.AttrRunID.String(p.runID)))
	defer span.End()

	start := time.Now()
	rootIDs := make([]string, 0, len(req.Roots))
	for _, r := range req.Roots {
		if r != nil {
			rootIDs = append(rootIDs, task.ID(r))
		}
	}

	defer func() {
		report = e.generateReport(p, rootIDs, start, time.Now(), finalErr)
		e.passDuration.Observe(report.Duration.Seconds())
		e.passCounter.WithLabelValues(report.OverallStatus).Inc()
		span.SetAttributes(
			attribute.String("taskgraph.pass.status", report.OverallStatus),
			attribute.Int("taskgraph.pass.total_tasks", report.TotalTasks),
			attribute.Int("taskgraph.pass.runs_invoked", report.RunsInvoked),
			attribute.Int("taskgraph.pass.failed_tasks", report.FailedTasks),
			attribute.Int("taskgraph.pass.blocked_tasks", report.BlockedTasks),
		)
		if finalErr != nil {
			intTracing.RecordError(span, finalErr)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		e.emitPassEnd(report)
		p.log.Infof("Pass finished: %s (%d ran, %d satisfied, %d failed, %d blocked)",
			report.OverallStatus, report.CompletedTasks, report.SatisfiedTasks, report.FailedTasks, report.BlockedTasks)
	}()

	e.eventBus.Emit(events.Event{
		Type:      events.PassStart,
		Timestamp: start,
		RunID:     p.runID,
		Payload:   map[string]interface{}{"roots": rootIDs},
	})
	p.log.Infof("Starting pass for %d root task(s)", len(rootIDs))

	dag, err := BuildDAG(req.Roots)
	if err != nil {
		e.emitFatal(p, err)
		return nil, err
	}
	p.dag = dag
	span.SetAttributes(attribute.Int("taskgraph.pass.total_tasks", len(dag.Nodes)))
	p.log.Debugf("Graph built with %d task(s)", len(dag.Nodes))

	if err := e.preflight(dag); err != nil {
		e.emitFatal(p, err)
		return nil, err
	}

	for _, n := range dag.Order() {
		p.results[n.ID] = &nodeResult{status: StatusPending}
		e.writeTaskStatus(ctx, n.ID, StatusPending, nil)
	}

	e.execute(ctx, p)
	return nil, e.determineFinalOutcome(ctx, p)
}

// preflight fails when any external task has missing outputs. It runs before
// any task body, so a missing input never leaves half-built outputs behind.
func (e *Engine) preflight(dag *DAG) error {
	missing := make(map[string][]string)
	for _, n := range dag.Externals() {
		e.completenessChecks.Inc()
		if m := task.MissingOutputs(n.Outputs); len(m) > 0 {
			missing[n.ID] = m
		}
	}
	if len(missing) > 0 {
		return tgerrors.NewMissingExternalOutputError(missing)
	}
	return nil
}

// execute drives the pass. This goroutine owns p.results; workers only
// evaluate a node and report an outcome. A node is dispatched once all its
// dependencies are terminal, and blocked instead if any of them failed.
func (e *Engine) execute(ctx context.Context, p *pass) {
	nodes := p.dag.Order()
	outcomes := make(chan outcome, len(nodes))
	remaining := make(map[string]int, len(nodes))
	var ready []*Node
	for _, n := range nodes {
		remaining[n.ID] = len(n.DependsOn)
		if len(n.DependsOn) == 0 {
			ready = append(ready, n)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(e.workerPoolSize)
	pending := len(nodes)
	inFlight := 0

	dispatch := func() {
		for len(ready) > 0 && ctx.Err() == nil {
			n := ready[0]
			ready = ready[1:]
			depChanged := p.anyDependencyChanged(n)
			// Go blocks while the pool is full. Workers never wait on this
			// goroutine since outcomes is buffered for every node.
			g.Go(func() error {
				outcomes <- e.evaluate(ctx, p, n, depChanged)
				return nil
			})
			inFlight++
			res := p.results[n.ID]
			res.status = StatusRunning
			res.start = time.Now()
			e.writeTaskStatus(ctx, n.ID, StatusRunning, nil)
		}
	}

	// settle propagates a terminal node to its dependents.
	settle := func(n *Node) {
		work := []*Node{n}
		for len(work) > 0 {
			cur := work[0]
			work = work[1:]
			for _, dep := range cur.RequiredBy {
				remaining[dep.ID]--
				if remaining[dep.ID] > 0 {
					continue
				}
				if blocker := p.blockerOf(dep); blocker != "" {
					res := p.results[dep.ID]
					res.status = StatusBlocked
					res.blockedBy = blocker
					now := time.Now()
					res.start, res.end = now, now
					pending--
					p.log.Warnf("Task %s blocked by failed task %s", dep.ID, blocker)
					e.finishNode(ctx, p, dep)
					work = append(work, dep)
					continue
				}
				ready = append(ready, dep)
			}
		}
	}

	done := ctx.Done()
	dispatch()
	for pending > 0 {
		if inFlight == 0 && (len(ready) == 0 || ctx.Err() != nil) {
			break
		}
		select {
		case o := <-outcomes:
			inFlight--
			pending--
			res := p.results[o.node.ID]
			start := res.start
			*res = o.nodeResult
			if res.start.IsZero() {
				res.start = start
			}
			e.finishNode(ctx, p, o.node)
			settle(o.node)
			dispatch()
		case <-done:
			p.log.Warnf("Pass cancelled (%v), waiting for %d running task(s)", ctx.Err(), inFlight)
			done = nil
		}
	}
	_ = g.Wait()

	for _, n := range nodes {
		res := p.results[n.ID]
		if res.status == StatusPending || res.status == StatusRunning {
			res.status = StatusCancelled
			e.finishNode(ctx, p, n)
		}
	}
}

func (p *pass) anyDependencyChanged(n *Node) bool {
	for _, d := range n.DependsOn {
		if p.results[d.ID].changed {
			return true
		}
	}
	return false
}

// blockerOf returns the ID of the failed task that prevents n from running,
// or "" when every dependency succeeded.
func (p *pass) blockerOf(n *Node) string {
	for _, d := range n.DependsOn {
		res := p.results[d.ID]
		switch res.status {
		case StatusFailed:
			return d.ID
		case StatusBlocked:
			return res.blockedBy
		case StatusCancelled:
			return d.ID
		}
	}
	return ""
}

// evaluate decides the outcome of one node whose dependencies all succeeded.
func (e *Engine) evaluate(ctx context.Context, p *pass, n *Node, depChanged bool) (o outcome) {
	current := e.activeWorkers.Add(1)
	e.activeWorkersGauge.Set(float64(current))
	defer func() {
		e.activeWorkersGauge.Set(float64(e.activeWorkers.Add(-1)))
	}()

	o.node = n
	o.start = time.Now()
	defer func() { o.end = time.Now() }()

	switch {
	case n.Kind == task.KindWrapper:
		o.status = StatusSatisfied
		o.changed = depChanged
		return o

	case n.Kind == task.KindExternal:
		e.completenessChecks.Inc()
		if task.OutputsExist(n.Outputs) {
			o.status = StatusSatisfied
		} else {
			o.status = StatusFailed
			o.err = tgerrors.NewMissingExternalOutputError(map[string][]string{n.ID: task.MissingOutputs(n.Outputs)})
		}
		return o

	case len(n.Outputs) > 0:
		e.completenessChecks.Inc()
		if task.OutputsExist(n.Outputs) {
			p.log.Debugf("Task %s is complete, skipping", n.ID)
			o.status = StatusSatisfied
			return o
		}

	case !depChanged:
		// Zero outputs: complete once its dependencies are, unless one of
		// them produced something new in this pass.
		o.status = StatusSatisfied
		return o
	}

	if ctx.Err() != nil {
		o.status = StatusCancelled
		o.err = ctx.Err()
		return o
	}

	rr := e.taskRunner.Execute(ctx, p.runID, n, p.hooks, p.tracer)
	o.ran = true
	o.hookErrs = rr.hookErrs
	if rr.err != nil {
		o.status = StatusFailed
		o.err = rr.err
		return o
	}
	o.status = StatusCompleted
	o.changed = true
	return o
}

// finishNode records a terminal status in the state store, metrics and
// events.
func (e *Engine) finishNode(ctx context.Context, p *pass, n *Node) {
	res := p.results[n.ID]
	if res.end.IsZero() {
		res.end = time.Now()
	}
	e.writeTaskStatus(ctx, n.ID, res.status, res.err)
	e.taskCounter.WithLabelValues(n.Task.Family(), string(res.status)).Inc()

	payload := map[string]interface{}{"status": string(res.status), "ran": res.ran}
	if res.err != nil {
		payload["error"] = res.err.Error()
	}
	if res.blockedBy != "" {
		payload["blocked_by"] = res.blockedBy
	}
	e.eventBus.Emit(events.Event{
		Type:      events.TaskStatusChanged,
		Timestamp: res.end,
		RunID:     p.runID,
		TaskID:    n.ID,
		Family:    n.Task.Family(),
		Payload:   payload,
	})
}

func (e *Engine) writeTaskStatus(ctx context.Context, taskID string, status TaskStatus, taskErr error) {
	if err := e.stateStore.Set(intState.TaskStatusKey(taskID), string(status)); err != nil {
		e.log.LogCtx(ctx, slog.LevelError, "Failed to write task status to state store",
			"task_id", taskID, "status", status, "error", err)
	}
	if taskErr != nil {
		_ = e.stateStore.Set(intState.TaskErrorKey(taskID), taskErr.Error())
	}
}

// determineFinalOutcome returns nil when every root is satisfied or
// completed. Otherwise it returns a PassError naming every failed and
// blocked task, wrapped with the context error when the pass was cancelled.
func (e *Engine) determineFinalOutcome(ctx context.Context, p *pass) error {
	failed := make(map[string]error)
	blocked := make(map[string]string)
	cancelled := 0
	for id, res := range p.results {
		switch res.status {
		case StatusFailed:
			failed[id] = res.err
			if failed[id] == nil {
				failed[id] = errors.New("task failed")
			}
		case StatusBlocked:
			blocked[id] = res.blockedBy
		case StatusCancelled:
			cancelled++
		}
	}

	var passErr error
	if len(failed) > 0 || len(blocked) > 0 {
		passErr = &tgerrors.PassError{Failed: failed, Blocked: blocked}
	}
	if cancelled > 0 || ctx.Err() != nil {
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		if passErr != nil {
			return fmt.Errorf("pass cancelled with %d task(s) not run: %w", cancelled, errors.Join(cause, passErr))
		}
		if cancelled > 0 {
			return fmt.Errorf("pass cancelled with %d task(s) not run: %w", cancelled, cause)
		}
	}
	return passErr
}

func (e *Engine) generateReport(p *pass, roots []string, start, end time.Time, finalErr error) *tg.ExecutionReport {
	report := &tg.ExecutionReport{
		RunID:         p.runID,
		Roots:         roots,
		OverallStatus: tg.PassCompleted,
		StartTime:     start,
		EndTime:       end,
		Duration:      end.Sub(start),
		TaskResults:   make(map[string]tg.TaskResult, len(p.results)),
	}
	if finalErr != nil {
		report.OverallStatus = tg.PassFailed
		report.Error = finalErr.Error()
	}

	for id, res := range p.results {
		family := ""
		if p.dag != nil {
			if n, ok := p.dag.Nodes[id]; ok {
				family = n.Task.Family()
			}
		}
		tr := tg.TaskResult{
			Family:    family,
			Status:    string(res.status),
			Ran:       res.ran,
			BlockedBy: res.blockedBy,
			StartTime: res.start,
			EndTime:   res.end,
		}
		if !res.start.IsZero() && !res.end.IsZero() {
			tr.Duration = res.end.Sub(res.start)
		}
		if res.err != nil {
			tr.Error = res.err.Error()
		}
		for _, herr := range res.hookErrs {
			tr.HookErrors = append(tr.HookErrors, herr.Error())
		}
		if res.ran {
			report.RunsInvoked++
		}

		switch res.status {
		case StatusCompleted:
			report.CompletedTasks++
		case StatusSatisfied:
			report.SatisfiedTasks++
		case StatusFailed:
			report.FailedTasks++
		case StatusBlocked:
			report.BlockedTasks++
		case StatusCancelled:
			report.CancelledTasks++
		}
		report.TaskResults[id] = tr
	}
	report.TotalTasks = len(p.results)
	if report.CancelledTasks > 0 && report.FailedTasks == 0 && report.BlockedTasks == 0 {
		report.OverallStatus = tg.PassCancelled
	}
	return report
}

func (e *Engine) emitFatal(p *pass, err error) {
	p.log.Errorf("Pass aborted before running any task: %v", err)
	e.eventBus.Emit(events.Event{
		Type:      events.FatalErrorOccurred,
		Timestamp: time.Now(),
		RunID:     p.runID,
		Payload:   map[string]interface{}{"error": err.Error()},
	})
}

func (e *Engine) emitPassEnd(report *tg.ExecutionReport) {
	e.eventBus.Emit(events.Event{
		Type:      events.PassEnd,
		Timestamp: report.EndTime,
		RunID:     report.RunID,
		Payload: map[string]interface{}{
			"status":       report.OverallStatus,
			"duration_ms":  report.Duration.Milliseconds(),
			"total_tasks":  report.TotalTasks,
			"runs_invoked": report.RunsInvoked,
			"failed":       report.FailedTasks,
			"blocked":      report.BlockedTasks,
			"error":        report.Error,
		},
	})
}

func (e *Engine) MetricsRegistryProvider() metrics.RegistryProvider { return e.metricsProvider }
func (e *Engine) TracerProvider() tgtracing.TracerProvider          { return e.tracerProvider }

func (e *Engine) SetStateStore(store tgstate.Store) error {
	if store == nil {
		return tgerrors.NewConfigError("state store cannot be nil", nil)
	}
	e.stateStore = store
	return nil
}

func (e *Engine) SetEventBus(bus events.Bus) error {
	if bus == nil {
		return tgerrors.NewConfigError("event bus cannot be nil", nil)
	}
	e.eventBus = bus
	if e.taskRunner != nil {
		e.taskRunner.eventBus = bus
	}
	return nil
}

// SetMetricsRegistryProvider switches the registry. After construction the
// collectors are registered with the new registry immediately.
func (e *Engine) SetMetricsRegistryProvider(provider metrics.RegistryProvider) error {
	if provider == nil {
		return tgerrors.NewConfigError("metrics registry provider cannot be nil", nil)
	}
	e.metricsProvider = provider
	if e.taskRunner == nil {
		return nil
	}
	if err := e.initMetrics(); err != nil {
		return err
	}
	e.taskRunner.taskDuration = e.taskDuration
	return nil
}

func (e *Engine) SetTracerProvider(provider tgtracing.TracerProvider) error {
	if provider == nil {
		return tgerrors.NewConfigError("tracer provider cannot be nil", nil)
	}
	e.tracerProvider = provider
	return nil
}

func (e *Engine) SetWorkerPoolSize(size int) error {
	if size <= 0 {
		return tgerrors.NewConfigError("worker pool size must be positive", nil)
	}
	e.workerPoolSize = size
	return nil
}
