package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gxo-labs/taskgraph/internal/command"
	"github.com/gxo-labs/taskgraph/internal/secrets"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// maxStderrInError bounds how much command stderr is copied into an error.
const maxStderrInError = 2048

// CommandTask is a pipeline step whose body is an external program bound
// under 'steps' in the configuration. Its outputs are the configured ones
// plus any extra outputs the step family always produces.
type CommandTask struct {
	task.Base
	family  string
	deps    []task.Task
	env     *Env
	outputs []task.Target
}

// NewCommandTask builds the step family. Output entries containing glob
// metacharacters become file-set targets. A step without configuration
// builds fine and fails when run.
func NewCommandTask(env *Env, family string, deps []task.Task, extra ...task.Target) (*CommandTask, error) {
	t := &CommandTask{family: family, deps: deps, env: env}
	if step, ok := env.Config.Steps[family]; ok {
		for _, spec := range step.Outputs {
			out, err := OutputTarget(spec)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", family, err)
			}
			t.outputs = append(t.outputs, out)
		}
	}
	t.outputs = append(t.outputs, extra...)
	return t, nil
}

func (t *CommandTask) Family() string                 { return t.family }
func (t *CommandTask) Requires() ([]task.Task, error) { return t.deps, nil }
func (t *CommandTask) Output() []task.Target          { return t.outputs }

func (t *CommandTask) Run(ctx context.Context) task.Result {
	step, ok := t.env.Config.Steps[t.family]
	if !ok || step.Command == "" {
		return task.Failuref("step %s has no command configured under 'steps' in %s", t.family, t.env.Config.FilePath)
	}
	if step.Timeout != "" {
		d, err := time.ParseDuration(step.Timeout)
		if err != nil {
			return task.Failuref("step %s: invalid timeout %q: %v", t.family, step.Timeout, err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	env := map[string]string{"TASKGRAPH_STEP": t.family}
	for k, v := range step.Env {
		env[k] = v
	}
	tracker := secrets.NewTracker()
	for _, name := range step.Secrets {
		value, found, err := t.env.Secrets.GetSecret(ctx, name)
		if err != nil {
			return task.Failure(fmt.Errorf("step %s: look up secret %s: %w", t.family, name, err))
		}
		if !found {
			return task.Failuref("step %s: secret %s is not set", t.family, name)
		}
		env[name] = value
		tracker.Add(value)
	}
	t.env.Log.Debugf("Running %s for step %s", step.Command, t.family)
	res, err := t.env.Runner.Run(ctx, command.Request{
		Command:    step.Command,
		Args:       step.Args,
		WorkingDir: step.WorkingDir,
		Env:        env,
	})
	if err != nil {
		if tracker.Contains(err.Error()) {
			return task.Failuref("step %s: %s", t.family, tracker.Redact(err.Error()))
		}
		return task.Failure(fmt.Errorf("step %s: %w", t.family, err))
	}
	if res.Stdout != "" {
		t.env.Log.Debugf("Step %s stdout:\n%s", t.family, tracker.Redact(strings.TrimRight(res.Stdout, "\n")))
	}
	if res.ExitCode != 0 {
		return task.Failuref("step %s: command exited with status %d: %s", t.family, res.ExitCode, tail(tracker.Redact(res.Stderr), maxStderrInError))
	}
	return task.Success()
}

// OutputTarget turns a configured output into a target. "out/dan/*.npz"
// becomes a glob over "out/dan"; a plain path is a local file.
func OutputTarget(spec string) (task.Target, error) {
	if !strings.ContainsAny(spec, "*?[{") {
		return target.NewLocal(spec), nil
	}
	parts := strings.Split(filepath.ToSlash(spec), "/")
	i := 0
	for i < len(parts) && !strings.ContainsAny(parts[i], "*?[{") {
		i++
	}
	dir := strings.Join(parts[:i], "/")
	if dir == "" {
		dir = "."
	}
	return target.NewGlob(filepath.FromSlash(dir), strings.Join(parts[i:], "/"), 1)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

