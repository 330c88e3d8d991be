// Package command runs the external programs behind command-backed pipeline
// steps.
package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Result holds the outcome of one command execution.
type Result struct {
	Stdout string
	Stderr string
	// ExitCode is -1 when the command could not be started or was killed
	// through its context.
	ExitCode int
}

// Request describes a command to execute.
type Request struct {
	Command    string
	Args       []string
	WorkingDir string
	// Env is added on top of the current process environment.
	Env map[string]string
}

// Runner executes external commands.
type Runner interface {
	// Run returns an error only when the command could not run to
	// completion: not found, not startable, or cancelled through ctx. A
	// command exiting non-zero returns a nil error and the exit code.
	Run(ctx context.Context, req Request) (*Result, error)
}

type defaultRunner struct{}

func NewRunner() Runner {
	return &defaultRunner{}
}

func (r *defaultRunner) Run(ctx context.Context, req Request) (*Result, error) {
	cmd := exec.CommandContext(ctx, req.Command, req.Args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Dir = req.WorkingDir
	if len(req.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), req.Env)
	}

	result := &Result{ExitCode: -1}
	err := cmd.Run()
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	result.ExitCode = 0
	return result, nil
}

// MergeEnv returns base with every key of extra set, replacing existing
// entries. Added keys are appended in sorted order.
func MergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	used := make(map[string]bool, len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := extra[key]; ok {
			out = append(out, key+"="+v)
			used[key] = true
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
