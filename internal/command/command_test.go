package command_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/command"
)

func TestRunner_Success(t *testing.T) {
	res, err := command.NewRunner().Run(context.Background(), command.Request{
		Command: "sh",
		Args:    []string{"-c", `echo "$QANTA_FOLD"; echo oops >&2`},
		Env:     map[string]string{"QANTA_FOLD": "test"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "test\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestRunner_NonZeroExitIsNotAnError(t *testing.T) {
	res, err := command.NewRunner().Run(context.Background(), command.Request{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunner_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), nil, 0o644))
	res, err := command.NewRunner().Run(context.Background(), command.Request{
		Command:    "ls",
		WorkingDir: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, "marker.txt\n", res.Stdout)
}

func TestRunner_NotFound(t *testing.T) {
	res, err := command.NewRunner().Run(context.Background(), command.Request{
		Command: "taskgraph-no-such-binary",
	})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := command.NewRunner().Run(ctx, command.Request{Command: "sleep", Args: []string{"5"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMergeEnv(t *testing.T) {
	out := command.MergeEnv(
		[]string{"PATH=/bin", "HOME=/root"},
		map[string]string{"HOME": "/srv", "B": "2", "A": "1"},
	)
	assert.Equal(t, []string{"PATH=/bin", "HOME=/srv", "A=1", "B=2"}, out)
}
