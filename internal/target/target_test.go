package target_test

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

func TestLocalTargetWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	out := target.NewLocal(filepath.Join(dir, "sub", "out.csv"))
	assert.False(t, out.Exists())

	err := out.Write(func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("interrupted")
	})
	require.Error(t, err)
	assert.False(t, out.Exists(), "failed write must not leave the target behind")
	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be cleaned up")

	require.NoError(t, out.Write(func(w io.Writer) error {
		_, err := io.WriteString(w, "a,b\n")
		return err
	}))
	assert.True(t, out.Exists())
	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	require.NoError(t, out.Remove())
	assert.False(t, out.Exists())
	assert.NoError(t, out.Remove(), "removing a missing target is not an error")
}

func TestOutputsExist(t *testing.T) {
	dir := t.TempDir()
	a := target.NewLocal(filepath.Join(dir, "a"))
	b := target.NewLocal(filepath.Join(dir, "b"))
	require.NoError(t, os.WriteFile(a.Path, nil, 0o644))

	assert.False(t, task.OutputsExist(nil))
	assert.True(t, task.OutputsExist([]task.Target{a}))
	assert.False(t, task.OutputsExist([]task.Target{a, b}))
	assert.Equal(t, []string{b.Path}, task.MissingOutputs([]task.Target{a, b}))
}

func TestGlobTarget(t *testing.T) {
	dir := t.TempDir()
	g, err := target.NewGlob(dir, "shards/*.parquet", 2)
	require.NoError(t, err)
	assert.False(t, g.Exists())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shards", "nested"), 0o755))
	for i, name := range []string{"shards/0.parquet", "shards/nested/1.parquet", "shards/readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(fmt.Sprint(i)), 0o644))
	}
	assert.False(t, g.Exists(), "'*' must not cross directories")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shards", "2.parquet"), nil, 0o644))
	assert.True(t, g.Exists())

	require.NoError(t, g.Remove())
	assert.False(t, g.Exists())
	_, err = os.Stat(filepath.Join(dir, "shards", "readme.txt"))
	assert.NoError(t, err, "non-matching files are kept")
}

type fakeStore map[string]bool

func (f fakeStore) Has(key string) (bool, error) {
	if key == "broken" {
		return false, errors.New("io error")
	}
	return f[key], nil
}

func TestKeyTarget(t *testing.T) {
	store := fakeStore{"q/1": true}
	assert.True(t, (&target.KeyTarget{Store: store, Key: "q/1"}).Exists())
	assert.False(t, (&target.KeyTarget{Store: store, Key: "q/2"}).Exists())
	assert.False(t, (&target.KeyTarget{Store: store, Key: "broken"}).Exists())
	assert.False(t, (&target.KeyTarget{Key: "q/1"}).Exists())
	assert.Equal(t, "questions:q/1", (&target.KeyTarget{Store: store, Key: "q/1", Name: "questions"}).String())
}
