// Package target provides the task.Target implementations used by the
// pipelines: local files and directories, glob-matched file sets, and keys in
// an external store.
package target

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// LocalTarget is a file or directory on the local filesystem.
type LocalTarget struct {
	Path string
}

var (
	_ task.Target  = (*LocalTarget)(nil)
	_ task.Remover = (*LocalTarget)(nil)
)

func NewLocal(path string) *LocalTarget {
	return &LocalTarget{Path: path}
}

// Exists reports whether the path exists. Stat errors other than "not
// exist" also count as missing.
func (t *LocalTarget) Exists() bool {
	_, err := os.Stat(t.Path)
	return err == nil
}

func (t *LocalTarget) String() string { return t.Path }

// Remove deletes the path and anything below it. A missing path is not an
// error.
func (t *LocalTarget) Remove() error {
	if err := os.RemoveAll(t.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Write produces the file atomically: fn writes to a temporary file in the
// same directory which is renamed over Path only when fn and the flush
// succeed. On any error the temporary file is removed and Path is untouched.
func (t *LocalTarget) Write(fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(t.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", t.Path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", t.Path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = fn(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", t.Path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", t.Path, err)
	}
	if err = os.Rename(tmp.Name(), t.Path); err != nil {
		return fmt.Errorf("rename into %s: %w", t.Path, err)
	}
	return nil
}
