package target

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// GlobTarget is a set of files below Dir whose slash-separated relative paths
// match Pattern. It exists once at least Min files match.
type GlobTarget struct {
	Dir     string
	Pattern string
	Min     int

	g glob.Glob
}

var (
	_ task.Target  = (*GlobTarget)(nil)
	_ task.Remover = (*GlobTarget)(nil)
)

// NewGlob compiles pattern with '/' as the separator, so "*" stays within one
// directory and "**" crosses directories. A minFiles below 1 is treated as 1.
func NewGlob(dir, pattern string, minFiles int) (*GlobTarget, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	if minFiles < 1 {
		minFiles = 1
	}
	return &GlobTarget{Dir: dir, Pattern: pattern, Min: minFiles, g: g}, nil
}

// Matches returns the matching file paths in lexical order.
func (t *GlobTarget) Matches() ([]string, error) {
	var matches []string
	err := filepath.WalkDir(t.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(t.Dir, path)
		if err != nil {
			return err
		}
		if t.g.Match(filepath.ToSlash(rel)) {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}

func (t *GlobTarget) Exists() bool {
	if _, err := os.Stat(t.Dir); err != nil {
		return false
	}
	matches, err := t.Matches()
	return err == nil && len(matches) >= t.Min
}

func (t *GlobTarget) String() string {
	return filepath.Join(t.Dir, t.Pattern)
}

// Remove deletes every matching file.
func (t *GlobTarget) Remove() error {
	if _, err := os.Stat(t.Dir); os.IsNotExist(err) {
		return nil
	}
	matches, err := t.Matches()
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
