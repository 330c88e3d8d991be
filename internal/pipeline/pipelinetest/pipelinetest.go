// Package pipelinetest provides fixtures for testing pipeline families:
// a configuration rooted in a temporary directory, a seeded question
// database, a scripted command runner and a ready engine.
package pipelinetest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/command"
	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/engine"
	"github.com/gxo-labs/taskgraph/internal/logger"
	"github.com/gxo-labs/taskgraph/internal/questions"
	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
)

// QuestionsCSV is a small import file: two test questions and three train
// questions.
const QuestionsCSV = "qnum,fold,page,sentence,text\n" +
	"1,test,Paris,0,City of light.\n" +
	"1,test,Paris,1,Name it.\n" +
	"2,train,Rome,0,Eternal city.\n" +
	"3,test,Oslo,0,\"Fjords, and more.\"\n" +
	"4,train,Rome,0,Seven hills.\n" +
	"5,train,Oslo,0,Capital of Norway.\n"

// Config returns the default configuration with every path moved below a
// fresh temporary directory.
func Config(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	p := &cfg.Paths
	for _, path := range []*string{
		&p.QuestionDB, &p.GuessDB, &p.GuesserDir, &p.ExpoQuestions,
		&p.Pred, &p.Meta, &p.VWAudit, &p.ExpoBuzz, &p.ExpoFinal,
	} {
		*path = filepath.Join(dir, *path)
	}
	cfg.FilePath = filepath.Join(dir, "taskgraph.yaml")
	return &cfg
}

// SeedQuestions imports csvData into a new question database at path.
func SeedQuestions(t *testing.T, path, csvData string) {
	t.Helper()
	s, err := questions.Open(questions.DefaultConfig(path))
	require.NoError(t, err)
	_, err = s.ImportCSV(context.Background(), strings.NewReader(csvData), "questions.csv")
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// Engine returns an engine with two workers and discarded logs.
func Engine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.NewEngine(logger.NewLogger("error", "text", io.Discard), tg.WithWorkerPoolSize(2))
	require.NoError(t, err)
	return e
}

// Runner is a command.Runner that records requests and answers with Script.
// A nil Script succeeds with exit code 0.
type Runner struct {
	Script func(req command.Request) (*command.Result, error)

	mu       sync.Mutex
	requests []command.Request
}

var _ command.Runner = (*Runner)(nil)

func (r *Runner) Run(_ context.Context, req command.Request) (*command.Result, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.Script == nil {
		return &command.Result{}, nil
	}
	return r.Script(req)
}

// Requests returns the recorded requests in call order.
func (r *Runner) Requests() []command.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Request(nil), r.requests...)
}

// Steps returns the TASKGRAPH_STEP of every recorded request.
func (r *Runner) Steps() []string {
	var steps []string
	for _, req := range r.Requests() {
		steps = append(steps, req.Env["TASKGRAPH_STEP"])
	}
	return steps
}
