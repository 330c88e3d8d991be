// Package pipeline holds what every pipeline task family shares: the
// environment built from a loaded configuration, the question database
// input, and command-backed steps.
package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/gxo-labs/taskgraph/internal/command"
	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/logger"
	"github.com/gxo-labs/taskgraph/internal/questions"
	"github.com/gxo-labs/taskgraph/internal/secrets"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/internal/template"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
)

// Env is shared by the tasks of one process. It is safe for concurrent use.
type Env struct {
	Config   *config.Config
	Renderer template.Renderer
	Runner   command.Runner
	Secrets  secrets.Provider
	Log      tglog.Logger

	qMu    sync.Mutex
	qStore *questions.Store
	qOwned bool
}

var _ target.KeyChecker = (*Env)(nil)

// EnvOption customises an Env.
type EnvOption func(*Env)

// WithRunner replaces the command runner used by command-backed steps.
func WithRunner(r command.Runner) EnvOption {
	return func(e *Env) { e.Runner = r }
}

// WithSecrets replaces where step secrets are looked up.
func WithSecrets(p secrets.Provider) EnvOption {
	return func(e *Env) { e.Secrets = p }
}

// WithQuestionStore makes the environment use an already opened store. The
// caller keeps ownership and Close does not close it.
func WithQuestionStore(s *questions.Store) EnvOption {
	return func(e *Env) { e.qStore = s }
}

// NewEnv builds the environment for cfg. A nil log discards task logs.
func NewEnv(cfg *config.Config, log tglog.Logger, opts ...EnvOption) *Env {
	if log == nil {
		log = logger.NewLogger("error", "text", io.Discard)
	}
	e := &Env{
		Config:   cfg,
		Renderer: template.NewGoRenderer(),
		Runner:   command.NewRunner(),
		Secrets:  secrets.NewEnvProvider(),
		Log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FoldPath renders a per-fold path template.
func (e *Env) FoldPath(tmpl, fold string, weight int) (string, error) {
	path, err := e.Renderer.Render(tmpl, map[string]interface{}{
		config.VarFold:   fold,
		config.VarWeight: weight,
	})
	if err != nil {
		return "", fmt.Errorf("render path for fold %s weight %d: %w", fold, weight, err)
	}
	return path, nil
}

// Questions opens the question database on first use and returns the same
// store afterwards. It never creates the database, and a failed open is
// retried on the next call.
func (e *Env) Questions() (*questions.Store, error) {
	e.qMu.Lock()
	defer e.qMu.Unlock()
	if e.qStore != nil {
		return e.qStore, nil
	}
	if _, err := os.Stat(e.Config.Paths.QuestionDB); err != nil {
		return nil, fmt.Errorf("question database: %w", err)
	}

	cfg := questions.DefaultConfig(e.Config.Paths.QuestionDB)
	cfg.SyncWrites = false
	cfg.Logger = e.slogger()
	s, err := questions.Open(cfg)
	if err != nil {
		return nil, err
	}
	e.qStore, e.qOwned = s, true
	return s, nil
}

// Has looks key up in the question database. It uses the store a task has
// already opened, and otherwise peeks at the database without creating or
// holding it.
func (e *Env) Has(key string) (bool, error) {
	e.qMu.Lock()
	s := e.qStore
	e.qMu.Unlock()
	if s != nil {
		return s.Has(key)
	}
	return questions.Peek(e.Config.Paths.QuestionDB, key, e.slogger())
}

func (e *Env) slogger() *slog.Logger {
	if e.Log == nil {
		return nil
	}
	return logger.Slog(e.Log)
}

// Close releases the question database when Env opened it.
func (e *Env) Close() error {
	e.qMu.Lock()
	defer e.qMu.Unlock()
	if e.qOwned && e.qStore != nil {
		return e.qStore.Close()
	}
	return nil
}
