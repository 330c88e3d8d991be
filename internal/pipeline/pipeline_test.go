package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/command"
	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/pipeline/pipelinetest"
	"github.com/gxo-labs/taskgraph/internal/questions"
	"github.com/gxo-labs/taskgraph/internal/registry"
	"github.com/gxo-labs/taskgraph/internal/secrets"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

func TestQuestionDatabase_Output(t *testing.T) {
	cfg := pipelinetest.Config(t)
	env := pipeline.NewEnv(cfg, nil)
	t.Cleanup(func() { _ = env.Close() })
	db := pipeline.NewQuestionDatabase(env)

	assert.Equal(t, task.KindExternal, db.Kind())
	assert.False(t, task.OutputsExist(db.Output()))
	assert.Len(t, task.MissingOutputs(db.Output()), 2)

	pipelinetest.SeedQuestions(t, cfg.Paths.QuestionDB, pipelinetest.QuestionsCSV)
	assert.True(t, task.OutputsExist(db.Output()))

	store, err := env.Questions()
	require.NoError(t, err)
	q, err := store.Get(3)
	require.NoError(t, err)
	assert.Equal(t, "Fjords, and more.", q.Text[0])
}

func TestQuestionDatabase_ExistenceCheckHasNoSideEffects(t *testing.T) {
	cfg := pipelinetest.Config(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.QuestionDB, 0o750))
	env := pipeline.NewEnv(cfg, nil)
	t.Cleanup(func() { _ = env.Close() })
	imported := pipeline.NewQuestionDatabase(env).Output()[1]

	assert.False(t, imported.Exists())
	assert.False(t, imported.Exists())
	entries, err := os.ReadDir(cfg.Paths.QuestionDB)
	require.NoError(t, err)
	assert.Empty(t, entries, "checking for questions must not create a database")

	pipelinetest.SeedQuestions(t, cfg.Paths.QuestionDB, pipelinetest.QuestionsCSV)
	assert.True(t, imported.Exists(), "an earlier miss must not be remembered")

	store, err := questions.Open(questions.DefaultConfig(cfg.Paths.QuestionDB))
	require.NoError(t, err, "checking for questions must not hold the database lock")
	require.NoError(t, store.Close())
}

func TestEnv_FoldPath(t *testing.T) {
	env := pipeline.NewEnv(pipelinetest.Config(t), nil)
	path, err := env.FoldPath("out/{{ .fold }}.{{ .weight }}.csv", "dev", 8)
	require.NoError(t, err)
	assert.Equal(t, "out/dev.8.csv", path)

	_, err = env.FoldPath("out/{{ .nope }}.csv", "dev", 8)
	assert.Error(t, err)
}

func TestCommandTask_RunsConfiguredCommand(t *testing.T) {
	cfg := pipelinetest.Config(t)
	out := filepath.Join(t.TempDir(), "vocab.txt")
	cfg.Steps = map[string]config.Step{
		config.StepFormatDan: {
			Command: "qanta-format-dan",
			Args:    []string{"--fold", "train"},
			Env:     map[string]string{"QB_ROOT": "/data"},
			Outputs: []string{out},
		},
	}
	runner := &pipelinetest.Runner{Script: func(command.Request) (*command.Result, error) {
		pipelinetest.WriteFile(t, out, "a\nb\n")
		return &command.Result{Stdout: "done\n"}, nil
	}}
	env := pipeline.NewEnv(cfg, nil, pipeline.WithRunner(runner))

	step, err := pipeline.NewCommandTask(env, config.StepFormatDan, nil)
	require.NoError(t, err)
	assert.Equal(t, "FormatDan", task.ID(step))
	assert.Equal(t, []string{out}, task.MissingOutputs(step.Output()))

	res := step.Run(context.Background())
	require.False(t, res.Failed(), "%v", res.Err())
	assert.True(t, task.OutputsExist(step.Output()))

	reqs := runner.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "qanta-format-dan", reqs[0].Command)
	assert.Equal(t, []string{"--fold", "train"}, reqs[0].Args)
	assert.Equal(t, map[string]string{"QB_ROOT": "/data", "TASKGRAPH_STEP": "FormatDan"}, reqs[0].Env)
}

func TestCommandTask_Failures(t *testing.T) {
	tests := map[string]struct {
		step    *config.Step
		script  func(command.Request) (*command.Result, error)
		wantErr string
	}{
		"not configured": {
			wantErr: "step Preprocess has no command configured",
		},
		"non-zero exit": {
			step: &config.Step{Command: "preprocess"},
			script: func(command.Request) (*command.Result, error) {
				return &command.Result{ExitCode: 3, Stderr: "bad corpus\n"}, nil
			},
			wantErr: "command exited with status 3: bad corpus",
		},
		"runner error": {
			step: &config.Step{Command: "preprocess"},
			script: func(command.Request) (*command.Result, error) {
				return &command.Result{ExitCode: -1}, errors.New("executable not found")
			},
			wantErr: "executable not found",
		},
		"invalid timeout": {
			step:    &config.Step{Command: "preprocess", Timeout: "soon"},
			wantErr: "invalid timeout",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := pipelinetest.Config(t)
			if tc.step != nil {
				cfg.Steps = map[string]config.Step{config.StepPreprocess: *tc.step}
			}
			env := pipeline.NewEnv(cfg, nil, pipeline.WithRunner(&pipelinetest.Runner{Script: tc.script}))
			step, err := pipeline.NewCommandTask(env, config.StepPreprocess, nil)
			require.NoError(t, err)

			res := step.Run(context.Background())
			require.True(t, res.Failed())
			assert.ErrorContains(t, res.Err(), tc.wantErr)
		})
	}
}

func TestCommandTask_Secrets(t *testing.T) {
	cfg := pipelinetest.Config(t)
	cfg.Steps = map[string]config.Step{
		config.StepLoadEmbeddings: {Command: "load-embeddings", Secrets: []string{"EMBEDDINGS_TOKEN"}},
	}
	runner := &pipelinetest.Runner{Script: func(req command.Request) (*command.Result, error) {
		return &command.Result{ExitCode: 1, Stderr: "401 for token " + req.Env["EMBEDDINGS_TOKEN"] + "\n"}, nil
	}}
	env := pipeline.NewEnv(cfg, nil,
		pipeline.WithRunner(runner),
		pipeline.WithSecrets(secrets.MapProvider{"EMBEDDINGS_TOKEN": "tok-123"}))
	step, err := pipeline.NewCommandTask(env, config.StepLoadEmbeddings, nil)
	require.NoError(t, err)

	res := step.Run(context.Background())
	require.True(t, res.Failed())
	assert.ErrorContains(t, res.Err(), "401 for token [REDACTED]")
	assert.NotContains(t, res.Err().Error(), "tok-123")
	assert.Equal(t, "tok-123", runner.Requests()[0].Env["EMBEDDINGS_TOKEN"])

	env.Secrets = secrets.MapProvider{}
	res = step.Run(context.Background())
	require.True(t, res.Failed())
	assert.ErrorContains(t, res.Err(), "secret EMBEDDINGS_TOKEN is not set")
	assert.Len(t, runner.Requests(), 1)
}

func TestCommandTask_ExtraOutputs(t *testing.T) {
	cfg := pipelinetest.Config(t)
	env := pipeline.NewEnv(cfg, nil)
	step, err := pipeline.NewCommandTask(env, config.StepCreateGuesses, nil, target.NewLocal(cfg.Paths.GuessDB))
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.Paths.GuessDB}, task.MissingOutputs(step.Output()))
}

func TestOutputTarget(t *testing.T) {
	local, err := pipeline.OutputTarget("out/dan/params.pkl")
	require.NoError(t, err)
	assert.IsType(t, &target.LocalTarget{}, local)

	g, err := pipeline.OutputTarget("out/dan/*.npz")
	require.NoError(t, err)
	glob, ok := g.(*target.GlobTarget)
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("out/dan"), glob.Dir)
	assert.Equal(t, "*.npz", glob.Pattern)

	g, err = pipeline.OutputTarget("**/*.vw")
	require.NoError(t, err)
	assert.Equal(t, ".", g.(*target.GlobTarget).Dir)

	_, err = pipeline.OutputTarget("out/[")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	tasks := registry.NewStaticRegistry()
	env := pipeline.NewEnv(pipelinetest.Config(t), nil)
	require.NoError(t, pipeline.Register(tasks, env))

	db, err := tasks.Resolve(pipeline.FamilyQuestionDatabase, nil)
	require.NoError(t, err)
	assert.Equal(t, "QuestionDatabase", task.ID(db))

	_, err = tasks.Resolve(pipeline.FamilyQuestionDatabase, task.Params{"fold": "dev"})
	assert.ErrorContains(t, err, "unknown parameter(s): fold")
}
