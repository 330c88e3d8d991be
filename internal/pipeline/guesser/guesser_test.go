package guesser_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/command"
	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/pipeline/guesser"
	"github.com/gxo-labs/taskgraph/internal/pipeline/pipelinetest"
	"github.com/gxo-labs/taskgraph/internal/registry"
	"github.com/gxo-labs/taskgraph/internal/target"
	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// echoGuesser saves a fixed model and needs no inputs.
type echoGuesser struct {
	trained bool
}

func (*echoGuesser) Requires() []task.Task { return nil }

func (g *echoGuesser) Train(context.Context) error {
	g.trained = true
	return nil
}

func (g *echoGuesser) Save(path string) error {
	if !g.trained {
		return errors.New("not trained")
	}
	return target.NewLocal(path).Write(func(w io.Writer) error {
		_, err := io.WriteString(w, "echo\n")
		return err
	})
}

const echoIdentifier = "tests.fake.EchoGuesser"

type fixture struct {
	cfg      *config.Config
	env      *pipeline.Env
	runner   *pipelinetest.Runner
	tasks    *registry.StaticRegistry
	guessers *registry.StaticRegistry
	hooks    *hooks.Registry
}

func newFixture(t *testing.T, configure func(cfg *config.Config)) *fixture {
	t.Helper()
	cfg := pipelinetest.Config(t)
	pipelinetest.SeedQuestions(t, cfg.Paths.QuestionDB, pipelinetest.QuestionsCSV)
	if configure != nil {
		configure(cfg)
	}
	f := &fixture{
		cfg:      cfg,
		runner:   &pipelinetest.Runner{},
		tasks:    registry.NewStaticRegistry(),
		guessers: registry.NewStaticRegistry(),
		hooks:    hooks.NewRegistry(),
	}
	f.env = pipeline.NewEnv(cfg, nil, pipeline.WithRunner(f.runner))
	t.Cleanup(func() { _ = f.env.Close() })

	require.NoError(t, pipeline.Register(f.tasks, f.env))
	require.NoError(t, guesser.RegisterBuiltins(f.guessers, f.env))
	require.NoError(t, guesser.Register(f.guessers, echoIdentifier, f.env, func(*pipeline.Env) (guesser.Guesser, error) {
		return &echoGuesser{}, nil
	}))
	require.NoError(t, guesser.RegisterTasks(f.tasks, f.guessers, f.env))
	guesser.RegisterFailureHooks(f.hooks, f.env)
	return f
}

func (f *fixture) run(t *testing.T, family string, params task.Params) (*tg.ExecutionReport, error) {
	t.Helper()
	root, err := f.tasks.Resolve(family, params)
	require.NoError(t, err)
	return pipelinetest.Engine(t).Run(context.Background(), tg.RunRequest{
		Roots: []task.Task{root},
		Hooks: f.hooks,
	})
}

func TestAllGuessers_TrainsEveryConfiguredGuesser(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Guessers = []string{guesser.FrequencyIdentifier, echoIdentifier}
	})

	report, err := f.run(t, guesser.FamilyAllGuessers, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RunsInvoked)
	assert.Contains(t, report.TaskResults, "TrainGuesser(class=FrequencyGuesser, module=qanta.guesser.frequency)")
	assert.Contains(t, report.TaskResults, "TrainGuesser(class=EchoGuesser, module=tests.fake)")
	assert.Equal(t, "Satisfied", report.TaskResults["AllGuessers"].Status)

	assert.Equal(t, "echo\n", pipelinetest.ReadFile(t, filepath.Join(f.cfg.Paths.GuesserDir, echoIdentifier)))

	var model guesser.FrequencyModel
	require.NoError(t, json.Unmarshal(
		[]byte(pipelinetest.ReadFile(t, filepath.Join(f.cfg.Paths.GuesserDir, guesser.FrequencyIdentifier))), &model))
	assert.Equal(t, guesser.FrequencyModel{
		Fold: "train",
		Answers: []guesser.AnswerCount{
			{Page: "Rome", Count: 2},
			{Page: "Oslo", Count: 1},
		},
	}, model)

	report, err = f.run(t, guesser.FamilyAllGuessers, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RunsInvoked)
}

func TestAllGuessers_UnknownIdentifier(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Guessers = []string{"qanta.guesser.missing.NoSuchGuesser"}
	})

	report, err := f.run(t, guesser.FamilyAllGuessers, nil)
	require.Error(t, err)
	var notFound *tgerrors.PluginNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "qanta.guesser.missing.NoSuchGuesser", notFound.Identifier)
	assert.Contains(t, notFound.Known, guesser.FrequencyIdentifier)
	assert.True(t, tgerrors.IsConfigError(err))
	assert.Equal(t, 0, report.RunsInvoked)
}

func TestTrainGuesser_ResolvedFromModuleAndClass(t *testing.T) {
	f := newFixture(t, nil)

	tk, err := f.tasks.Resolve(guesser.FamilyTrainGuesser, task.Params{"module": "tests.fake", "class": "EchoGuesser"})
	require.NoError(t, err)
	assert.Equal(t, "TrainGuesser(class=EchoGuesser, module=tests.fake)", task.ID(tk))
	assert.Equal(t, []string{filepath.Join(f.cfg.Paths.GuesserDir, "tests.fake.EchoGuesser")}, task.MissingOutputs(tk.Output()))

	_, err = f.tasks.Resolve(guesser.FamilyTrainGuesser, task.Params{"module": "tests.fake"})
	assert.Error(t, err)
	_, err = f.tasks.Resolve(guesser.FamilyTrainGuesser, task.Params{"module": "tests.fake", "class": "Nope"})
	var notFound *tgerrors.PluginNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRegister_RejectsBadIdentifier(t *testing.T) {
	env := pipeline.NewEnv(pipelinetest.Config(t), nil)
	err := guesser.Register(registry.NewStaticRegistry(), "NoModule", env, guesser.NewFrequencyGuesser)
	var valErr *tgerrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

// danSteps configures every DAN step with one output file, and a runner
// that produces the outputs of the step it is asked to run.
func danSteps(t *testing.T, f *fixture, fail map[string]bool) {
	t.Helper()
	dir := t.TempDir()
	f.cfg.Steps = make(map[string]config.Step)
	for _, step := range config.KnownSteps {
		f.cfg.Steps[step] = config.Step{
			Command: "qanta-" + step,
			Outputs: []string{filepath.Join(dir, step+".done")},
		}
	}
	f.runner.Script = func(req command.Request) (*command.Result, error) {
		step := req.Env["TASKGRAPH_STEP"]
		for _, out := range f.cfg.Steps[step].Outputs {
			pipelinetest.WriteFile(t, out, "ok\n")
		}
		if step == config.StepCreateGuesses {
			pipelinetest.WriteFile(t, f.cfg.Paths.GuessDB, "partial\n")
		}
		if fail[step] {
			return &command.Result{ExitCode: 1, Stderr: "out of memory"}, nil
		}
		return &command.Result{}, nil
	}
}

func TestCreateGuesses_RunsDANChainInOrder(t *testing.T) {
	f := newFixture(t, nil)
	danSteps(t, f, nil)

	report, err := f.run(t, config.StepCreateGuesses, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Preprocess",
		"FormatDan",
		"LoadEmbeddings",
		"TrainDAN",
		"ComputeDANOutput",
		"TrainClassifier",
		"EvaluateClassifier",
		"CreateGuesses",
	}, f.runner.Steps())
	assert.Equal(t, 8, report.RunsInvoked)
	assert.Equal(t, "Satisfied", report.TaskResults[guesser.FamilyAllDAN].Status)
	assert.FileExists(t, f.cfg.Paths.GuessDB)
}

func TestCreateGuesses_FailureRemovesGuessDB(t *testing.T) {
	f := newFixture(t, nil)
	fail := map[string]bool{config.StepCreateGuesses: true}
	danSteps(t, f, fail)

	report, err := f.run(t, config.StepCreateGuesses, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "out of memory")
	assert.NoFileExists(t, f.cfg.Paths.GuessDB)
	assert.Equal(t, "Completed", report.TaskResults[config.StepEvaluateClassifier].Status)
	assert.Equal(t, "Failed", report.TaskResults[config.StepCreateGuesses].Status)
	assert.Empty(t, report.TaskResults[config.StepCreateGuesses].HookErrors)

	// Upstream outputs survive, so the retry only reruns CreateGuesses.
	delete(fail, config.StepCreateGuesses)
	report, err = f.run(t, config.StepCreateGuesses, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RunsInvoked)
	steps := f.runner.Steps()
	require.Len(t, steps, 9)
	assert.Equal(t, config.StepCreateGuesses, steps[8])
	assert.FileExists(t, f.cfg.Paths.GuessDB)
}
