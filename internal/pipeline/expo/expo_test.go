package expo_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/pipeline/expo"
	"github.com/gxo-labs/taskgraph/internal/pipeline/pipelinetest"
	"github.com/gxo-labs/taskgraph/internal/registry"
	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

const (
	predFixture  = "-0.5 t\n-1.0 t\n0.7 t\n-0.2 t\n-0.3\n-0.9\n"
	metaFixture  = "1\t0\t0\tParis\n1\t0\t0\tLondon\n1\t0\t1\tParis\n1\t0\t1\tLondon\n2\t0\t0\tRome\n2\t0\t0\tOslo\n"
	auditFixture = "1_0_0\tf:1:2.0:3.0\n1_0_1\tf:1:1.0:0.5 g:2:2:2\n2_0_0\t\n"
)

type fixture struct {
	cfg   *config.Config
	env   *pipeline.Env
	tasks *registry.StaticRegistry
	hooks *hooks.Registry

	pred, meta, audit, buzz, final string
}

// newFixture seeds the question database and the scoring outputs of fold
// test, weight 16.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := pipelinetest.Config(t)
	pipelinetest.SeedQuestions(t, cfg.Paths.QuestionDB, pipelinetest.QuestionsCSV)
	env := pipeline.NewEnv(cfg, nil)
	t.Cleanup(func() { _ = env.Close() })

	f := &fixture{cfg: cfg, env: env, tasks: registry.NewStaticRegistry(), hooks: hooks.NewRegistry()}
	require.NoError(t, pipeline.Register(f.tasks, env))
	require.NoError(t, expo.Register(f.tasks, env))
	expo.RegisterFailureHooks(f.hooks)

	for dst, tmpl := range map[*string]string{
		&f.pred:  cfg.Paths.Pred,
		&f.meta:  cfg.Paths.Meta,
		&f.audit: cfg.Paths.VWAudit,
		&f.buzz:  cfg.Paths.ExpoBuzz,
		&f.final: cfg.Paths.ExpoFinal,
	} {
		path, err := env.FoldPath(tmpl, "test", 16)
		require.NoError(t, err)
		*dst = path
	}
	pipelinetest.WriteFile(t, f.pred, predFixture)
	pipelinetest.WriteFile(t, f.meta, metaFixture)
	pipelinetest.WriteFile(t, f.audit, auditFixture)
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

func TestAllExpo(t *testing.T) {
	f := newFixture(t)

	report, err := f.run(t, expo.FamilyAllExpo, nil)
	require.NoError(t, err)
	assert.Equal(t, tg.PassCompleted, report.OverallStatus)
	assert.Equal(t, 2, report.RunsInvoked)
	for _, id := range []string{
		"AllExpo",
		"CreateTestQuestions",
		"QuestionDatabase",
		"GenerateExpo(fold=test, weight=16)",
		"Prerequisites(fold=test, weight=16)",
	} {
		assert.Contains(t, report.TaskResults, id)
	}

	assert.Equal(t, "id,answer,sent,text\n"+
		"1,Paris,0,City of light.\n"+
		"1,Paris,1,Name it.\n"+
		"3,Oslo,0,\"Fjords, and more.\"\n",
		pipelinetest.ReadFile(t, f.cfg.Paths.ExpoQuestions))

	assert.Equal(t, strings.Join([]string{
		"question,sentence,word,page,evidence,final,weight",
		"1,0,0,Paris,f:1:6.0,0,-0.5",
		"1,0,0,London,f:1:6.0,0,-1.0",
		"1,0,1,Paris,f:1:0.5 g:2:4.0,1,0.7",
		"1,0,1,London,f:1:0.5 g:2:4.0,0,-0.2",
		"2,0,0,Rome,,0,-0.3",
		"2,0,0,Oslo,,0,-0.9",
	}, "\n")+"\n", pipelinetest.ReadFile(t, f.buzz))
	assert.Equal(t, "question,answer\n1,Paris\n2,Rome\n", pipelinetest.ReadFile(t, f.final))

	report, err = f.run(t, expo.FamilyAllExpo, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RunsInvoked)
}

func TestGenerateExpo_MissingPrerequisitesIsConfigError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.meta))

	report, err := f.run(t, expo.FamilyGenerateExpo, task.Params{"fold": "test", "weight": "16"})
	require.Error(t, err)
	assert.True(t, tgerrors.IsConfigError(err))

	var missing *tgerrors.MissingExternalOutputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{f.meta}, missing.Missing["Prerequisites(fold=test, weight=16)"])
	assert.Equal(t, 0, report.RunsInvoked)
	assert.NoFileExists(t, f.buzz)
}

func TestGenerateExpo_FailureLeavesNoExports(t *testing.T) {
	f := newFixture(t)
	pipelinetest.WriteFile(t, f.audit, "1_0_0\tf:1:2.0:3.0\n")

	report, err := f.run(t, expo.FamilyGenerateExpo, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no audit entry for position 1_0_1")

	result := report.TaskResults["GenerateExpo(fold=test, weight=16)"]
	assert.Equal(t, "Failed", result.Status)
	assert.Empty(t, result.HookErrors)
	assert.NoFileExists(t, f.buzz)
	assert.NoFileExists(t, f.final)
}

func TestCreateTestQuestions_MissingSentence(t *testing.T) {
	cfg := pipelinetest.Config(t)
	pipelinetest.SeedQuestions(t, cfg.Paths.QuestionDB, "qnum,fold,page,sentence,text\n7,test,Lima,0,a\n7,test,Lima,2,c\n")
	env := pipeline.NewEnv(cfg, nil)
	t.Cleanup(func() { _ = env.Close() })

	res := expo.NewCreateTestQuestions(env).Run(context.Background())
	require.True(t, res.Failed())
	assert.ErrorContains(t, res.Err(), "question 7 has no sentence 1")
	assert.NoFileExists(t, cfg.Paths.ExpoQuestions)
}

func TestRegister_FoldAndWeight(t *testing.T) {
	f := newFixture(t)

	gen, err := f.tasks.Resolve(expo.FamilyGenerateExpo, task.Params{"fold": "dev", "weight": "8"})
	require.NoError(t, err)
	assert.Equal(t, "GenerateExpo(fold=dev, weight=8)", task.ID(gen))

	gen, err = f.tasks.Resolve(expo.FamilyGenerateExpo, nil)
	require.NoError(t, err)
	assert.Equal(t, "GenerateExpo(fold=test, weight=16)", task.ID(gen))

	pre, err := f.tasks.Resolve(expo.FamilyPrerequisites, task.Params{"fold": "dev"})
	require.NoError(t, err)
	assert.Equal(t, task.KindExternal, pre.Kind())

	_, err = f.tasks.Resolve(expo.FamilyGenerateExpo, task.Params{"weight": "heavy"})
	assert.True(t, tgerrors.IsConfigError(err))
	_, err = f.tasks.Resolve(expo.FamilyAllExpo, task.Params{"fold": "dev"})
	assert.Error(t, err)
}
