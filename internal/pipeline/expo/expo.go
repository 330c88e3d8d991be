// Package expo builds the exposition exports: the test question text and,
// for one fold and weight, the buzz and final answer CSVs.
package expo

import (
	"context"
	"fmt"
	"io"

	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/reporting"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

const (
	FamilyCreateTestQuestions = "CreateTestQuestions"
	FamilyPrerequisites       = "Prerequisites"
	FamilyGenerateExpo        = "GenerateExpo"
	FamilyAllExpo             = "AllExpo"
)

// TestFold is the fold whose questions are exported as text.
const TestFold = "test"

// CreateTestQuestions writes one CSV row per sentence of every test-fold
// question.
type CreateTestQuestions struct {
	task.Base
	env *pipeline.Env
}

func NewCreateTestQuestions(env *pipeline.Env) *CreateTestQuestions {
	return &CreateTestQuestions{env: env}
}

func (*CreateTestQuestions) Family() string { return FamilyCreateTestQuestions }

func (t *CreateTestQuestions) Requires() ([]task.Task, error) {
	return []task.Task{pipeline.NewQuestionDatabase(t.env)}, nil
}

func (t *CreateTestQuestions) Output() []task.Target {
	return []task.Target{target.NewLocal(t.env.Config.Paths.ExpoQuestions)}
}

func (t *CreateTestQuestions) Run(ctx context.Context) task.Result {
	store, err := t.env.Questions()
	if err != nil {
		return task.Failure(err)
	}
	all, err := store.All(ctx)
	if err != nil {
		return task.Failure(fmt.Errorf("read questions: %w", err))
	}

	out := target.NewLocal(t.env.Config.Paths.ExpoQuestions)
	err = out.Write(func(w io.Writer) error {
		cw, err := reporting.NewCSVWriter(w, reporting.ExpoQuestionsHeader)
		if err != nil {
			return err
		}
		for _, q := range all {
			if q.Fold != TestFold {
				continue
			}
			for i := 0; i <= q.MaxSentence(); i++ {
				text, ok := q.Text[i]
				if !ok {
					return fmt.Errorf("question %d has no sentence %d", q.QNum, i)
				}
				if err := cw.Write(q.QNum, q.Page, i, text); err != nil {
					return err
				}
			}
		}
		return cw.Flush()
	})
	return task.FromError(err)
}

// Prerequisites are the prediction and meta files of one fold and weight,
// produced by the scoring stage outside this pipeline.
type Prerequisites struct {
	task.External
	Fold    string
	Weight  int
	outputs []task.Target
}

func NewPrerequisites(env *pipeline.Env, fold string, weight int) (*Prerequisites, error) {
	pred, err := env.FoldPath(env.Config.Paths.Pred, fold, weight)
	if err != nil {
		return nil, err
	}
	meta, err := env.FoldPath(env.Config.Paths.Meta, fold, weight)
	if err != nil {
		return nil, err
	}
	return &Prerequisites{
		Fold:    fold,
		Weight:  weight,
		outputs: []task.Target{target.NewLocal(pred), target.NewLocal(meta)},
	}, nil
}

func (*Prerequisites) Family() string          { return FamilyPrerequisites }
func (p *Prerequisites) Params() task.Params   { return foldParams(p.Fold, p.Weight) }
func (p *Prerequisites) Output() []task.Target { return p.outputs }

// GenerateExpo writes the buzz and final exports of one fold and weight.
type GenerateExpo struct {
	task.Base
	Fold   string
	Weight int

	env          *pipeline.Env
	prerequisite *Prerequisites
	audit        string
	buzz         *target.LocalTarget
	final        *target.LocalTarget
}

func NewGenerateExpo(env *pipeline.Env, fold string, weight int) (*GenerateExpo, error) {
	pre, err := NewPrerequisites(env, fold, weight)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 3)
	for i, tmpl := range []string{env.Config.Paths.VWAudit, env.Config.Paths.ExpoBuzz, env.Config.Paths.ExpoFinal} {
		if paths[i], err = env.FoldPath(tmpl, fold, weight); err != nil {
			return nil, err
		}
	}
	return &GenerateExpo{
		Fold:         fold,
		Weight:       weight,
		env:          env,
		prerequisite: pre,
		audit:        paths[0],
		buzz:         target.NewLocal(paths[1]),
		final:        target.NewLocal(paths[2]),
	}, nil
}

func (*GenerateExpo) Family() string        { return FamilyGenerateExpo }
func (g *GenerateExpo) Params() task.Params { return foldParams(g.Fold, g.Weight) }

func (g *GenerateExpo) Requires() ([]task.Task, error) {
	return []task.Task{g.prerequisite}, nil
}

func (g *GenerateExpo) Output() []task.Target {
	return []task.Target{g.buzz, g.final}
}

func (g *GenerateExpo) Run(ctx context.Context) task.Result {
	pre := g.prerequisite.Output()
	data, err := reporting.LoadPredictions(pre[0].String(), pre[1].String())
	if err != nil {
		return task.Failure(err)
	}
	audit, err := reporting.LoadAudit(g.audit)
	if err != nil {
		return task.Failure(err)
	}
	if err := ctx.Err(); err != nil {
		return task.Failure(err)
	}
	g.env.Log.Debugf("Writing expo for %d question(s) of fold %s", len(data), g.Fold)

	err = g.buzz.Write(func(buzz io.Writer) error {
		return g.final.Write(func(final io.Writer) error {
			return reporting.WriteExpo(data, audit, buzz, final)
		})
	})
	return task.FromError(err)
}

// AllExpo builds the configured expo fold and the test question text.
type AllExpo struct {
	task.Wrapper
	env *pipeline.Env
}

func NewAllExpo(env *pipeline.Env) *AllExpo {
	return &AllExpo{env: env}
}

func (*AllExpo) Family() string { return FamilyAllExpo }

func (a *AllExpo) Requires() ([]task.Task, error) {
	gen, err := NewGenerateExpo(a.env, a.env.Config.Expo.Fold, a.env.Config.Expo.Weight)
	if err != nil {
		return nil, err
	}
	return []task.Task{gen, NewCreateTestQuestions(a.env)}, nil
}

func foldParams(fold string, weight int) task.Params {
	return task.Params{"fold": fold, "weight": weight}
}
