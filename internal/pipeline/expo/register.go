package expo

import (
	"github.com/gxo-labs/taskgraph/internal/paramutil"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/plugin"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// Register adds the expo families to tasks. Fold and weight parameters
// default to the configured expo fold and weight.
func Register(tasks plugin.Registry, env *pipeline.Env) error {
	foldWeight := func(params task.Params) (string, int, error) {
		if err := paramutil.CheckAllowed(params, "fold", "weight"); err != nil {
			return "", 0, err
		}
		fold, ok, err := paramutil.GetOptionalString(params, "fold")
		if err != nil {
			return "", 0, err
		}
		if !ok {
			fold = env.Config.Expo.Fold
		}
		weight, err := paramutil.GetOptionalInt(params, "weight", env.Config.Expo.Weight)
		return fold, weight, err
	}

	factories := []struct {
		family  string
		factory plugin.TaskFactory
	}{
		{FamilyCreateTestQuestions, pipeline.NoParams(func() (task.Task, error) {
			return NewCreateTestQuestions(env), nil
		})},
		{FamilyPrerequisites, func(params task.Params) (task.Task, error) {
			fold, weight, err := foldWeight(params)
			if err != nil {
				return nil, err
			}
			return NewPrerequisites(env, fold, weight)
		}},
		{FamilyGenerateExpo, func(params task.Params) (task.Task, error) {
			fold, weight, err := foldWeight(params)
			if err != nil {
				return nil, err
			}
			return NewGenerateExpo(env, fold, weight)
		}},
		{FamilyAllExpo, pipeline.NoParams(func() (task.Task, error) {
			return NewAllExpo(env), nil
		})},
	}
	for _, f := range factories {
		if err := tasks.Register(f.family, f.factory); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFailureHooks clears half-written exports of a failed GenerateExpo.
func RegisterFailureHooks(h *hooks.Registry) {
	h.OnFailure(FamilyGenerateExpo, hooks.RemoveOutputs)
}
