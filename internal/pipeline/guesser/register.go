package guesser

import (
	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/paramutil"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/registry"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/plugin"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// RegisterBuiltins adds the guessers shipped with the module to guessers.
func RegisterBuiltins(guessers plugin.Registry, env *pipeline.Env) error {
	return Register(guessers, FrequencyIdentifier, env, NewFrequencyGuesser)
}

// RegisterTasks adds the guesser and DAN families to tasks. TrainGuesser
// takes "module" and "class" and resolves them through guessers.
func RegisterTasks(tasks, guessers plugin.Registry, env *pipeline.Env) error {
	steps := []string{
		config.StepPreprocess,
		config.StepFormatDan,
		config.StepLoadEmbeddings,
		config.StepTrainDAN,
		config.StepComputeDANOutput,
		config.StepTrainClassifier,
		config.StepEvaluateClassifier,
	}
	for _, family := range steps {
		if err := tasks.Register(family, pipeline.NoParams(func() (task.Task, error) {
			return NewStep(env, family)
		})); err != nil {
			return err
		}
	}

	others := []struct {
		family  string
		factory plugin.TaskFactory
	}{
		{FamilyAllDAN, pipeline.NoParams(func() (task.Task, error) {
			return NewAllDAN(env), nil
		})},
		{config.StepCreateGuesses, pipeline.NoParams(func() (task.Task, error) {
			return NewCreateGuesses(env)
		})},
		{FamilyAllGuessers, pipeline.NoParams(func() (task.Task, error) {
			return NewAllGuessers(env, guessers), nil
		})},
		{FamilyTrainGuesser, func(params task.Params) (task.Task, error) {
			if err := paramutil.CheckAllowed(params, "module", "class"); err != nil {
				return nil, err
			}
			module, err := paramutil.GetRequiredString(params, "module")
			if err != nil {
				return nil, err
			}
			class, err := paramutil.GetRequiredString(params, "class")
			if err != nil {
				return nil, err
			}
			return guessers.Resolve(registry.JoinIdentifier(module, class), nil)
		}},
	}
	for _, o := range others {
		if err := tasks.Register(o.family, o.factory); err != nil {
			return err
		}
	}
	return nil
}

func RegisterFailureHooks(h *hooks.Registry, env *pipeline.Env) {
	h.OnFailure(config.StepCreateGuesses, RemoveGuessDB(env))
}
