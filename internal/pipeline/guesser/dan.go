package guesser

import (
	"github.com/gxo-labs/taskgraph/internal/config"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// FamilyAllDAN groups the DAN training chain.
const FamilyAllDAN = "AllDAN"

// upstream maps each DAN step to the step it consumes.
var upstream = map[string]string{
	config.StepFormatDan:          config.StepPreprocess,
	config.StepLoadEmbeddings:     config.StepFormatDan,
	config.StepTrainDAN:           config.StepLoadEmbeddings,
	config.StepComputeDANOutput:   config.StepTrainDAN,
	config.StepTrainClassifier:    config.StepComputeDANOutput,
	config.StepEvaluateClassifier: config.StepTrainClassifier,
}

// NewStep builds a DAN chain step with its upstream steps. CreateGuesses is
// built by NewCreateGuesses instead.
func NewStep(env *pipeline.Env, family string) (*pipeline.CommandTask, error) {
	var deps []task.Task
	if up, ok := upstream[family]; ok {
		dep, err := NewStep(env, up)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return pipeline.NewCommandTask(env, family, deps)
}

// AllDAN is satisfied once the classifier has been evaluated.
type AllDAN struct {
	task.Wrapper
	env *pipeline.Env
}

func NewAllDAN(env *pipeline.Env) *AllDAN {
	return &AllDAN{env: env}
}

func (*AllDAN) Family() string { return FamilyAllDAN }

func (a *AllDAN) Requires() ([]task.Task, error) {
	eval, err := NewStep(a.env, config.StepEvaluateClassifier)
	if err != nil {
		return nil, err
	}
	return []task.Task{eval}, nil
}

// NewCreateGuesses builds the guess database step. The guess database is
// always one of its outputs.
func NewCreateGuesses(env *pipeline.Env) (*pipeline.CommandTask, error) {
	return pipeline.NewCommandTask(env, config.StepCreateGuesses,
		[]task.Task{NewAllDAN(env)}, target.NewLocal(env.Config.Paths.GuessDB))
}

// RemoveGuessDB returns the failure hook of CreateGuesses: a failed run
// never leaves a partial guess database behind.
func RemoveGuessDB(env *pipeline.Env) hooks.FailureHook {
	return func(task.Task, error) error {
		return target.NewLocal(env.Config.Paths.GuessDB).Remove()
	}
}
