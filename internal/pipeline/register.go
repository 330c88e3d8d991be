package pipeline

import (
	"github.com/gxo-labs/taskgraph/internal/paramutil"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/plugin"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// Register adds the families of this package to tasks.
func Register(tasks plugin.Registry, env *Env) error {
	return tasks.Register(FamilyQuestionDatabase, NoParams(func() (task.Task, error) {
		return NewQuestionDatabase(env), nil
	}))
}

// NoParams adapts a constructor for a family that takes no parameters.
func NoParams(build func() (task.Task, error)) plugin.TaskFactory {
	return func(params task.Params) (task.Task, error) {
		if err := paramutil.CheckAllowed(params); err != nil {
			return nil, err
		}
		return build()
	}
}
