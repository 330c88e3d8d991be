// Package guesser trains the configured guessers and runs the DAN guess
// generation chain.
package guesser

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gxo-labs/taskgraph/internal/paramutil"
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/registry"
	"github.com/gxo-labs/taskgraph/internal/target"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/plugin"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

const (
	FamilyTrainGuesser = "TrainGuesser"
	FamilyAllGuessers  = "AllGuessers"
)

// Guesser is a trainable answer model.
type Guesser interface {
	// Requires returns the tasks whose outputs training reads.
	Requires() []task.Task
	Train(ctx context.Context) error
	// Save writes the trained model to path.
	Save(path string) error
}

// Constructor builds a fresh, untrained guesser.
type Constructor func(env *pipeline.Env) (Guesser, error)

// TrainGuesser trains one guesser and saves it under the guesser directory
// as "<module>.<class>".
type TrainGuesser struct {
	task.Base
	Module string
	Class  string

	guesser Guesser
	out     *target.LocalTarget
}

func NewTrainGuesser(env *pipeline.Env, module, class string, g Guesser) *TrainGuesser {
	return &TrainGuesser{
		Module:  module,
		Class:   class,
		guesser: g,
		out:     target.NewLocal(filepath.Join(env.Config.Paths.GuesserDir, registry.JoinIdentifier(module, class))),
	}
}

func (*TrainGuesser) Family() string { return FamilyTrainGuesser }

func (t *TrainGuesser) Params() task.Params {
	return task.Params{"module": t.Module, "class": t.Class}
}

func (t *TrainGuesser) Requires() ([]task.Task, error) { return t.guesser.Requires(), nil }
func (t *TrainGuesser) Output() []task.Target          { return []task.Target{t.out} }

func (t *TrainGuesser) Run(ctx context.Context) task.Result {
	if err := t.guesser.Train(ctx); err != nil {
		return task.Failure(fmt.Errorf("train %s: %w", registry.JoinIdentifier(t.Module, t.Class), err))
	}
	if err := t.guesser.Save(t.out.Path); err != nil {
		return task.Failure(fmt.Errorf("save %s: %w", registry.JoinIdentifier(t.Module, t.Class), err))
	}
	return task.Success()
}

// Register binds identifier ("module.Class") in the guesser registry to a
// factory building its TrainGuesser.
func Register(guessers plugin.Registry, identifier string, env *pipeline.Env, ctor Constructor) error {
	module, class, err := registry.SplitIdentifier(identifier)
	if err != nil {
		return err
	}
	return guessers.Register(identifier, func(params task.Params) (task.Task, error) {
		if err := paramutil.CheckAllowed(params); err != nil {
			return nil, err
		}
		g, err := ctor(env)
		if err != nil {
			return nil, err
		}
		return NewTrainGuesser(env, module, class, g), nil
	})
}

// AllGuessers trains every guesser listed in the configuration.
type AllGuessers struct {
	task.Wrapper
	env      *pipeline.Env
	guessers plugin.Registry
}

func NewAllGuessers(env *pipeline.Env, guessers plugin.Registry) *AllGuessers {
	return &AllGuessers{env: env, guessers: guessers}
}

func (*AllGuessers) Family() string { return FamilyAllGuessers }

// Requires fails with a PluginNotFoundError for an identifier that was
// never registered.
func (a *AllGuessers) Requires() ([]task.Task, error) {
	deps := make([]task.Task, 0, len(a.env.Config.Guessers))
	for _, id := range a.env.Config.Guessers {
		t, err := a.guessers.Resolve(id, nil)
		if err != nil {
			return nil, err
		}
		deps = append(deps, t)
	}
	return deps, nil
}
