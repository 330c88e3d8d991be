// Package catalog assembles every pipeline family into the registries used
// by the command line.
package catalog

import (
	"github.com/gxo-labs/taskgraph/internal/pipeline"
	"github.com/gxo-labs/taskgraph/internal/pipeline/expo"
	"github.com/gxo-labs/taskgraph/internal/pipeline/guesser"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/hooks"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/plugin"
)

// RegisterAll registers the task families in tasks and the built-in
// guessers in guessers.
func RegisterAll(tasks, guessers plugin.Registry, env *pipeline.Env) error {
	if err := pipeline.Register(tasks, env); err != nil {
		return err
	}
	if err := expo.Register(tasks, env); err != nil {
		return err
	}
	if err := guesser.RegisterBuiltins(guessers, env); err != nil {
		return err
	}
	return guesser.RegisterTasks(tasks, guessers, env)
}

// RegisterFailureHooks fills h with the failure hooks of every family.
func RegisterFailureHooks(h *hooks.Registry, env *pipeline.Env) {
	expo.RegisterFailureHooks(h)
	guesser.RegisterFailureHooks(h, env)
}
