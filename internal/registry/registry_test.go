package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/taskgraph/internal/registry"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

type stubTask struct {
	task.Base
	family string
}

func (s *stubTask) Family() string                  { return s.family }
func (s *stubTask) Run(context.Context) task.Result { return task.Success() }

func factoryFor(name string) func(task.Params) (task.Task, error) {
	return func(task.Params) (task.Task, error) { return &stubTask{family: name}, nil }
}

func TestRegisterValidation(t *testing.T) {
	reg := registry.NewStaticRegistry()
	require.NoError(t, reg.Register("pkg.mod.ClassA", factoryFor("A")))

	var cfgErr *tgerrors.ConfigError
	assert.ErrorAs(t, reg.Register("", factoryFor("x")), &cfgErr)
	assert.ErrorAs(t, reg.Register("pkg.mod.ClassB", nil), &cfgErr)
	assert.ErrorAs(t, reg.Register("pkg.mod.ClassA", factoryFor("A")), &cfgErr)
	assert.Panics(t, func() { reg.MustRegister("pkg.mod.ClassA", factoryFor("A")) })
	assert.Equal(t, []string{"pkg.mod.ClassA"}, reg.List(), "rejected registrations leave the table unchanged")
}

func TestResolve(t *testing.T) {
	reg := registry.NewStaticRegistry()
	reg.MustRegister("pkg.mod.ClassB", factoryFor("B"))
	reg.MustRegister("pkg.mod.ClassA", factoryFor("A"))
	reg.MustRegister("broken", func(task.Params) (task.Task, error) { return nil, errors.New("bad params") })

	assert.Equal(t, []string{"broken", "pkg.mod.ClassA", "pkg.mod.ClassB"}, reg.List())

	tk, err := reg.Resolve("pkg.mod.ClassA", nil)
	require.NoError(t, err)
	assert.Equal(t, "A", tk.Family())

	_, err = reg.Resolve("pkg.mod.Missing", nil)
	var notFound *tgerrors.PluginNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "pkg.mod.Missing", notFound.Identifier)
	assert.Equal(t, reg.List(), notFound.Known)
	assert.Contains(t, err.Error(), "pkg.mod.Missing")
	assert.True(t, tgerrors.IsConfigError(err))

	_, err = reg.Resolve("broken", nil)
	assert.ErrorContains(t, err, "bad params")
	assert.True(t, tgerrors.IsConfigError(err))

	reg.MustRegister("empty", func(task.Params) (task.Task, error) { return nil, nil })
	_, err = reg.Resolve("empty", nil)
	assert.ErrorContains(t, err, "returned no task")
	assert.True(t, tgerrors.IsConfigError(err))
}

func TestSplitIdentifier(t *testing.T) {
	mod, class, err := registry.SplitIdentifier("qanta.guesser.frequency.FrequencyGuesser")
	require.NoError(t, err)
	assert.Equal(t, "qanta.guesser.frequency", mod)
	assert.Equal(t, "FrequencyGuesser", class)
	assert.Equal(t, "qanta.guesser.frequency.FrequencyGuesser", registry.JoinIdentifier(mod, class))

	for _, bad := range []string{"", "NoDot", ".Class", "module."} {
		_, _, err := registry.SplitIdentifier(bad)
		assert.Error(t, err, bad)
	}
}
