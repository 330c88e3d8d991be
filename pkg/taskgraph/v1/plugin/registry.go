package plugin

import (
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// TaskFactory builds a task instance from its parameters. Factories must
// validate params and return a configuration error for bad input; they must
// not perform any work the task body is responsible for.
type TaskFactory func(params task.Params) (task.Task, error)

// Registry maps string identifiers (a task family, or a dotted plugin path
// such as "qanta.guesser.frequency.FrequencyGuesser") to task factories.
// It is populated explicitly at process start.
type Registry interface {
	// Get retrieves the factory registered under name.
	// It returns an errors.PluginNotFoundError if the name is not registered.
	Get(name string) (TaskFactory, error)

	// Register associates name with factory. It returns an error if the name
	// is empty, the factory is nil, or the name is already registered.
	Register(name string, factory TaskFactory) error

	// Resolve looks up name and invokes its factory with params.
	Resolve(name string, params task.Params) (task.Task, error)

	// List returns the registered names in sorted order.
	List() []string
}
