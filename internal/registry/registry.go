// Package registry implements plugin.Registry: an explicit table from string
// identifiers to task factories, filled in by the application at start-up.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/plugin"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// StaticRegistry implements plugin.Registry with a map filled at start-up.
// It is safe for concurrent registration and lookup.
type StaticRegistry struct {
	mu sync.RWMutex
	// factories maps a task family or plugin identifier to its factory.
	factories map[string]plugin.TaskFactory
}

var _ plugin.Registry = (*StaticRegistry)(nil)

// NewStaticRegistry creates an empty registry. Factories must be added with
// Register or MustRegister before they can be resolved.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{factories: make(map[string]plugin.TaskFactory)}
}

// Register associates name with factory. Names are task family names or
// dotted plugin identifiers. Blank names and nil factories are rejected with
// a ConfigError, as is a name that is already taken; the registry is left
// unchanged.
func (r *StaticRegistry) Register(name string, factory plugin.TaskFactory) error {
	if strings.TrimSpace(name) == "" {
		return tgerrors.NewConfigError("task registration error: name cannot be empty", nil)
	}
	if factory == nil {
		return tgerrors.NewConfigError(fmt.Sprintf("task registration error for '%s': factory cannot be nil", name), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return tgerrors.NewConfigError(fmt.Sprintf("task registration error: duplicate name '%s'", name), nil)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for start-up wiring, where a failure is a
// programming error. It panics on error.
func (r *StaticRegistry) MustRegister(name string, factory plugin.TaskFactory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Get returns the factory registered under name. An unknown name yields a
// PluginNotFoundError listing every registered name, so callers can report
// what was available.
func (r *StaticRegistry) Get(name string) (plugin.TaskFactory, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, tgerrors.NewPluginNotFoundError(name, r.List())
	}
	return factory, nil
}

// Resolve looks up name and calls its factory with params. Lookup failures are
// returned as from Get. Factory errors, and factories that return a nil task,
// become a ConfigError naming the identifier.
func (r *StaticRegistry) Resolve(name string, params task.Params) (task.Task, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	t, err := factory(params)
	if err != nil {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("cannot build task '%s'", name), err)
	}
	if t == nil {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("factory for '%s' returned no task", name), nil)
	}
	return t, nil
}

// List returns the registered names in sorted order.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitIdentifier splits a dotted plugin identifier on its last dot:
// "pkg.mod.ClassA" becomes ("pkg.mod", "ClassA"). Identifiers without a dot,
// or with an empty side, are rejected.
func SplitIdentifier(identifier string) (module, class string, err error) {
	i := strings.LastIndex(identifier, ".")
	if i <= 0 || i == len(identifier)-1 {
		return "", "", tgerrors.NewValidationError(
			fmt.Sprintf("identifier '%s' must have the form module.Class", identifier), nil)
	}
	return identifier[:i], identifier[i+1:], nil
}

// JoinIdentifier is the inverse of SplitIdentifier: it joins module and class
// with a dot and performs no validation.
func JoinIdentifier(module, class string) string {
	return module + "." + class
}
