// Package hooks holds the failure-hook table consulted by the scheduler when
// a task body fails. A Registry is built by the caller and passed to a single
// scheduling pass; there is no process-wide hook state.
package hooks

import (
	"fmt"
	"sync"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// FailureHook is invoked with the failed task instance and its error.
// A hook cannot change the outcome of the task: the original failure is
// always reported. An error returned by the hook is logged and attached to
// the pass report.
type FailureHook func(t task.Task, err error) error

// Registry maps task families to failure hooks.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string][]FailureHook
}

// NewRegistry creates an empty hook table.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string][]FailureHook)}
}

// OnFailure registers hook for every task whose Family equals family.
// Hooks for one family fire in registration order.
func (r *Registry) OnFailure(family string, hook FailureHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[family] = append(r.hooks[family], hook)
}

// Has reports whether any hook is registered for family.
func (r *Registry) Has(family string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[family]) > 0
}

// Fire runs every hook registered for the family of t and returns the hook
// errors. A panicking hook is reported as an error. A nil Registry fires
// nothing.
func (r *Registry) Fire(t task.Task, cause error) []error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	registered := append([]FailureHook(nil), r.hooks[t.Family()]...)
	r.mu.RUnlock()

	var errs []error
	for i, hook := range registered {
		if err := safeCall(hook, t, cause); err != nil {
			errs = append(errs, fmt.Errorf("failure hook %d for %s: %w", i, task.ID(t), err))
		}
	}
	return errs
}

func safeCall(hook FailureHook, t task.Task, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook(t, cause)
}

// RemoveOutputs is a FailureHook that deletes every declared output of the
// failed task that implements task.Remover.
func RemoveOutputs(t task.Task, _ error) error {
	for _, out := range t.Output() {
		rm, ok := out.(task.Remover)
		if !ok {
			continue
		}
		if err := rm.Remove(); err != nil {
			return fmt.Errorf("remove %s: %w", out, err)
		}
	}
	return nil
}
