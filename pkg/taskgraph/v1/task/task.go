// Package task defines the public model of the engine: tasks, their declared
// outputs (targets), and the explicit result of running a task body.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies how the scheduler treats a task.
type Kind int

const (
	// KindRegular tasks produce their outputs by running their body.
	KindRegular Kind = iota
	// KindExternal tasks have outputs produced outside the engine. They are
	// never run; missing outputs are a configuration error.
	KindExternal
	// KindWrapper tasks declare no outputs and are satisfied once all of
	// their dependencies are satisfied.
	KindWrapper
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindExternal:
		return "external"
	case KindWrapper:
		return "wrapper"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Params holds the parameter values that identify one task instance.
// Values should be comparable scalars (string, int, float, bool).
type Params map[string]interface{}

// Task is a unit of work with identity parameters, declared dependencies,
// declared outputs, and a run body.
//
// Requires and Output must be pure: they may be called more than once and
// from any goroutine. Run is called at most once per scheduling pass.
type Task interface {
	// Family returns the task type name, e.g. "GenerateExpo".
	Family() string
	// Params returns the identity parameters of this instance.
	Params() Params
	// Kind reports how the scheduler treats the task.
	Kind() Kind
	// Requires returns the direct dependencies. An error is treated as a
	// configuration error for the whole graph.
	Requires() ([]Task, error)
	// Output returns the declared outputs.
	Output() []Target
	// Run executes the task body.
	Run(ctx context.Context) Result
}

// ID returns the canonical identity key of t: the family followed by its
// parameters sorted by name, e.g. "GenerateExpo(fold=test, weight=16)".
// Two instances with the same family and parameter values share an ID.
func ID(t Task) string {
	params := t.Params()
	if len(params) == 0 {
		return t.Family()
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return fmt.Sprintf("%s(%s)", t.Family(), strings.Join(parts, ", "))
}

// Target is a declared output whose existence can be checked.
// Exists must be side-effect free and safe for concurrent use.
type Target interface {
	Exists() bool
	String() string
}

// Remover is implemented by targets that can delete what they point at.
// Failure hooks use it to clear partial outputs.
type Remover interface {
	Remove() error
}

// OutputsExist reports whether every target exists, stopping at the first
// missing one. An empty list is never complete by existence.
func OutputsExist(targets []Target) bool {
	if len(targets) == 0 {
		return false
	}
	for _, t := range targets {
		if !t.Exists() {
			return false
		}
	}
	return true
}

// MissingOutputs returns the locators of the targets that do not exist.
func MissingOutputs(targets []Target) []string {
	var missing []string
	for _, t := range targets {
		if !t.Exists() {
			missing = append(missing, t.String())
		}
	}
	return missing
}

// ErrExternalRun is returned by the run body of external tasks.
var ErrExternalRun = errors.New("external task outputs cannot be produced by the engine")

// Base provides defaults for regular tasks: no dependencies and no outputs.
// Embedders override the methods they need.
type Base struct{}

func (Base) Kind() Kind                { return KindRegular }
func (Base) Params() Params            { return nil }
func (Base) Requires() ([]Task, error) { return nil, nil }
func (Base) Output() []Target          { return nil }

// External provides the defaults of an external task.
type External struct{}

func (External) Kind() Kind                 { return KindExternal }
func (External) Params() Params             { return nil }
func (External) Requires() ([]Task, error)  { return nil, nil }
func (External) Run(context.Context) Result { return Failure(ErrExternalRun) }

// Wrapper provides the defaults of a wrapper task: no outputs, empty body.
type Wrapper struct{}

func (Wrapper) Kind() Kind                 { return KindWrapper }
func (Wrapper) Params() Params             { return nil }
func (Wrapper) Output() []Target           { return nil }
func (Wrapper) Run(context.Context) Result { return Success() }
