package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// --- Configuration class ---

// ConfigError represents an error encountered while loading the pipeline
// configuration, building the task graph, or validating engine options.
// A ConfigError aborts a pass before any task body runs.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that some input (pipeline structure, schema
// version, task parameters) failed validation checks.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// CycleError is returned when dependency resolution re-enters a task that is
// still on the resolution stack. Path holds the task IDs from the first
// occurrence of the repeated task to its second occurrence.
type CycleError struct {
	Path []string
}

func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}
func (e *CycleError) Error() string {
	return fmt.Sprintf("configuration error: dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// PluginNotFoundError indicates that an identifier could not be resolved to
// a registered task factory.
type PluginNotFoundError struct {
	Identifier string
	Known      []string
}

func NewPluginNotFoundError(identifier string, known []string) *PluginNotFoundError {
	return &PluginNotFoundError{Identifier: identifier, Known: known}
}
func (e *PluginNotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("configuration error: no task registered for identifier '%s'", e.Identifier)
	}
	return fmt.Sprintf("configuration error: no task registered for identifier '%s' (known: %s)",
		e.Identifier, strings.Join(e.Known, ", "))
}

// MissingExternalOutputError is raised by the pre-flight check when an
// external task, whose outputs the engine can never produce, has outputs
// that do not exist.
type MissingExternalOutputError struct {
	// Missing maps the external task ID to its missing output locators.
	Missing map[string][]string
}

func NewMissingExternalOutputError(missing map[string][]string) *MissingExternalOutputError {
	return &MissingExternalOutputError{Missing: missing}
}
func (e *MissingExternalOutputError) Error() string {
	ids := make([]string, 0, len(e.Missing))
	for id := range e.Missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s [%s]", id, strings.Join(e.Missing[id], ", ")))
	}
	return fmt.Sprintf("configuration error: external task outputs missing: %s", strings.Join(parts, "; "))
}

// IsConfigError reports whether err belongs to the configuration class:
// anything that must stop a pass before a task body runs.
func IsConfigError(err error) bool {
	var (
		cfgErr     *ConfigError
		valErr     *ValidationError
		cycleErr   *CycleError
		pluginErr  *PluginNotFoundError
		missingErr *MissingExternalOutputError
	)
	return errors.As(err, &cfgErr) ||
		errors.As(err, &valErr) ||
		errors.As(err, &cycleErr) ||
		errors.As(err, &pluginErr) ||
		errors.As(err, &missingErr)
}

// --- Execution class ---

// TaskExecutionError represents a failure returned (or panicked) by the body
// of a specific task.
type TaskExecutionError struct {
	TaskID string
	Cause  error
}

func NewTaskExecutionError(taskID string, cause error) *TaskExecutionError {
	return &TaskExecutionError{TaskID: taskID, Cause: cause}
}
func (e *TaskExecutionError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("task execution failed: %v", e.Cause)
	}
	return fmt.Sprintf("task '%s' execution failed: %v", e.TaskID, e.Cause)
}
func (e *TaskExecutionError) Unwrap() error { return e.Cause }

// ContractViolationError is reported when a task body returned success but
// at least one of its declared outputs still does not exist.
type ContractViolationError struct {
	TaskID  string
	Missing []string
}

func NewContractViolationError(taskID string, missing []string) *ContractViolationError {
	return &ContractViolationError{TaskID: taskID, Missing: missing}
}
func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("task '%s' finished without producing its outputs: %s",
		e.TaskID, strings.Join(e.Missing, ", "))
}

// MalformedInputError is returned by parsers of task inputs (prediction,
// meta and audit files) when a record does not have the expected shape.
type MalformedInputError struct {
	Source string
	Line   int
	Input  string
	Cause  error
}

func NewMalformedInputError(source string, line int, input string, cause error) *MalformedInputError {
	return &MalformedInputError{Source: source, Line: line, Input: input, Cause: cause}
}
func (e *MalformedInputError) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	if loc == "" {
		return fmt.Sprintf("malformed input %q: %v", e.Input, e.Cause)
	}
	return fmt.Sprintf("malformed input at %s %q: %v", loc, e.Input, e.Cause)
}
func (e *MalformedInputError) Unwrap() error { return e.Cause }

// PassError summarises a scheduling pass that left tasks failed or blocked.
// Failed maps task IDs to their errors; Blocked maps task IDs to the ID of
// the failed task that blocked them.
type PassError struct {
	Failed  map[string]error
	Blocked map[string]string
}

func (e *PassError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)

	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s) failed", len(e.Failed))
	if len(e.Blocked) > 0 {
		fmt.Fprintf(&b, ", %d blocked", len(e.Blocked))
	}
	for _, id := range failed {
		fmt.Fprintf(&b, "; %s: %v", id, e.Failed[id])
	}
	return b.String()
}

// Unwrap exposes every underlying failure to errors.Is and errors.As.
func (e *PassError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
