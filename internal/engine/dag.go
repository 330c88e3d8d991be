package engine

import (
	"fmt"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// TaskStatus represents the execution status of a node within one pass.
type TaskStatus string

const (
	StatusPending   TaskStatus = "Pending"
	StatusRunning   TaskStatus = "Running"
	StatusSatisfied TaskStatus = "Satisfied"
	StatusCompleted TaskStatus = "Completed"
	StatusFailed    TaskStatus = "Failed"
	StatusBlocked   TaskStatus = "Blocked"
	StatusCancelled TaskStatus = "Cancelled"
)

// IsTerminal reports whether a node in this status will not change again
// during the pass.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusSatisfied, StatusCompleted, StatusFailed, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

// IsSuccess reports whether dependents of a node in this status may proceed.
func (s TaskStatus) IsSuccess() bool {
	return s == StatusSatisfied || s == StatusCompleted
}

// Node is one task instance in the graph. Equal identity keys share a node.
type Node struct {
	ID      string
	Task    task.Task
	Kind    task.Kind
	Outputs []task.Target

	// DependsOn keeps the order returned by Requires, without duplicates.
	DependsOn  []*Node
	RequiredBy []*Node
	IsRoot     bool
}

// DAG is the dependency graph reachable from a set of root tasks.
type DAG struct {
	Nodes map[string]*Node
	Roots []*Node
	order []*Node
}

// Order returns every node with dependencies before dependents. The order is
// deterministic for a given set of roots and Requires results.
func (d *DAG) Order() []*Node {
	return d.order
}

// Externals returns the external nodes in graph order.
func (d *DAG) Externals() []*Node {
	var ext []*Node
	for _, n := range d.order {
		if n.Kind == task.KindExternal {
			ext = append(ext, n)
		}
	}
	return ext
}

// BuildDAG resolves the requirements of every root recursively. Each task's
// Requires is called once per identity key. Re-entering a task that is still
// being resolved fails with a CycleError carrying the cycle path; a Requires
// error fails with a ConfigError naming the task.
func BuildDAG(roots []task.Task) (*DAG, error) {
	b := &dagBuilder{
		dag:     &DAG{Nodes: make(map[string]*Node)},
		onStack: make(map[string]int),
	}
	for _, root := range roots {
		if root == nil {
			return nil, tgerrors.NewConfigError("nil root task", nil)
		}
		n, err := b.visit(root)
		if err != nil {
			return nil, err
		}
		if !n.IsRoot {
			n.IsRoot = true
			b.dag.Roots = append(b.dag.Roots, n)
		}
	}
	return b.dag, nil
}

type dagBuilder struct {
	dag *DAG
	// stack holds the IDs being resolved; onStack maps an ID to its index.
	stack   []string
	onStack map[string]int
}

func (b *dagBuilder) visit(t task.Task) (*Node, error) {
	id := task.ID(t)
	if idx, ok := b.onStack[id]; ok {
		path := append(append([]string(nil), b.stack[idx:]...), id)
		return nil, tgerrors.NewCycleError(path)
	}
	if n, ok := b.dag.Nodes[id]; ok {
		return n, nil
	}

	b.onStack[id] = len(b.stack)
	b.stack = append(b.stack, id)
	defer func() {
		b.stack = b.stack[:len(b.stack)-1]
		delete(b.onStack, id)
	}()

	deps, err := t.Requires()
	if err != nil {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("cannot resolve requirements of '%s'", id), err)
	}

	node := &Node{
		ID:      id,
		Task:    t,
		Kind:    t.Kind(),
		Outputs: t.Output(),
	}
	if node.Kind == task.KindWrapper && len(node.Outputs) > 0 {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("wrapper task '%s' must not declare outputs", id), nil)
	}
	if node.Kind == task.KindExternal && len(node.Outputs) == 0 {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("external task '%s' declares no outputs", id), nil)
	}

	seen := make(map[string]bool, len(deps))
	for i, dep := range deps {
		if dep == nil {
			return nil, tgerrors.NewConfigError(fmt.Sprintf("task '%s' returned a nil requirement at index %d", id, i), nil)
		}
		depNode, err := b.visit(dep)
		if err != nil {
			return nil, err
		}
		if seen[depNode.ID] {
			continue
		}
		seen[depNode.ID] = true
		node.DependsOn = append(node.DependsOn, depNode)
		depNode.RequiredBy = append(depNode.RequiredBy, node)
	}

	b.dag.Nodes[id] = node
	b.dag.order = append(b.dag.order, node)
	return node, nil
}
