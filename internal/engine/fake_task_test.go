package engine_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// memTarget is an output that exists once something marks it.
type memTarget struct {
	name   string
	exists atomic.Bool
}

func newTarget(name string, exists bool) *memTarget {
	t := &memTarget{name: name}
	t.exists.Store(exists)
	return t
}

func (t *memTarget) Exists() bool   { return t.exists.Load() }
func (t *memTarget) String() string { return "mem://" + t.name }
func (t *memTarget) Remove() error {
	t.exists.Store(false)
	return nil
}

// fakeTask marks its outputs as existing when run, unless body is set.
type fakeTask struct {
	family string
	params task.Params
	kind   task.Kind
	deps   []task.Task
	outs   []task.Target
	body   func(ctx context.Context, self *fakeTask) task.Result
	runs   atomic.Int32
	trace  *runTrace
}

func (f *fakeTask) Family() string                 { return f.family }
func (f *fakeTask) Params() task.Params            { return f.params }
func (f *fakeTask) Kind() task.Kind                { return f.kind }
func (f *fakeTask) Requires() ([]task.Task, error) { return f.deps, nil }
func (f *fakeTask) Output() []task.Target          { return f.outs }

func (f *fakeTask) Run(ctx context.Context) task.Result {
	f.runs.Add(1)
	if f.trace != nil {
		f.trace.record(task.ID(f))
	}
	if f.body != nil {
		return f.body(ctx, f)
	}
	f.produce()
	return task.Success()
}

func (f *fakeTask) produce() {
	for _, o := range f.outs {
		if mt, ok := o.(*memTarget); ok {
			mt.exists.Store(true)
		}
	}
}

func regular(family string, deps ...task.Task) *fakeTask {
	return &fakeTask{
		family: family,
		kind:   task.KindRegular,
		deps:   deps,
		outs:   []task.Target{newTarget(family, false)},
	}
}

// runTrace records the order in which task bodies started.
type runTrace struct {
	mu    sync.Mutex
	order []string
}

func (r *runTrace) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
}

func (r *runTrace) index(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}
