package pipeline

import (
	"context"
	"fmt"
	"sort"
)

// Input is a source datum a task reads through Deps. Inputs are fetched once
// per session and shared by every task that declares them.
type Input string

const (
	InputMetadata     Input = "metadata"
	InputTree         Input = "tree"
	InputChangedFiles Input = "changedFiles"
	InputSamples      Input = "samples"
)

// TaskSpec declares what a task needs and how to compute it.
type TaskSpec struct {
	Name       TaskName
	Requires   []TaskName                                        // tasks whose outputs BuildInput reads
	Inputs     []Input                                           // source data BuildInput reads
	BuildInput func(ctx context.Context, deps Deps) (any, error) // gather the logical input
	Run        func(ctx context.Context, in any) (any, error)
	Downstream []TaskName // computed by NewRegistry
}

// Registry is a validated, acyclic set of task specs.
type Registry struct {
	specs map[TaskName]TaskSpec
	order []TaskName // dependencies before dependents
}

// NewRegistry checks that every requirement names a known task and that the
// graph has no cycle, and fills in Downstream.
func NewRegistry(specs ...TaskSpec) (*Registry, error) {
	merged := make(map[TaskName]TaskSpec, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("pipeline: task with empty name")
		}
		if s.BuildInput == nil || s.Run == nil {
			return nil, fmt.Errorf("pipeline: task %s has no BuildInput or Run", s.Name)
		}
		if _, dup := merged[s.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate task %s", s.Name)
		}
		s.Downstream = nil
		merged[s.Name] = s
	}

	downstream := make(map[TaskName][]TaskName)
	for name, s := range merged {
		for _, req := range s.Requires {
			if _, ok := merged[req]; !ok {
				return nil, fmt.Errorf("pipeline: task %s requires unknown task %s", name, req)
			}
			downstream[req] = append(downstream[req], name)
		}
	}
	for name, ds := range downstream {
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
		s := merged[name]
		s.Downstream = ds
		merged[name] = s
	}

	names := make([]TaskName, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	r := &Registry{specs: merged}
	done := make(map[TaskName]bool, len(merged))
	visiting := make(map[TaskName]bool)
	var visit func(TaskName) error
	visit = func(name TaskName) error {
		if done[name] {
			return nil
		}
		if visiting[name] {
			return fmt.Errorf("pipeline: cyclic task dependency detected at %s", name)
		}
		visiting[name] = true
		defer delete(visiting, name)
		for _, req := range merged[name].Requires {
			if err := visit(req); err != nil {
				return err
			}
		}
		done[name] = true
		r.order = append(r.order, name)
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Get(name TaskName) (TaskSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Tasks returns task names with every task after its requirements.
func (r *Registry) Tasks() []TaskName {
	return append([]TaskName(nil), r.order...)
}

// Dependents returns every task that transitively requires name.
func (r *Registry) Dependents(name TaskName) []TaskName {
	seen := map[TaskName]bool{}
	var out []TaskName
	var walk func(TaskName)
	walk = func(n TaskName) {
		for _, d := range r.specs[n].Downstream {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
				walk(d)
			}
		}
	}
	walk(name)
	return out
}
