package pipeline

import (
	"context"
	"fmt"

	"repolens/internal/artifact"
)

// Deps is what BuildInput may read. Task outputs and source inputs are only
// reachable when the TaskSpec declares them in Requires or Inputs.
type Deps interface {
	Repo() artifact.RepositoryRef
	Role() string

	Metadata(ctx context.Context) (artifact.RepoMetadata, error)
	Tree(ctx context.Context) ([]artifact.TreeNode, error)
	ChangedFiles(ctx context.Context) ([]artifact.ChangedFile, error)
	Samples(ctx context.Context) ([]artifact.FileSample, error)

	// Output returns the value of a succeeded required task.
	Output(task TaskName) (any, error)
}

type depsImpl struct {
	task    TaskName
	ref     artifact.RepositoryRef
	role    string
	inputs  *sourceInputs
	outputs map[TaskName]any
	allowed map[Input]bool
}

func (d *depsImpl) Repo() artifact.RepositoryRef { return d.ref }
func (d *depsImpl) Role() string                 { return d.role }

func (d *depsImpl) check(in Input) error {
	if !d.allowed[in] {
		return fmt.Errorf("task %q read input %q but it is not declared in Inputs", d.task, in)
	}
	return nil
}

func (d *depsImpl) Metadata(ctx context.Context) (artifact.RepoMetadata, error) {
	if err := d.check(InputMetadata); err != nil {
		return artifact.RepoMetadata{}, err
	}
	return d.inputs.metadata(ctx)
}

func (d *depsImpl) Tree(ctx context.Context) ([]artifact.TreeNode, error) {
	if err := d.check(InputTree); err != nil {
		return nil, err
	}
	return d.inputs.tree(ctx)
}

func (d *depsImpl) ChangedFiles(ctx context.Context) ([]artifact.ChangedFile, error) {
	if err := d.check(InputChangedFiles); err != nil {
		return nil, err
	}
	return d.inputs.changedFiles(ctx)
}

func (d *depsImpl) Samples(ctx context.Context) ([]artifact.FileSample, error) {
	if err := d.check(InputSamples); err != nil {
		return nil, err
	}
	return d.inputs.samples(ctx)
}

func (d *depsImpl) Output(task TaskName) (any, error) {
	v, ok := d.outputs[task]
	if !ok {
		return nil, fmt.Errorf("task %q requested output of %q but it is not declared in Requires", d.task, task)
	}
	return v, nil
}

// Output is the typed form of Deps.Output.
func Output[T any](d Deps, task TaskName) (T, error) {
	var zero T
	v, err := d.Output(task)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("output of %q is %T, not %T", task, v, zero)
	}
	return out, nil
}
