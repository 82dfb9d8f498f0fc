package pipeline

import (
	"context"
	"fmt"

	"repolens/internal/artifact"
	"repolens/internal/workers"
)

// DefaultTasks is the analysis graph:
//
//	structure        <- tree, changed files
//	codeFacts        <- samples
//	criticalPaths    <- changed files, samples, codeFacts
//	dependencyGraph  <- tree, codeFacts
//	tutorial         <- metadata, criticalPaths
func DefaultTasks(gen workers.Generator) []TaskSpec {
	structure := &workers.StructureWorker{LLM: gen}
	critical := &workers.CriticalPathsWorker{LLM: gen}
	graph := &workers.DependencyGraphWorker{LLM: gen}
	tutorial := &workers.TutorialWorker{LLM: gen}

	return []TaskSpec{
		{
			Name:   TaskStructure,
			Inputs: []Input{InputTree, InputChangedFiles},
			BuildInput: func(ctx context.Context, deps Deps) (any, error) {
				tree, err := deps.Tree(ctx)
				if err != nil {
					return nil, err
				}
				changed, err := deps.ChangedFiles(ctx)
				if err != nil {
					return nil, err
				}
				return artifact.StructureIn{
					Repo:         deps.Repo().FullName(),
					Tree:         artifact.FlattenTree(tree),
					ChangedFiles: changed,
				}, nil
			},
			Run: func(ctx context.Context, in any) (any, error) {
				return structure.Run(ctx, in.(artifact.StructureIn))
			},
		},
		{
			Name:   TaskCodeFacts,
			Inputs: []Input{InputSamples},
			BuildInput: func(ctx context.Context, deps Deps) (any, error) {
				return deps.Samples(ctx)
			},
			Run: func(ctx context.Context, in any) (any, error) {
				return workers.CodeFactsWorker{}.Run(ctx, in.([]artifact.FileSample))
			},
		},
		{
			Name:     TaskCriticalPaths,
			Requires: []TaskName{TaskCodeFacts},
			Inputs:   []Input{InputChangedFiles, InputSamples},
			BuildInput: func(ctx context.Context, deps Deps) (any, error) {
				facts, err := Output[artifact.CodeFacts](deps, TaskCodeFacts)
				if err != nil {
					return nil, err
				}
				changed, err := deps.ChangedFiles(ctx)
				if err != nil {
					return nil, err
				}
				samples, err := deps.Samples(ctx)
				if err != nil {
					return nil, err
				}
				return artifact.CriticalPathsIn{
					Repo:         deps.Repo().FullName(),
					ChangedFiles: changed,
					Samples:      samples,
					Facts:        facts,
				}, nil
			},
			Run: func(ctx context.Context, in any) (any, error) {
				return critical.Run(ctx, in.(artifact.CriticalPathsIn))
			},
		},
		{
			Name:     TaskDependencyGraph,
			Requires: []TaskName{TaskCodeFacts},
			Inputs:   []Input{InputTree},
			BuildInput: func(ctx context.Context, deps Deps) (any, error) {
				facts, err := Output[artifact.CodeFacts](deps, TaskCodeFacts)
				if err != nil {
					return nil, err
				}
				tree, err := deps.Tree(ctx)
				if err != nil {
					return nil, err
				}
				return artifact.DependencyGraphIn{
					Repo:         deps.Repo().FullName(),
					Dependencies: facts.Dependencies,
					Tree:         artifact.FlattenTree(tree),
				}, nil
			},
			Run: func(ctx context.Context, in any) (any, error) {
				return graph.Run(ctx, in.(artifact.DependencyGraphIn))
			},
		},
		{
			Name:     TaskTutorial,
			Requires: []TaskName{TaskCriticalPaths},
			Inputs:   []Input{InputMetadata},
			BuildInput: func(ctx context.Context, deps Deps) (any, error) {
				cp, err := Output[artifact.CriticalPaths](deps, TaskCriticalPaths)
				if err != nil {
					return nil, err
				}
				md, err := deps.Metadata(ctx)
				if err != nil {
					return nil, err
				}
				return artifact.TutorialIn{
					Repo:          deps.Repo().FullName(),
					Role:          deps.Role(),
					Metadata:      md,
					CriticalPaths: cp.CriticalPaths,
				}, nil
			},
			Run: func(ctx context.Context, in any) (any, error) {
				return tutorial.Run(ctx, in.(artifact.TutorialIn))
			},
		},
	}
}

// MustDefaultRegistry builds the registry of DefaultTasks.
func MustDefaultRegistry(gen workers.Generator) *Registry {
	r, err := NewRegistry(DefaultTasks(gen)...)
	if err != nil {
		panic(fmt.Sprintf("pipeline: default registry: %v", err))
	}
	return r
}

// compose builds the composite document from succeeded task values.
func compose(doc *artifact.CompositeAnalysis, name TaskName, v any) {
	switch name {
	case TaskStructure:
		if x, ok := v.(artifact.Structure); ok {
			doc.Structure = &x
		}
	case TaskCodeFacts:
		if x, ok := v.(artifact.CodeFacts); ok {
			doc.CodeFacts = &x
		}
	case TaskCriticalPaths:
		if x, ok := v.(artifact.CriticalPaths); ok {
			doc.CriticalPaths = &x
		}
	case TaskDependencyGraph:
		if x, ok := v.(artifact.DependencyGraph); ok {
			doc.DependencyGraph = &x
		}
	case TaskTutorial:
		if x, ok := v.(artifact.Tutorial); ok {
			doc.Tutorial = &x
		}
	}
}

// decompose is the inverse of compose for a cached document.
func decompose(doc artifact.CompositeAnalysis) map[TaskName]any {
	out := make(map[TaskName]any)
	if doc.Structure != nil {
		out[TaskStructure] = *doc.Structure
	}
	if doc.CodeFacts != nil {
		out[TaskCodeFacts] = *doc.CodeFacts
	}
	if doc.CriticalPaths != nil {
		out[TaskCriticalPaths] = *doc.CriticalPaths
	}
	if doc.DependencyGraph != nil {
		out[TaskDependencyGraph] = *doc.DependencyGraph
	}
	if doc.Tutorial != nil {
		out[TaskTutorial] = *doc.Tutorial
	}
	return out
}
