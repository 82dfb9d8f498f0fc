package workers

import (
	"context"

	"repolens/internal/artifact"
	"repolens/internal/prompt"
)

var dependencyGraphPromptSpec = prompt.ApplyPresets(prompt.Spec{
	Purpose:      "Build a module-level dependency graph of a repository.",
	Background:   "Dependencies are import edges found by a lexical scan of sampled files; external=true marks third-party targets.",
	OutputFields: prompt.MustFieldsOf(artifact.DependencyGraph{}),
	Constraints: []string{
		"Every edge endpoint must be the id of a node in nodes.",
		"Group files into their module (directory) unless a file is an entry point.",
	},
	Rules: []string{
		"Use the tree to name modules that have no sampled imports.",
	},
	OutputFormat: "JSON only.",
	Language:     "English",
}, prompt.PresetStrictJSON(), prompt.PresetNoInvent())

type DependencyGraphWorker struct {
	LLM Generator
}

func (w *DependencyGraphWorker) Run(ctx context.Context, in artifact.DependencyGraphIn) (artifact.DependencyGraph, error) {
	fallback := defaultDependencyGraph(in)
	if len(in.Dependencies) > maxDependencyRows {
		in.Dependencies = in.Dependencies[:maxDependencyRows]
	}
	in.Tree = truncateTree(in.Tree)
	out, err := generate(ctx, w.LLM, "dependencyGraph", dependencyGraphPromptSpec, in, fallback)
	if err != nil {
		return artifact.DependencyGraph{}, err
	}
	return normalizeDependencyGraph(out), nil
}

// defaultDependencyGraph turns the import edges directly into a graph of files
// and external packages.
func defaultDependencyGraph(in artifact.DependencyGraphIn) artifact.DependencyGraph {
	g := artifact.DependencyGraph{}
	seen := map[string]bool{}
	addNode := func(id, kind string) {
		if seen[id] {
			return
		}
		seen[id] = true
		g.Nodes = append(g.Nodes, artifact.GraphNode{ID: id, Label: id, Kind: kind})
	}
	ext := map[string]bool{}
	for _, d := range in.Dependencies {
		addNode(d.From, "file")
		kind := "file"
		if d.External {
			kind = "external"
			if !ext[d.To] {
				ext[d.To] = true
				g.ExternalDependencies = append(g.ExternalDependencies, d.To)
			}
		}
		addNode(d.To, kind)
		g.Edges = append(g.Edges, artifact.GraphEdge{From: d.From, To: d.To, Kind: "imports"})
	}
	return normalizeDependencyGraph(g)
}

// normalizeDependencyGraph drops edges whose endpoints are not nodes.
func normalizeDependencyGraph(g artifact.DependencyGraph) artifact.DependencyGraph {
	if g.Nodes == nil {
		g.Nodes = []artifact.GraphNode{}
	}
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	edges := make([]artifact.GraphEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if ids[e.From] && ids[e.To] {
			edges = append(edges, e)
		}
	}
	g.Edges = edges
	g.ExternalDependencies = nonNil(g.ExternalDependencies)
	return g
}
