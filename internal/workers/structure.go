package workers

import (
	"context"
	"path"
	"strings"

	"repolens/internal/artifact"
	"repolens/internal/prompt"
)

var structurePromptSpec = prompt.ApplyPresets(prompt.Spec{
	Purpose:      "Describe the architecture of a repository from its file tree and its most frequently changed files.",
	Background:   "The tree is depth-bounded. Entries ending in \"/…\" are directories that were not expanded (dependencies, build output).",
	OutputFields: prompt.MustFieldsOf(artifact.Structure{}),
	Constraints: []string{
		"Component paths and entry points must appear in the provided tree.",
		"Keep names and paths case-sensitive.",
	},
	Rules: []string{
		"Weigh frequently changed files when choosing components.",
		"Name a framework only when a file in the tree shows it.",
	},
	OutputFormat: "JSON only.",
	Language:     "English",
}, prompt.PresetStrictJSON(), prompt.PresetNoInvent(), prompt.PresetCautious())

// StructureWorker produces the architecture overview.
type StructureWorker struct {
	LLM Generator
}

func (w *StructureWorker) Run(ctx context.Context, in artifact.StructureIn) (artifact.Structure, error) {
	in.Tree = truncateTree(in.Tree)
	out, err := generate(ctx, w.LLM, "structure", structurePromptSpec, in, defaultStructure(in))
	if err != nil {
		return artifact.Structure{}, err
	}
	return normalizeStructure(out), nil
}

// defaultStructure lists the top-level directories as components and any
// conventional entry files found in the tree.
func defaultStructure(in artifact.StructureIn) artifact.Structure {
	out := artifact.Structure{
		Architecture: "unknown",
		Summary:      "Structure of " + in.Repo + " derived from its file tree.",
	}
	for _, d := range topLevelDirs(in.Tree) {
		out.Components = append(out.Components, artifact.Component{Name: d, Path: d})
	}
	for _, p := range in.Tree {
		switch strings.TrimSuffix(path.Base(p), path.Ext(p)) {
		case "main", "index", "app", "server", "__main__":
			if !strings.HasSuffix(p, "/") {
				out.EntryPoints = append(out.EntryPoints, p)
			}
		}
	}
	return normalizeStructure(out)
}

func normalizeStructure(s artifact.Structure) artifact.Structure {
	if s.Components == nil {
		s.Components = []artifact.Component{}
	}
	s.EntryPoints = nonNil(s.EntryPoints)
	s.TechStack = nonNil(s.TechStack)
	return s
}
