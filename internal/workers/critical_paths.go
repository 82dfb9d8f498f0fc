package workers

import (
	"context"
	"fmt"
	"sort"

	"repolens/internal/artifact"
	"repolens/internal/prompt"
	"repolens/internal/source"
)

var criticalPathsPromptSpec = prompt.ApplyPresets(prompt.Spec{
	Purpose:      "Identify the critical code paths and change hotspots of a repository.",
	Background:   "Input holds the most frequently changed files, excerpts of the top files and lexical code facts (imports, patterns, complexity).",
	OutputFields: prompt.MustFieldsOf(artifact.CriticalPaths{}),
	Constraints: []string{
		"Every file in a critical path must appear in changedFiles, samples or facts.",
		"Return at most 5 critical paths and at most 10 hotspots.",
	},
	Rules: []string{
		"A path is critical when it is both central (imported or changed often) and complex.",
		"Order critical paths from most to least important.",
	},
	OutputFormat: "JSON only.",
	Language:     "English",
}, prompt.PresetStrictJSON(), prompt.PresetNoInvent(), prompt.PresetCautious())

type CriticalPathsWorker struct {
	LLM Generator
}

func (w *CriticalPathsWorker) Run(ctx context.Context, in artifact.CriticalPathsIn) (artifact.CriticalPaths, error) {
	fallback := defaultCriticalPaths(in)
	in.Samples = clipSamples(in.Samples)
	out, err := generate(ctx, w.LLM, "criticalPaths", criticalPathsPromptSpec, in, fallback)
	if err != nil {
		return artifact.CriticalPaths{}, err
	}
	return normalizeCriticalPaths(out), nil
}

// defaultCriticalPaths ranks the changed files by touches and complexity.
func defaultCriticalPaths(in artifact.CriticalPathsIn) artifact.CriticalPaths {
	type scored struct {
		path  string
		score int
		why   string
	}
	var rows []scored
	for _, c := range in.ChangedFiles {
		m := in.Facts.Complexity[c.Path]
		rows = append(rows, scored{
			path:  c.Path,
			score: c.ChangeCount*10 + m.Cyclomatic,
			why:   fmt.Sprintf("changed in %d recent commits, cyclomatic %d", c.ChangeCount, m.Cyclomatic),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].path < rows[j].path
	})

	out := artifact.CriticalPaths{}
	for i, r := range rows {
		if i < 10 {
			out.Hotspots = append(out.Hotspots, artifact.Hotspot{Path: r.path, Reason: r.why})
		}
	}
	if len(rows) > 0 {
		files := make([]string, 0, 3)
		for i := 0; i < len(rows) && i < 3; i++ {
			files = append(files, rows[i].path)
		}
		out.CriticalPaths = append(out.CriticalPaths, artifact.CriticalPath{
			Name:        "Most active code",
			Description: "Files with the most recent changes and highest branching.",
			Files:       files,
			Importance:  "high",
		})
	}
	return normalizeCriticalPaths(out)
}

func normalizeCriticalPaths(c artifact.CriticalPaths) artifact.CriticalPaths {
	if c.CriticalPaths == nil {
		c.CriticalPaths = []artifact.CriticalPath{}
	}
	if c.Hotspots == nil {
		c.Hotspots = []artifact.Hotspot{}
	}
	for i := range c.CriticalPaths {
		c.CriticalPaths[i].Files = nonNil(c.CriticalPaths[i].Files)
		switch c.CriticalPaths[i].Importance {
		case "high", "medium", "low":
		default:
			c.CriticalPaths[i].Importance = "medium"
		}
	}
	return c
}

func clipSamples(samples []artifact.FileSample) []artifact.FileSample {
	out := make([]artifact.FileSample, len(samples))
	for i, s := range samples {
		if len(s.Content) > maxSampleBytes {
			s.Content = source.TruncateUTF8(s.Content, maxSampleBytes) + "\n… (truncated)"
		}
		out[i] = s
	}
	return out
}
