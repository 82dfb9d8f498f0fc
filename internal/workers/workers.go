// Package workers holds the computation behind each analysis task. LLM-backed
// workers render a prompt, send it through a Generator and decode the reply,
// degrading to a deterministic payload when the reply carries no usable JSON.
package workers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"repolens/internal/llm"
	"repolens/internal/prompt"
)

// Generator is the part of the generation gateway the workers need.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	maxTreeEntries    = 400
	maxSampleBytes    = 6000
	maxPromptFiles    = 40
	maxDependencyRows = 300
)

// generate renders spec with input, calls gen and decodes the reply into T,
// returning fallback when nothing in the reply decodes. Only a generator error
// is returned as an error.
func generate[T any](ctx context.Context, gen Generator, phase string, spec prompt.Spec, input any, fallback T) (T, error) {
	if gen == nil {
		return fallback, fmt.Errorf("%s: generator is nil", phase)
	}
	text, err := prompt.Render(spec, input)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", phase, err)
	}
	raw, err := gen.Generate(llm.WithPhase(ctx, phase), text)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", phase, err)
	}
	return llm.Extract(raw, fallback), nil
}

func truncateTree(paths []string) []string {
	if len(paths) <= maxTreeEntries {
		return paths
	}
	return append(append([]string(nil), paths[:maxTreeEntries]...), fmt.Sprintf("… %d more entries", len(paths)-maxTreeEntries))
}

func topLevelDirs(tree []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range tree {
		i := strings.Index(p, "/")
		if i <= 0 {
			continue
		}
		d := p[:i]
		if seen[d] || strings.HasPrefix(d, ".") {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
