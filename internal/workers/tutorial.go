package workers

import (
	"context"

	"repolens/internal/artifact"
	"repolens/internal/prompt"
)

var tutorialPromptSpec = prompt.ApplyPresets(prompt.Spec{
	Purpose:      "Write an onboarding tutorial that walks a newcomer through the critical paths of a repository.",
	Background:   "Role, when present, is the reader's job (e.g. backend engineer, reviewer); tailor depth and vocabulary to it.",
	OutputFields: prompt.MustFieldsOf(artifact.Tutorial{}),
	Constraints: []string{
		"Between 3 and 8 steps.",
		"Step files must come from the critical paths.",
	},
	Rules: []string{
		"Start from the entry of the most important critical path.",
	},
	OutputFormat: "JSON only.",
	Language:     "English",
}, prompt.PresetStrictJSON(), prompt.PresetNoInvent())

type TutorialWorker struct {
	LLM Generator
}

func (w *TutorialWorker) Run(ctx context.Context, in artifact.TutorialIn) (artifact.Tutorial, error) {
	fallback := defaultTutorial(in)
	out, err := generate(ctx, w.LLM, "tutorial", tutorialPromptSpec, in, fallback)
	if err != nil {
		return artifact.Tutorial{}, err
	}
	if out.Audience == "" {
		out.Audience = fallback.Audience
	}
	return normalizeTutorial(out), nil
}

// defaultTutorial turns each critical path into one reading step.
func defaultTutorial(in artifact.TutorialIn) artifact.Tutorial {
	audience := in.Role
	if audience == "" {
		audience = "new contributors"
	}
	t := artifact.Tutorial{
		Title:    "Getting started with " + in.Repo,
		Audience: audience,
	}
	if in.Metadata.Description != "" {
		t.Steps = append(t.Steps, artifact.TutorialStep{Title: "What it does", Description: in.Metadata.Description})
	}
	for _, cp := range in.CriticalPaths {
		files := cp.Files
		if len(files) > maxPromptFiles {
			files = files[:maxPromptFiles]
		}
		t.Steps = append(t.Steps, artifact.TutorialStep{
			Title:       cp.Name,
			Description: cp.Description,
			Files:       append([]string(nil), files...),
		})
	}
	return normalizeTutorial(t)
}

func normalizeTutorial(t artifact.Tutorial) artifact.Tutorial {
	if t.Steps == nil {
		t.Steps = []artifact.TutorialStep{}
	}
	return t
}
