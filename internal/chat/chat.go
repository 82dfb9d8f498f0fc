// Package chat answers free-form questions about a finished analysis.
package chat

import (
	"context"
	"strings"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
	"repolens/internal/llm"
	"repolens/internal/prompt"
	"repolens/internal/quota"
	"repolens/internal/source"
	"repolens/internal/store"
	"repolens/internal/workers"
)

type Question struct {
	UserID  string `json:"userId"`
	Role    string `json:"role,omitempty"`
	RepoURL string `json:"repoUrl"`
	Text    string `json:"question"`
}

type Answer struct {
	Text       string   `json:"answer" prompt_desc:"Direct answer in at most three short paragraphs."`
	References []string `json:"references" prompt_desc:"Repository paths the answer relies on; empty when none apply."`
	Remaining  int      `json:"remaining" prompt:"-"`
}

var chatPromptSpec = prompt.ApplyPresets(prompt.Spec{
	Purpose:      "Answer a question about a repository using only its stored analysis.",
	Background:   "The analysis holds an architecture overview, lexical code facts, critical paths, a dependency graph and a tutorial. Any of them may be missing.",
	OutputFields: prompt.MustFieldsOf(Answer{}),
	Rules: []string{
		"If the analysis cannot answer the question, say so and suggest which section to regenerate.",
		"Tailor the answer to the asker's role when one is given.",
	},
	OutputFormat: "JSON only.",
	Language:     "Same language as the question.",
}, prompt.PresetStrictJSON(), prompt.PresetNoInvent())

const maxQuestionBytes = 2000

type Service struct {
	docs  store.DocumentStore
	quota *quota.Limiter
	llm   workers.Generator
}

func NewService(docs store.DocumentStore, limiter *quota.Limiter, gen workers.Generator) *Service {
	return &Service{docs: docs, quota: limiter, llm: gen}
}

// Ask loads the user's persisted analysis of the repository and asks the
// gateway. One query is taken from the user's quota only when the gateway
// answers. A reply without usable JSON is returned as plain text.
func (s *Service) Ask(ctx context.Context, q Question) (Answer, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Answer{}, apperr.New(apperr.CodeInvalidArgument, "question is empty")
	}
	if len(text) > maxQuestionBytes {
		return Answer{}, apperr.Newf(apperr.CodeInvalidArgument, "question is longer than %d bytes", maxQuestionBytes)
	}
	ref, err := source.ParseRepositoryRef(q.RepoURL)
	if err != nil {
		return Answer{}, err
	}
	doc, err := s.docs.Get(ctx, ref.CanonicalURL, q.UserID)
	if err != nil {
		return Answer{}, err
	}
	if err := s.quota.Check(ctx, q.UserID, q.Role); err != nil {
		return Answer{}, err
	}

	rendered, err := prompt.Render(chatPromptSpec, chatInput{Question: text, Role: q.Role, Analysis: doc})
	if err != nil {
		return Answer{}, err
	}
	raw, err := s.llm.Generate(llm.WithPhase(ctx, "chat"), rendered)
	if err != nil {
		return Answer{}, err
	}
	remaining, err := s.quota.Consume(ctx, q.UserID, q.Role)
	if err != nil {
		return Answer{}, err
	}
	ans := llm.Extract(raw, Answer{Text: fallbackText(raw)})
	if strings.TrimSpace(ans.Text) == "" {
		ans.Text = fallbackText(raw)
	}
	if ans.References == nil {
		ans.References = []string{}
	}
	ans.Remaining = remaining
	return ans, nil
}

type chatInput struct {
	Question string                     `json:"question"`
	Role     string                     `json:"role,omitempty"`
	Analysis artifact.CompositeAnalysis `json:"analysis"`
}

func fallbackText(raw string) string {
	if t := strings.TrimSpace(raw); t != "" {
		return t
	}
	return "No answer could be produced from the stored analysis."
}
