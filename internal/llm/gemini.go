package llm

import (
	"context"
	"errors"
	"strings"
	"sync"

	genai "google.golang.org/genai"
)

// GeminiBackend calls the Gemini API through the official genai client. One
// client is kept per API key because genai binds the key at construction.
type GeminiBackend struct {
	model string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

func NewGeminiBackend(model string) *GeminiBackend {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiBackend{model: model, clients: make(map[string]*genai.Client)}
}

func (g *GeminiBackend) Name() string { return "Gemini:" + g.model }

func (g *GeminiBackend) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cli, ok := g.clients[apiKey]; ok {
		return cli, nil
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	g.clients[apiKey] = cli
	return cli, nil
}

func (g *GeminiBackend) Complete(ctx context.Context, credential string, req Request) (string, error) {
	cli, err := g.client(ctx, credential)
	if err != nil {
		return "", err
	}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(req.Temperature)}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	resp, err := cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Backend: g.Name(), StatusCode: apiErr.Code, Body: apiErr.Status + " " + apiErr.Message}
		}
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New(g.Name() + ": empty response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
