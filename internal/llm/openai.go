package llm

import (
	"context"
	"errors"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAICompatBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultOpenAICompatBaseURL = "https://api.groq.com/openai/v1"

// OpenAIBackend calls any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	baseURL string
	model   string

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAIBackend(baseURL, model string) *OpenAIBackend {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOpenAICompatBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &OpenAIBackend{baseURL: strings.TrimRight(baseURL, "/"), model: model, clients: make(map[string]*openai.Client)}
}

func (o *OpenAIBackend) Name() string { return "OpenAI:" + o.model }

func (o *OpenAIBackend) client(apiKey string) *openai.Client {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cli, ok := o.clients[apiKey]; ok {
		return cli
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = o.baseURL
	cli := openai.NewClientWithConfig(cfg)
	o.clients[apiKey] = cli
	return cli
}

func (o *OpenAIBackend) Complete(ctx context.Context, credential string, req Request) (string, error) {
	chat := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := o.client(credential).CreateChatCompletion(ctx, chat)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			return "", &StatusError{Backend: o.Name(), StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
			return "", &StatusError{Backend: o.Name(), StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
		}
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New(o.Name() + ": empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
