// Package llm is the generation gateway: it sends prompts to a text backend,
// rotates across a credential pool on failure, and pulls JSON out of noisy
// completions.
package llm

import (
	"context"
	"fmt"
)

// Request is a single generation request.
type Request struct {
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSONMode    bool // ask the backend for an application/json response
}

// Backend performs one completion with one credential. It must not retry:
// rotation and retry belong to the Gateway.
type Backend interface {
	Name() string
	Complete(ctx context.Context, credential string, req Request) (string, error)
}

// StatusError is a non-2xx answer from a backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Backend, e.StatusCode, body)
}

// BackendFunc adapts a function to a Backend.
type BackendFunc func(ctx context.Context, credential string, req Request) (string, error)

func (f BackendFunc) Name() string { return "func" }
func (f BackendFunc) Complete(ctx context.Context, credential string, req Request) (string, error) {
	return f(ctx, credential, req)
}
