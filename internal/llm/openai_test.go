package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"repolens/internal/tester"
)

func TestOpenAIBackend_MapsStatusAndRotates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "Rate limit reached", "type": "rate_limit"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "x",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": "```json\n{\"a\":1}\n```"}}},
		})
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(srv.URL, "test-model")

	_, err := backend.Complete(context.Background(), "bad", Request{Prompt: "p"})
	var se *StatusError
	tester.True(t, errors.As(err, &se), "expected StatusError, got %v", err)
	tester.Eq(t, se.StatusCode, http.StatusTooManyRequests)
	tester.True(t, DefaultRateLimitPredicate(err))

	g := newTestGateway(t, backend, "bad", "good")
	out, err := g.Generate(context.Background(), "p")
	tester.NoErr(t, err)
	tester.Eq(t, ExtractJSON(out, nil), any(map[string]any{"a": 1.0}))
}
