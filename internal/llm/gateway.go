package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"repolens/internal/apperr"
)

// RateLimitPredicate reports whether a backend error means "rate limited".
// It only changes logging and backoff; every error is retried the same way.
type RateLimitPredicate func(err error) bool

var rateLimitSignatures = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"quota",
	"resource_exhausted",
	"resource exhausted",
}

// DefaultRateLimitPredicate matches HTTP 429 or a rate-limit or quota phrase in the error.
func DefaultRateLimitPredicate(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

type GatewayConfig struct {
	CallTimeout   time.Duration      // per attempt; a timeout counts as a transient failure
	CycleBackoff  time.Duration      // pause after a full rate-limited pass over the pool
	IsRateLimited RateLimitPredicate // nil means DefaultRateLimitPredicate
	Temperature   float32
	MaxTokens     int
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		CallTimeout:  90 * time.Second,
		CycleBackoff: time.Second,
		Temperature:  0.2,
		MaxTokens:    4096,
	}
}

// Gateway turns prompts into completions while hiding backend unreliability.
type Gateway struct {
	backend Backend
	pool    *CredentialPool
	cfg     GatewayConfig
}

func NewGateway(backend Backend, pool *CredentialPool, cfg GatewayConfig) (*Gateway, error) {
	if backend == nil {
		return nil, errors.New("gateway: backend is nil")
	}
	if pool == nil || pool.Len() == 0 {
		return nil, errors.New("gateway: credential pool is empty")
	}
	if cfg.IsRateLimited == nil {
		cfg.IsRateLimited = DefaultRateLimitPredicate
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultGatewayConfig().CallTimeout
	}
	return &Gateway{backend: backend, pool: pool, cfg: cfg}, nil
}

func (g *Gateway) Name() string { return g.backend.Name() }

// MaxAttempts is the retry bound: two passes over the pool.
func (g *Gateway) MaxAttempts() int {
	return 2 * g.pool.Len()
}

// Generate sends prompt with the gateway's default parameters.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	return g.GenerateWith(ctx, Request{
		Prompt:      prompt,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		JSONMode:    true,
	})
}

// GenerateWith calls the backend with the current credential. Any failure
// rotates to the next credential and retries, up to MaxAttempts in total,
// after which it fails with GatewayExhausted. Cancellation of ctx stops the
// loop immediately and is returned as is.
func (g *Gateway) GenerateWith(ctx context.Context, req Request) (string, error) {
	n := g.pool.Len()
	maxAttempts := g.MaxAttempts()
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		idx, cred := g.pool.Current()
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		text, err := g.backend.Complete(callCtx, cred, req)
		cancel()
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		last = err
		limited := g.cfg.IsRateLimited(err)
		next := g.pool.Rotate(idx)
		log.Printf("gateway (%s): attempt %d/%d on credential #%d failed (rate limited: %v): %v; next credential #%d",
			PhaseFrom(ctx), attempt, maxAttempts, idx, limited, err, next)

		if limited && attempt%n == 0 && attempt < maxAttempts && g.cfg.CycleBackoff > 0 {
			t := time.NewTimer(g.cfg.CycleBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}
	}
	return "", apperr.Wrap(apperr.CodeGatewayExhausted,
		fmt.Sprintf("%s failed %d attempts across %d credentials", g.backend.Name(), maxAttempts, n), last)
}
