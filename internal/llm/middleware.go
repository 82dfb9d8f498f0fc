package llm

import (
	"context"
	"log"
	"time"
)

// Middleware decorates a Backend with a cross-cutting concern.
type Middleware func(Backend) Backend

// Wrap applies middlewares in left-to-right order: Wrap(b, A, B) is A(B(b)).
func Wrap(inner Backend, mws ...Middleware) Backend {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit throttles calls to rps per second. rps <= 0 disables it.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Backend) Backend {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next Backend
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Complete(ctx context.Context, credential string, req Request) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Complete(ctx, credential, req)
}

// WithLogging logs the size and latency of every call.
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next Backend) Backend {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Backend
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Complete(ctx context.Context, credential string, req Request) (string, error) {
	start := time.Now()
	l.log.Printf("LLM request (%s): %d bytes", PhaseFrom(ctx), len(req.Prompt))
	out, err := l.next.Complete(ctx, credential, req)
	if err != nil {
		l.log.Printf("LLM error (%s) after %v: %v", PhaseFrom(ctx), time.Since(start).Round(time.Millisecond), err)
		return out, err
	}
	l.log.Printf("LLM response (%s): %d bytes in %v", PhaseFrom(ctx), len(out), time.Since(start).Round(time.Millisecond))
	return out, nil
}

type ctxKeyPhase struct{}

// WithPhase labels the calls made under ctx, typically with a task name.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

func PhaseFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPhase{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
