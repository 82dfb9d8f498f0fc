package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"repolens/internal/apperr"
	"repolens/internal/tester"
)

// scriptedBackend fails for every credential not in ok and records calls.
type scriptedBackend struct {
	mu    sync.Mutex
	calls []string
	ok    map[string]bool
	err   error
	delay time.Duration
}

func (s *scriptedBackend) Name() string { return "scripted" }
func (s *scriptedBackend) Complete(ctx context.Context, credential string, req Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, credential)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.ok[credential] {
		return `{"ok":true}`, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", &StatusError{Backend: "scripted", StatusCode: 429, Body: "rate limit exceeded"}
}

func (s *scriptedBackend) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestGateway(t *testing.T, b Backend, creds ...string) *Gateway {
	t.Helper()
	pool, err := NewCredentialPool(creds)
	tester.NoErr(t, err)
	g, err := NewGateway(b, pool, GatewayConfig{CallTimeout: time.Second})
	tester.NoErr(t, err)
	return g
}

func TestGateway_AllRateLimited_ExhaustsAfter2N(t *testing.T) {
	b := &scriptedBackend{}
	g := newTestGateway(t, b, "k1", "k2", "k3")

	_, err := g.Generate(context.Background(), "prompt")
	tester.ErrIs(t, err, apperr.ErrGatewayExhausted)
	tester.Eq(t, b.callLog(), []string{"k1", "k2", "k3", "k1", "k2", "k3"})
}

func TestGateway_SucceedsOnLastCredential(t *testing.T) {
	b := &scriptedBackend{ok: map[string]bool{"k3": true}}
	g := newTestGateway(t, b, "k1", "k2", "k3")

	out, err := g.Generate(context.Background(), "prompt")
	tester.NoErr(t, err)
	tester.Eq(t, out, `{"ok":true}`)
	tester.Eq(t, b.callLog(), []string{"k1", "k2", "k3"})

	// the cursor stays on the working credential
	_, err = g.Generate(context.Background(), "again")
	tester.NoErr(t, err)
	tester.Eq(t, b.callLog()[3], "k3")
}

func TestGateway_NonRateLimitErrorsRotateToo(t *testing.T) {
	b := &scriptedBackend{ok: map[string]bool{"k2": true}, err: &StatusError{Backend: "scripted", StatusCode: 500, Body: "internal"}}
	g := newTestGateway(t, b, "k1", "k2")

	_, err := g.Generate(context.Background(), "prompt")
	tester.NoErr(t, err)
	tester.Eq(t, b.callLog(), []string{"k1", "k2"})
}

func TestGateway_TimeoutIsTransient(t *testing.T) {
	calls := 0
	b := BackendFunc(func(ctx context.Context, credential string, req Request) (string, error) {
		calls++
		if credential == "slow" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "{}", nil
	})
	pool, _ := NewCredentialPool([]string{"slow", "fast"})
	g, err := NewGateway(b, pool, GatewayConfig{CallTimeout: 20 * time.Millisecond})
	tester.NoErr(t, err)

	out, err := g.Generate(context.Background(), "p")
	tester.NoErr(t, err)
	tester.Eq(t, out, "{}")
	tester.Eq(t, calls, 2)
}

func TestGateway_CancelledContextStops(t *testing.T) {
	b := &scriptedBackend{}
	g := newTestGateway(t, b, "k1", "k2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "p")
	tester.ErrIs(t, err, context.Canceled)
	tester.Eq(t, len(b.callLog()), 0)
}

func TestCredentialPool_RotateIsCompareAndAdvance(t *testing.T) {
	pool, err := NewCredentialPool([]string{"a", "b", "c"})
	tester.NoErr(t, err)

	idx, _ := pool.Current()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Rotate(idx)
		}()
	}
	wg.Wait()

	next, cred := pool.Current()
	tester.Eq(t, next, 1, "concurrent failures on one credential advance the cursor once")
	tester.Eq(t, cred, "b")
	tester.Eq(t, pool.Rotate(0), 1, "stale rotation is ignored")
	tester.Eq(t, pool.Rotate(1), 2)
	tester.Eq(t, pool.Rotate(2), 0, "rotation wraps")
}

func TestCredentialPool_RejectsEmpty(t *testing.T) {
	_, err := NewCredentialPool([]string{" ", ""})
	tester.True(t, err != nil, "empty pool must be rejected")
}

func TestDefaultRateLimitPredicate(t *testing.T) {
	tester.True(t, DefaultRateLimitPredicate(&StatusError{StatusCode: 429}))
	tester.True(t, DefaultRateLimitPredicate(errors.New("googleapi: RESOURCE_EXHAUSTED")))
	tester.True(t, DefaultRateLimitPredicate(errors.New("You exceeded your current quota")))
	tester.False(t, DefaultRateLimitPredicate(&StatusError{StatusCode: 500, Body: "boom"}))
	tester.False(t, DefaultRateLimitPredicate(nil))
}

func TestGateway_CustomPredicateControlsBackoffOnly(t *testing.T) {
	b := &scriptedBackend{}
	pool, _ := NewCredentialPool([]string{"k1"})
	seen := 0
	g, err := NewGateway(b, pool, GatewayConfig{
		CallTimeout:   time.Second,
		CycleBackoff:  time.Millisecond,
		IsRateLimited: func(error) bool { seen++; return false },
	})
	tester.NoErr(t, err)

	_, err = g.Generate(context.Background(), "p")
	tester.ErrIs(t, err, apperr.ErrGatewayExhausted)
	tester.Eq(t, len(b.callLog()), 2, "non rate-limit failures are still retried")
	tester.Eq(t, seen, 2)
}
