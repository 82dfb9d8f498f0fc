package source

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/go-github/v55/github"
)

// pacer spaces host requests and waits out an exhausted rate limit window.
type pacer struct {
	mu        sync.Mutex
	remaining int
	resetTime time.Time
	minDelay  time.Duration
	lastCall  time.Time
}

func newPacer(minDelay time.Duration) *pacer {
	return &pacer{remaining: -1, minDelay: minDelay}
}

func (p *pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	var wait time.Duration
	if p.remaining >= 0 && p.remaining <= 10 {
		if d := time.Until(p.resetTime); d > 0 {
			log.Printf("source: host rate limit low (%d remaining), waiting %v", p.remaining, d.Round(time.Second))
			wait = d
		}
		p.remaining = -1
	}
	if elapsed := time.Since(p.lastCall); elapsed < p.minDelay && p.minDelay-elapsed > wait {
		wait = p.minDelay - elapsed
	}
	p.lastCall = time.Now().Add(wait)
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Observe records the rate headers of a response. Responses without rate
// headers (Limit == 0) are ignored.
func (p *pacer) Observe(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remaining = resp.Rate.Remaining
	p.resetTime = resp.Rate.Reset.Time
}
