package llm

import (
	"errors"
	"strings"
	"sync"
)

// CredentialPool is an ordered list of API credentials with a shared cursor.
// One pool is shared by every session in the process.
type CredentialPool struct {
	mu     sync.Mutex
	creds  []string
	cursor int
}

func NewCredentialPool(creds []string) (*CredentialPool, error) {
	var cleaned []string
	for _, c := range creds {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("credential pool: at least one credential is required")
	}
	return &CredentialPool{creds: cleaned}, nil
}

func (p *CredentialPool) Len() int {
	return len(p.creds)
}

// Current returns the cursor position and the credential under it.
func (p *CredentialPool) Current() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor, p.creds[p.cursor]
}

// Rotate advances the cursor only if it still points at from, so that two
// callers failing on the same credential move it once, not twice. It returns
// the cursor after the call.
func (p *CredentialPool) Rotate(from int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == from {
		p.cursor = (p.cursor + 1) % len(p.creds)
	}
	return p.cursor
}
