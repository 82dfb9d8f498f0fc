package server

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"repolens/internal/apperr"
	"repolens/internal/pipeline"
)

const (
	defaultMaxSessions = 1024
	defaultSessionTTL  = 30 * time.Minute
)

// sessionTable holds the live sessions of this process. An evicted or
// expired session is abandoned so its running tasks stop.
type sessionTable struct {
	lru *expirable.LRU[string, *pipeline.Session]
}

func newSessionTable(orch *pipeline.Orchestrator, size int, ttl time.Duration) *sessionTable {
	if size <= 0 {
		size = defaultMaxSessions
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	onEvict := func(_ string, s *pipeline.Session) {
		orch.Abandon(s)
	}
	return &sessionTable{lru: expirable.NewLRU[string, *pipeline.Session](size, onEvict, ttl)}
}

func (t *sessionTable) add(s *pipeline.Session) {
	t.lru.Add(s.ID, s)
}

// get returns the session only to the user that started it. Another user's
// session reads as missing.
func (t *sessionTable) get(id, userID string) (*pipeline.Session, error) {
	s, ok := t.lru.Get(id)
	if !ok || (s.UserID != "" && s.UserID != userID) {
		return nil, apperr.Newf(apperr.CodeNotFound, "session %s not found", id)
	}
	return s, nil
}

func (t *sessionTable) remove(id string) {
	t.lru.Remove(id)
}

func (t *sessionTable) len() int {
	return t.lru.Len()
}
