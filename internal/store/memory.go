package store

import (
	"context"
	"encoding/json"
	"sync"

	"repolens/internal/artifact"
)

// MemoryStore keeps encoded documents in process memory. Documents are
// round-tripped through JSON so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string][]byte
	counters map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string][]byte),
		counters: make(map[string]int),
	}
}

func (s *MemoryStore) Get(_ context.Context, repoURL, userID string) (artifact.CompositeAnalysis, error) {
	s.mu.RLock()
	raw, ok := s.docs[docKey(repoURL, userID)]
	s.mu.RUnlock()
	if !ok {
		return artifact.CompositeAnalysis{}, errNotFound(repoURL, userID)
	}
	var doc artifact.CompositeAnalysis
	if err := json.Unmarshal(raw, &doc); err != nil {
		return artifact.CompositeAnalysis{}, err
	}
	return doc, nil
}

func (s *MemoryStore) Put(_ context.Context, repoURL, userID string, doc artifact.CompositeAnalysis) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[docKey(repoURL, userID)] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) IncrementUsageCounter(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, id := normalizeKey("", userID)
	s.counters[id]++
	return s.counters[id], nil
}

func (s *MemoryStore) GetUsageCounter(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, id := normalizeKey("", userID)
	return s.counters[id], nil
}
