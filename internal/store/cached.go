package store

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"repolens/internal/artifact"
)

type MetricsSnapshot struct {
	DocHits        uint64
	DocMisses      uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type Metrics struct {
	docHits        atomic.Uint64
	docMisses      atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		DocHits:        m.docHits.Load(),
		DocMisses:      m.docMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// CachedStore is a read-through, write-through document cache in front of an
// origin Store. Counters always go to the origin.
type CachedStore struct {
	origin  Store
	docs    *lru.Cache[string, artifact.CompositeAnalysis]
	metrics Metrics
}

const defaultCachedDocs = 256

func NewCachedStore(origin Store, maxDocs int) (*CachedStore, error) {
	if maxDocs <= 0 {
		maxDocs = defaultCachedDocs
	}
	cache, err := lru.New[string, artifact.CompositeAnalysis](maxDocs)
	if err != nil {
		return nil, err
	}
	return &CachedStore{origin: origin, docs: cache}, nil
}

func (s *CachedStore) Get(ctx context.Context, repoURL, userID string) (artifact.CompositeAnalysis, error) {
	key := docKey(repoURL, userID)
	if doc, ok := s.docs.Get(key); ok {
		s.metrics.docHits.Add(1)
		return doc, nil
	}
	s.metrics.docMisses.Add(1)
	s.metrics.originReads.Add(1)

	doc, err := s.origin.Get(ctx, repoURL, userID)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return artifact.CompositeAnalysis{}, err
	}
	s.docs.Add(key, doc)
	return doc, nil
}

func (s *CachedStore) Put(ctx context.Context, repoURL, userID string, doc artifact.CompositeAnalysis) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, repoURL, userID, doc); err != nil {
		s.metrics.originWriteErr.Add(1)
		s.docs.Remove(docKey(repoURL, userID))
		return err
	}
	s.docs.Add(docKey(repoURL, userID), doc)
	return nil
}

func (s *CachedStore) IncrementUsageCounter(ctx context.Context, userID string) (int, error) {
	return s.origin.IncrementUsageCounter(ctx, userID)
}

func (s *CachedStore) GetUsageCounter(ctx context.Context, userID string) (int, error) {
	return s.origin.GetUsageCounter(ctx, userID)
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.snapshot()
}
