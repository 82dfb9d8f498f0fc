package source

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"repolens/internal/artifact"
)

type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 512,
		TTL:        10 * time.Minute,
	}
}

type MetricsSnapshot struct {
	Hits        uint64
	Misses      uint64
	OriginReads uint64
	OriginErr   uint64
}

// CachedFetcher memoizes successful host reads across sessions. Errors are
// never cached.
type CachedFetcher struct {
	origin Fetcher

	metadata *expirable.LRU[string, artifact.RepoMetadata]
	trees    *expirable.LRU[string, []artifact.TreeNode]
	changed  *expirable.LRU[string, []artifact.ChangedFile]
	contents *expirable.LRU[string, string]

	hits        atomic.Uint64
	misses      atomic.Uint64
	originReads atomic.Uint64
	originErr   atomic.Uint64
}

func NewCachedFetcher(origin Fetcher, cfg CacheConfig) *CachedFetcher {
	def := DefaultCacheConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &CachedFetcher{
		origin:   origin,
		metadata: expirable.NewLRU[string, artifact.RepoMetadata](cfg.MaxEntries, nil, cfg.TTL),
		trees:    expirable.NewLRU[string, []artifact.TreeNode](cfg.MaxEntries, nil, cfg.TTL),
		changed:  expirable.NewLRU[string, []artifact.ChangedFile](cfg.MaxEntries, nil, cfg.TTL),
		contents: expirable.NewLRU[string, string](cfg.MaxEntries*4, nil, cfg.TTL),
	}
}

func (c *CachedFetcher) GetMetadata(ctx context.Context, ref artifact.RepositoryRef) (artifact.RepoMetadata, error) {
	return readThrough(c, c.metadata, ref.CanonicalURL, func() (artifact.RepoMetadata, error) {
		return c.origin.GetMetadata(ctx, ref)
	})
}

func (c *CachedFetcher) GetTree(ctx context.Context, ref artifact.RepositoryRef, path string, maxDepth int) ([]artifact.TreeNode, error) {
	key := fmt.Sprintf("%s|%s|%d", ref.CanonicalURL, path, maxDepth)
	return readThrough(c, c.trees, key, func() ([]artifact.TreeNode, error) {
		return c.origin.GetTree(ctx, ref, path, maxDepth)
	})
}

func (c *CachedFetcher) GetChangedFiles(ctx context.Context, ref artifact.RepositoryRef, limit int) ([]artifact.ChangedFile, error) {
	key := fmt.Sprintf("%s|%d", ref.CanonicalURL, limit)
	out, err := readThrough(c, c.changed, key, func() ([]artifact.ChangedFile, error) {
		return c.origin.GetChangedFiles(ctx, ref, limit)
	})
	if err != nil {
		return nil, err
	}
	return append([]artifact.ChangedFile(nil), out...), nil
}

func (c *CachedFetcher) GetFileContent(ctx context.Context, ref artifact.RepositoryRef, path string) (string, error) {
	return readThrough(c, c.contents, ref.CanonicalURL+"|"+path, func() (string, error) {
		return c.origin.GetFileContent(ctx, ref, path)
	})
}

func (c *CachedFetcher) Metrics() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		OriginReads: c.originReads.Load(),
		OriginErr:   c.originErr.Load(),
	}
}

func readThrough[V any](c *CachedFetcher, cache *expirable.LRU[string, V], key string, load func() (V, error)) (V, error) {
	if v, ok := cache.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)
	c.originReads.Add(1)
	v, err := load()
	if err != nil {
		c.originErr.Add(1)
		var zero V
		return zero, err
	}
	cache.Add(key, v)
	return v, nil
}
