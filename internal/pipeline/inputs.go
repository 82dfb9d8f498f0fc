package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"repolens/internal/artifact"
	"repolens/internal/source"
)

const inputFetchTimeout = 2 * time.Minute

// sourceInputs memoizes the fetched source data of one session. A successful
// fetch is kept for the life of the session; a failed one is retried by the
// next caller. Concurrent callers of the same input share one fetch.
type sourceInputs struct {
	fetcher source.Fetcher
	ref     artifact.RepositoryRef
	cfg     Config

	group  singleflight.Group
	mu     sync.Mutex
	values map[Input]any
}

func newSourceInputs(f source.Fetcher, ref artifact.RepositoryRef, cfg Config) *sourceInputs {
	return &sourceInputs{fetcher: f, ref: ref, cfg: cfg, values: make(map[Input]any)}
}

func (s *sourceInputs) seed(key Input, v any) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

func (s *sourceInputs) cached(key Input) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// memoized shares one fetch per input between concurrent callers. The fetch
// runs detached from any single caller, so one caller giving up does not fail
// the others; each caller stops waiting when its own ctx is done.
func memoized[T any](ctx context.Context, s *sourceInputs, key Input, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := s.cached(key); ok {
		return v.(T), nil
	}
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(key), func() (any, error) {
		if v, ok := s.cached(key); ok {
			return v, nil
		}
		fctx, cancel := context.WithTimeout(shared, inputFetchTimeout)
		defer cancel()
		val, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		s.seed(key, val)
		return val, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (s *sourceInputs) metadata(ctx context.Context) (artifact.RepoMetadata, error) {
	return memoized(ctx, s, InputMetadata, func(ctx context.Context) (artifact.RepoMetadata, error) {
		return s.fetcher.GetMetadata(ctx, s.ref)
	})
}

func (s *sourceInputs) tree(ctx context.Context) ([]artifact.TreeNode, error) {
	return memoized(ctx, s, InputTree, func(ctx context.Context) ([]artifact.TreeNode, error) {
		return s.fetcher.GetTree(ctx, s.ref, "", s.cfg.TreeDepth)
	})
}

func (s *sourceInputs) changedFiles(ctx context.Context) ([]artifact.ChangedFile, error) {
	return memoized(ctx, s, InputChangedFiles, func(ctx context.Context) ([]artifact.ChangedFile, error) {
		return s.fetcher.GetChangedFiles(ctx, s.ref, s.cfg.ChangedLimit)
	})
}

func (s *sourceInputs) samples(ctx context.Context) ([]artifact.FileSample, error) {
	return memoized(ctx, s, InputSamples, func(ctx context.Context) ([]artifact.FileSample, error) {
		changed, err := s.changedFiles(ctx)
		if err != nil {
			return nil, err
		}
		return source.GetFileSamples(ctx, s.fetcher, s.ref, changed, s.cfg.SampleCount)
	})
}
