package source

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
)

const sampleConcurrency = 4

// GetFileSamples fetches the content of the first n changed files. Files that
// are missing, binary or directories are skipped. Other failures are skipped
// too unless no sample could be read at all.
func GetFileSamples(ctx context.Context, f Fetcher, ref artifact.RepositoryRef, changed []artifact.ChangedFile, n int) ([]artifact.FileSample, error) {
	if n <= 0 {
		n = DefaultSampleCount
	}
	if len(changed) > n {
		changed = changed[:n]
	}
	slots := make([]*artifact.FileSample, len(changed))

	var (
		mu       sync.Mutex
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sampleConcurrency)
	for i, cf := range changed {
		i, cf := i, cf
		g.Go(func() error {
			content, err := f.GetFileContent(gctx, ref, cf.Path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if !apperr.IsContentUnavailable(err) && !apperr.IsNotFound(err) {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
				log.Printf("source: skip sample %s: %v", cf.Path, err)
				return nil
			}
			slots[i] = &artifact.FileSample{Path: cf.Path, Content: content, ChangeCount: cf.ChangeCount}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	samples := make([]artifact.FileSample, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			samples = append(samples, *s)
		}
	}
	if len(samples) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return samples, nil
}
