package app

import (
	"fmt"
	"log"
	"strings"

	"repolens/internal/config"
	"repolens/internal/store"
)

type closer func() error

// initStores picks the counter backend (Postgres, SQLite or memory), puts
// documents in S3 when an artifact endpoint is configured and fronts the
// result with an LRU.
func initStores(cfg *config.Config) (*store.CachedStore, []closer, error) {
	var (
		base    store.Store
		closers []closer
	)
	switch {
	case strings.TrimSpace(cfg.Store.DatabaseURL) != "":
		db, err := store.NewPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		log.Printf("result store: postgres")
		base, closers = db, append(closers, db.Close)
	case strings.TrimSpace(cfg.Store.SQLitePath) != "":
		db, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Printf("result store: sqlite path=%s", cfg.Store.SQLitePath)
		base, closers = db, append(closers, db.Close)
	default:
		log.Printf("result store: in-memory")
		base = store.NewMemoryStore()
	}

	if cfg.Artifact.Enabled {
		s3Cfg := store.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			Prefix:    cfg.Artifact.Prefix,
			UseSSL:    cfg.Artifact.UseSSL,
		}
		docs, err := store.NewS3Store(s3Cfg)
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("failed to initialize analysis s3 store: %w", err)
		}
		log.Printf("analysis documents: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		base = store.Combine(docs, base)
	}

	cached, err := store.NewCachedStore(base, cfg.Store.CacheSize)
	if err != nil {
		closeAll(closers)
		return nil, nil, fmt.Errorf("failed to initialize store cache: %w", err)
	}
	return cached, closers, nil
}

func closeAll(closers []closer) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
