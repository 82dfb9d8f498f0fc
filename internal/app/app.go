// Package app wires configuration, stores, the generation gateway and the
// orchestrator into a runnable service.
package app

import (
	"context"
	"fmt"
	"log"

	"repolens/internal/chat"
	"repolens/internal/config"
	"repolens/internal/pipeline"
	"repolens/internal/quota"
	"repolens/internal/server"
	"repolens/internal/source"
	"repolens/internal/store"
)

// Services is everything a front end (HTTP or CLI) needs.
type Services struct {
	Config       *config.Config
	Store        *store.CachedStore
	Fetcher      *source.CachedFetcher
	Orchestrator *pipeline.Orchestrator
	Quota        *quota.Limiter
	Chat         *chat.Service

	closers []closer
}

func Build(cfg *config.Config) (*Services, error) {
	st, closers, err := initStores(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := initGateway(cfg.LLM)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to initialize llm gateway: %w", err)
	}

	gh, err := source.NewGitHubFetcher(source.GitHubConfig{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
	})
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to initialize github fetcher: %w", err)
	}
	if cfg.GitHub.Token == "" {
		log.Printf("source: GITHUB_TOKEN is not set, using anonymous rate limits")
	}
	fetcher := source.NewCachedFetcher(gh, source.DefaultCacheConfig())

	orch := pipeline.New(fetcher, st, pipeline.MustDefaultRegistry(gw), pipeline.Config{
		TreeDepth:    cfg.Analysis.TreeDepth,
		ChangedLimit: cfg.Analysis.ChangedLimit,
		SampleCount:  cfg.Analysis.SampleCount,
	})
	limiter := quota.NewLimiter(st, cfg.Quota.DefaultLimit, cfg.Quota.PerRole)

	return &Services{
		Config:       cfg,
		Store:        st,
		Fetcher:      fetcher,
		Orchestrator: orch,
		Quota:        limiter,
		Chat:         chat.NewService(st, limiter, gw),
		closers:      closers,
	}, nil
}

func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	m := s.Store.Metrics()
	f := s.Fetcher.Metrics()
	log.Printf("store cache: hits=%d misses=%d origin_reads=%d; source cache: hits=%d misses=%d",
		m.DocHits, m.DocMisses, m.OriginReads, f.Hits, f.Misses)
	return closeAll(s.closers)
}

type App struct {
	services *Services
	server   *server.Server
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	svc, err := Build(cfg)
	if err != nil {
		return nil, err
	}

	handler := server.NewHandler(svc.Orchestrator, svc.Chat, server.Options{})
	srv := server.New(cfg.Port, server.NewMux(handler))

	return &App{
		services: svc,
		server:   srv,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.services.Close(); err == nil {
		err = cerr
	}
	return err
}
