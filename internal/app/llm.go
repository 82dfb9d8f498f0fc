package app

import (
	"fmt"
	"log"

	"repolens/internal/config"
	"repolens/internal/llm"
)

func newBackend(cfg config.LLMConfig) llm.Backend {
	switch cfg.Provider {
	case "gemini":
		return llm.NewGeminiBackend(cfg.Model)
	case "openai":
		return llm.NewOpenAIBackend(cfg.BaseURL, cfg.Model)
	default:
		return llm.FakeBackend{}
	}
}

func initGateway(cfg config.LLMConfig) (*llm.Gateway, error) {
	backend := llm.Wrap(newBackend(cfg),
		llm.WithLogging(log.Default()),
		llm.RateLimit(cfg.RPS, cfg.Burst),
	)
	pool, err := llm.NewCredentialPool(cfg.Keys)
	if err != nil {
		return nil, fmt.Errorf("no credentials for %s: %w", cfg.Provider, err)
	}
	gwCfg := llm.DefaultGatewayConfig()
	gwCfg.CallTimeout = cfg.CallTimeout
	gw, err := llm.NewGateway(backend, pool, gwCfg)
	if err != nil {
		return nil, err
	}
	log.Printf("llm gateway: %s with %d credential(s)", gw.Name(), pool.Len())
	return gw, nil
}
