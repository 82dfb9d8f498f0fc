package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	GitHub   GitHubConfig
	LLM      LLMConfig
	Store    StoreConfig
	Artifact ArtifactConfig
	Analysis AnalysisConfig
	Quota    QuotaConfig
}

type GitHubConfig struct {
	Token   string
	BaseURL string
}

type LLMConfig struct {
	Provider    string // gemini, openai or fake
	Keys        []string
	Model       string
	BaseURL     string
	RPS         float64
	Burst       int
	CallTimeout time.Duration
}

type StoreConfig struct {
	DatabaseURL string
	SQLitePath  string
	CacheSize   int
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type AnalysisConfig struct {
	TreeDepth    int
	ChangedLimit int
	SampleCount  int
}

type QuotaConfig struct {
	DefaultLimit int
	PerRole      map[string]int
}

// Load reads .env, the -port flag and the environment. It parses the
// process flags, so it belongs in main only.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	flag.Parse()

	cfg := FromEnv()
	if *port != "" && os.Getenv("PORT") == "" {
		cfg.Port = *port
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() *Config {
	port := ":8081"
	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			port = envPort
		} else {
			port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port: port,
		Env:  env,
		GitHub: GitHubConfig{
			Token:   strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
			BaseURL: strings.TrimSpace(os.Getenv("GITHUB_API_URL")),
		},
		LLM: loadLLMConfig(),
		Store: StoreConfig{
			DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
			SQLitePath:  strings.TrimSpace(os.Getenv("SQLITE_PATH")),
			CacheSize:   envInt("STORE_CACHE_SIZE", 256),
		},
		Artifact: loadArtifactConfig(env),
		Analysis: AnalysisConfig{
			TreeDepth:    envInt("ANALYSIS_TREE_DEPTH", 3),
			ChangedLimit: envInt("ANALYSIS_CHANGED_LIMIT", 10),
			SampleCount:  envInt("ANALYSIS_SAMPLE_COUNT", 5),
		},
		Quota: QuotaConfig{
			DefaultLimit: envInt("QUOTA_DEFAULT", 20),
			PerRole:      parseRoleLimits(os.Getenv("QUOTA_ROLES")),
		},
	}
}

func loadLLMConfig() LLMConfig {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	geminiKeys := splitList(firstNonEmpty(os.Getenv("GEMINI_API_KEYS"), os.Getenv("GEMINI_API_KEY")))
	openaiKeys := splitList(os.Getenv("OPENAI_COMPAT_API_KEYS"))
	if provider == "" {
		switch {
		case len(geminiKeys) > 0:
			provider = "gemini"
		case len(openaiKeys) > 0:
			provider = "openai"
		default:
			provider = "fake"
		}
	}

	cfg := LLMConfig{
		Provider:    provider,
		RPS:         envFloat("LLM_RPS", 1),
		Burst:       envInt("LLM_BURST", 1),
		CallTimeout: envDuration("LLM_CALL_TIMEOUT", 90*time.Second),
	}
	switch provider {
	case "gemini":
		cfg.Keys = geminiKeys
		cfg.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.5-flash")
	case "openai":
		cfg.Keys = openaiKeys
		cfg.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_COMPAT_MODEL")), "llama-3.3-70b-versatile")
		cfg.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_COMPAT_BASE_URL")), "https://api.groq.com/openai/v1")
	default:
		cfg.Keys = []string{"fake"}
		cfg.Model = "fake"
	}
	return cfg
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "repolens-analyses"),
		Prefix:    strings.TrimSpace(os.Getenv("ARTIFACT_S3_PREFIX")),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

// parseRoleLimits reads "role=limit" pairs separated by commas.
func parseRoleLimits(raw string) map[string]int {
	out := make(map[string]int)
	for _, pair := range splitList(raw) {
		role, limit, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(limit))
		if err != nil {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(role))] = n
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
