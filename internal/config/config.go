package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environmentally dependent settings for the hopsearch
// agent. It is read once at startup and immutable for the process lifetime.
type Config struct {
	// Chat-completion backend (OpenAI-compatible endpoint).
	LLMAPIKey  string
	LLMBaseURL string

	// Per-role model identifiers.
	PlannerModel     string
	ReaderModel      string
	SynthesizerModel string

	// Qdrant vector index.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Query embedding service (OpenAI-compatible /v1/embeddings).
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string

	// Loop bounds.
	MaxHops int
	TopK    int

	// Instrumentation and evaluation.
	RunLogDir       string
	RunDBPath       string
	EvalConcurrency int
	RunTimeout      time.Duration
}

// Load reads settings from the environment (and an optional .env file) with
// sensible defaults, then validates them.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMBaseURL: getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1/chat/completions"),

		PlannerModel:     getEnv("PLANNER_MODEL", "anthropic/claude-haiku-4.5"),
		ReaderModel:      getEnv("READER_MODEL", "anthropic/claude-haiku-4.5"),
		SynthesizerModel: getEnv("SYNTHESIZER_MODEL", "anthropic/claude-sonnet-4"),

		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6334"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "wiki_passages"),

		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "http://localhost:8080/v1"),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "all-MiniLM-L6-v2"),

		MaxHops: getEnvInt("MAX_HOPS", 7),
		TopK:    getEnvInt("TOP_K", 10),

		RunLogDir:       getEnv("RUN_LOG_DIR", "logs"),
		RunDBPath:       getEnv("RUN_DB_PATH", ""),
		EvalConcurrency: getEnvInt("EVAL_CONCURRENCY", 4),
		RunTimeout:      time.Duration(getEnvInt("RUN_TIMEOUT_SEC", 0)) * time.Second,
	}

	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = cfg.LLMAPIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures that all required configuration is present and valid.
func (c *Config) Validate() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.MaxHops < 1 {
		return fmt.Errorf("MAX_HOPS must be at least 1, got %d", c.MaxHops)
	}
	if c.TopK < 1 {
		return fmt.Errorf("TOP_K must be at least 1, got %d", c.TopK)
	}
	if c.EvalConcurrency < 1 {
		return fmt.Errorf("EVAL_CONCURRENCY must be at least 1, got %d", c.EvalConcurrency)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("RUN_TIMEOUT_SEC must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}
