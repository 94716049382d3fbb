// Package config loads runtime configuration from an optional YAML file and
// the environment, environment winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Supported model providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	defaultChunkSize      = 300
	defaultChunkOverlap   = 50
	defaultTopK           = 3
	defaultThreshold      = 0.25
	defaultMaxUploadBytes = 50 << 20
)

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type Config struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	LLM        LLMConfig        `yaml:"llm"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// PostgresDSN enables persistent session storage when set. Empty means
	// in-memory only.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Load builds the configuration from an optional YAML file at path (empty
// path or a missing file is fine) with environment variables taking
// precedence, then validates it.
func Load(path string) (Config, error) {
	cfg := Config{
		Addr:           "localhost:8080",
		MaxUploadBytes: defaultMaxUploadBytes,
		Chunking:       ChunkingConfig{Size: defaultChunkSize, Overlap: defaultChunkOverlap},
		Retrieval:      RetrievalConfig{TopK: defaultTopK, Threshold: defaultThreshold},
		Embeddings:     EmbeddingsConfig{Provider: ProviderOllama, Model: "nomic-embed-text", Dimension: 768},
		LLM:            LLMConfig{Provider: ProviderOllama, Model: "llama3.1"},
		OllamaHost:     "http://localhost:11434",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Addr = getEnv("DOCQA_ADDR", cfg.Addr)
	cfg.MaxUploadBytes = getEnvInt64("DOCQA_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.Chunking.Size = getEnvInt("DOCQA_CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = getEnvInt("DOCQA_CHUNK_OVERLAP", cfg.Chunking.Overlap)
	cfg.Retrieval.TopK = getEnvInt("DOCQA_TOP_K", cfg.Retrieval.TopK)
	cfg.Retrieval.Threshold = getEnvFloat("DOCQA_THRESHOLD", cfg.Retrieval.Threshold)
	cfg.Embeddings.Provider = getEnv("DOCQA_EMBEDDINGS_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.Model = getEnv("DOCQA_EMBEDDINGS_MODEL", cfg.Embeddings.Model)
	cfg.Embeddings.Dimension = getEnvInt("DOCQA_EMBEDDINGS_DIMENSION", cfg.Embeddings.Dimension)
	cfg.LLM.Provider = getEnv("DOCQA_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("DOCQA_LLM_MODEL", cfg.LLM.Model)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects parameter combinations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top-k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("similarity threshold must be in [-1, 1], got %v", c.Retrieval.Threshold)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
