// Package embeddings maps text to fixed-dimension vectors through a
// provider-selected embedding model.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fabfab/docqa/config"
)

// ErrEmptyInput reports an embedding request with no texts or an empty text.
// Callers must filter empty chunks before embedding.
var ErrEmptyInput = errors.New("embedding input must be non-empty")

// Embedder converts a batch of texts into vectors of a fixed dimension.
// The result preserves input order and is independent of batch size.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text, typically a query.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vectors))
	}
	return vectors[0], nil
}

// validateInputs enforces the non-empty contract shared by all providers.
func validateInputs(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyInput
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("text %d: %w", i, ErrEmptyInput)
		}
	}
	return nil
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}
