package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig represents the configuration for the embedder.
type EmbedderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// embeddingModel is the langchaingo surface the embedder needs; both
// the openai and ollama clients satisfy it.
type embeddingModel interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder turns chunk text into vectors.
type Embedder struct {
	config EmbedderConfig
	model  embeddingModel
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	model, err := newEmbeddingModel(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		model:  model,
	}, nil
}

func newEmbeddingModel(config *EmbedderConfig) (embeddingModel, error) {
	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		return ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	default:
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		return openai.New(opts...)
	}
}

// EmbedTexts returns one vector per input text, in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.model.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %v", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// Model reports the embedding model in use.
func (e *Embedder) Model() string { return e.config.Model }
