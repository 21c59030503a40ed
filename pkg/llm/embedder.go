package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

type EmbedderConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string // Ollama server URL
	BatchSize int
}

// Embedder turns chunk and query text into vectors.
type Embedder struct {
	embeddings.Embedder
	Config EmbedderConfig
	closer func() error
}

func NewEmbedder(ctx context.Context, config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = "gemini"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	var (
		client embeddings.EmbedderClient
		closer func() error
	)

	switch config.Provider {
	case "gemini":
		if config.Model == "" {
			config.Model = "embedding-001"
		}
		gemini, err := NewGemini(ctx, GeminiConfig{
			APIKey:         config.APIKey,
			EmbeddingModel: config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client, closer = gemini, gemini.Close

	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		emb, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = emb

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	e, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		Embedder: e,
		Config:   config,
		closer:   closer,
	}, nil
}

// Name identifies the embedding function. Indexes record it so they are
// never queried with vectors from a different model.
func (e *Embedder) Name() string {
	return EmbedderName(e.Config.Provider, e.Config.Model)
}

func (e *Embedder) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

func EmbedderName(provider, model string) string {
	return provider + "/" + model
}
