package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ayurchat/pkg/llm"
)

func TestNewEmbedder(t *testing.T) {
	emb, err := llm.NewEmbedder(context.Background(), llm.EmbedderConfig{
		Provider: "ollama",
		BaseURL:  "http://localhost:1234",
	})
	require.NoError(t, err)
	defer emb.Close()

	assert.Equal(t, "nomic-embed-text", emb.Config.Model)
	assert.Equal(t, 100, emb.Config.BatchSize)
	assert.Equal(t, "ollama/nomic-embed-text", emb.Name())
}

func TestNewEmbedder_Errors(t *testing.T) {
	_, err := llm.NewEmbedder(context.Background(), llm.EmbedderConfig{Provider: "gemini"})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	_, err = llm.NewEmbedder(context.Background(), llm.EmbedderConfig{Provider: "cohere"})
	assert.EqualError(t, err, `unknown embedding provider "cohere"`)
}

func TestEmbedderName(t *testing.T) {
	assert.Equal(t, "gemini/embedding-001", llm.EmbedderName("gemini", "embedding-001"))
}
