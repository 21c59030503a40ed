package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/ayurchat/internal/types"
)

var (
	ErrEmbedderMismatch = errors.New("index was built with a different embedding model")
	ErrUnwritable       = errors.New("persist location is not writable")
	ErrEmbedding        = errors.New("embedding failed")
	ErrNotFound         = errors.New("no index at location")
)

type StoreConfig struct {
	Backend        string
	Dir            string
	ConnString     string
	TableName      string
	VectorDim      int
	BatchSize      int
	EmbeddingModel string
}

// New returns the backend named by config.Backend.
func New(ctx context.Context, config StoreConfig, embedder embeddings.Embedder) (types.Backend, error) {
	switch config.Backend {
	case "", "local":
		return NewLocal(LocalConfig{
			Dir:            config.Dir,
			BatchSize:      config.BatchSize,
			EmbeddingModel: config.EmbeddingModel,
		}, embedder), nil
	case "pgvector":
		return NewPGVector(ctx, PGVectorConfig{
			ConnString:     config.ConnString,
			TableName:      config.TableName,
			VectorDim:      config.VectorDim,
			BatchSize:      config.BatchSize,
			EmbeddingModel: config.EmbeddingModel,
		}, embedder)
	default:
		return nil, fmt.Errorf("unknown index backend %q", config.Backend)
	}
}

// embedAll embeds texts in batches, reporting progress after each batch.
func embedAll(ctx context.Context, embedder embeddings.Embedder, texts []string, batchSize int, progress types.ProgressFunc) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
		if progress != nil {
			progress(len(vectors), len(texts))
		}
	}

	return vectors, nil
}

func documentTexts(docs []schema.Document) []string {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = sanitizeUTF8(doc.PageContent)
	}
	return texts
}

func metaString(doc schema.Document, key string) string {
	if v, ok := doc.Metadata[key].(string); ok {
		return v
	}
	return ""
}

func metaInt(doc schema.Document, key string, fallback int) int {
	switch v := doc.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func documentID(doc schema.Document) string {
	if id := metaString(doc, "id"); id != "" {
		return id
	}
	return uuid.New().String()
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
