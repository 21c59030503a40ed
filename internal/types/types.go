package types

import (
	"context"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/ayurchat/internal/models"
)

// Index is a loaded vector index usable for similarity retrieval.
type Index interface {
	vectorstores.VectorStore
	Meta() models.IndexMeta
	Count(ctx context.Context) (int, error)
	Close() error
}

// Backend is a persistent index location.
//
// Exists reports whether a complete index is already stored there. Build
// embeds docs and persists them as a whole; it never leaves a partial index
// at the location. progress may be nil. Load binds the stored index to the
// configured embedder.
type Backend interface {
	Exists(ctx context.Context) (bool, error)
	Build(ctx context.Context, docs []schema.Document, meta models.IndexMeta, progress ProgressFunc) (Index, error)
	Load(ctx context.Context) (Index, error)
	Location() string
}

// ProgressFunc receives the number of chunks embedded so far.
type ProgressFunc func(done, total int)

// Pipeline answers a query using retrieved context. onToken, when non-nil,
// receives completion increments as they are generated.
type Pipeline interface {
	Answer(ctx context.Context, query string, onToken func(string)) (string, error)
}
