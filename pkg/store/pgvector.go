package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/ayurchat/internal/models"
	"github.com/xhad/ayurchat/internal/types"
)

const metaTable = "ayurchat_index_meta"

type PGVectorConfig struct {
	ConnString     string
	TableName      string
	VectorDim      int
	BatchSize      int
	EmbeddingModel string
}

// PGVectorBackend stores an index as a Postgres table. The table name is the
// location; a row in the meta table marks the index as complete.
type PGVectorBackend struct {
	config   PGVectorConfig
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
}

var _ types.Backend = (*PGVectorBackend)(nil)

func NewPGVector(ctx context.Context, config PGVectorConfig, embedder embeddings.Embedder) (*PGVectorBackend, error) {
	if config.TableName == "" {
		config.TableName = "ayurchat_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &PGVectorBackend{
		config:   config,
		pool:     pool,
		embedder: embedder,
	}

	if err := b.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return b, nil
}

func (b *PGVectorBackend) initialize(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createMeta := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			meta JSONB NOT NULL
		)`, metaTable)
	if _, err := b.pool.Exec(ctx, createMeta); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	return nil
}

func (b *PGVectorBackend) Location() string {
	return b.config.TableName
}

func (b *PGVectorBackend) table() string {
	return pgx.Identifier{b.config.TableName}.Sanitize()
}

func (b *PGVectorBackend) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE name = $1)", metaTable),
		b.config.TableName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check index: %w", err)
	}
	return exists, nil
}

// Build creates the chunk table and writes every chunk and the meta row in one
// transaction, so a failed build leaves nothing behind.
func (b *PGVectorBackend) Build(ctx context.Context, docs []schema.Document, meta models.IndexMeta, progress types.ProgressFunc) (types.Index, error) {
	vectors, err := embedAll(ctx, b.embedder, documentTexts(docs), b.config.BatchSize, progress)
	if err != nil {
		return nil, err
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrUnwritable, err)
	}
	defer tx.Rollback(ctx)

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			content TEXT NOT NULL,
			source TEXT,
			embedding vector(%d)
		)`, b.table(), b.config.VectorDim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("%w: failed to create table: %w", ErrUnwritable, err)
	}

	if err := insertChunks(ctx, tx, b.table(), docs, vectors); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}

	// Search is an exact ordered scan. An ivfflat index over a book's few
	// hundred rows returns fewer than k neighbours.

	meta.EmbeddingModel = b.config.EmbeddingModel
	meta.Chunks = len(docs)
	if err := writeMeta(ctx, tx, b.config.TableName, meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to commit transaction: %w", ErrUnwritable, err)
	}

	return b.Load(ctx)
}

func (b *PGVectorBackend) Load(ctx context.Context) (types.Index, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT meta FROM %s WHERE name = $1", metaTable),
		b.config.TableName,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, b.config.TableName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index meta: %w", err)
	}

	var meta models.IndexMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse index meta: %w", err)
	}
	if meta.EmbeddingModel != b.config.EmbeddingModel {
		return nil, fmt.Errorf("%w: stored %q, configured %q",
			ErrEmbedderMismatch, meta.EmbeddingModel, b.config.EmbeddingModel)
	}

	return &PGVectorIndex{backend: b, meta: meta}, nil
}

// Close releases the connection pool.
func (b *PGVectorBackend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// PGVectorIndex searches a stored table with the pgvector cosine operator.
type PGVectorIndex struct {
	backend *PGVectorBackend
	meta    models.IndexMeta
}

var _ types.Index = (*PGVectorIndex)(nil)

func (idx *PGVectorIndex) Meta() models.IndexMeta {
	return idx.meta
}

func (idx *PGVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := idx.backend.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", idx.backend.table())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// AddDocuments implements vectorstores.VectorStore.
func (idx *PGVectorIndex) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	embedder := idx.backend.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}
	if len(docs) == 0 {
		return nil, nil
	}

	vectors, err := embedAll(ctx, embedder, documentTexts(docs), idx.backend.config.BatchSize, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	stored := make([]schema.Document, len(docs))
	for i, doc := range docs {
		ids[i] = documentID(doc)
		stored[i] = newChunkDocument(ids[i], metaInt(doc, "position", idx.meta.Chunks+i),
			doc.PageContent, metaString(doc, "source"))
	}

	tx, err := idx.backend.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertChunks(ctx, tx, idx.backend.table(), stored, vectors); err != nil {
		return nil, err
	}

	meta := idx.meta
	meta.Chunks += len(stored)
	if err := writeMeta(ctx, tx, idx.backend.config.TableName, meta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	idx.meta = meta

	return ids, nil
}

// SimilaritySearch implements vectorstores.VectorStore.
func (idx *PGVectorIndex) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	embedder := idx.backend.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	q := fmt.Sprintf(`
		SELECT id, position, content, COALESCE(source, ''), 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		idx.backend.table())

	rows, err := idx.backend.pool.Query(ctx, q, pgvector.NewVector(vector), numDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var (
			id, content, source string
			position            int
			score               float64
		)
		if err := rows.Scan(&id, &position, &content, &source, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if opts.ScoreThreshold > 0 && float32(score) < opts.ScoreThreshold {
			continue
		}
		doc := newChunkDocument(id, position, content, source)
		doc.Score = float32(score)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Close releases the backend's connection pool.
func (idx *PGVectorIndex) Close() error {
	idx.backend.Close()
	return nil
}

func insertChunks(ctx context.Context, tx pgx.Tx, table string, docs []schema.Document, vectors [][]float32) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, position, content, source, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		table)

	for i, doc := range docs {
		_, err := tx.Exec(ctx, stmt,
			documentID(doc),
			metaInt(doc, "position", i),
			sanitizeUTF8(doc.PageContent),
			metaString(doc, "source"),
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

func writeMeta(ctx context.Context, tx pgx.Tx, name string, meta models.IndexMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode index meta: %w", err)
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, meta) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET meta = EXCLUDED.meta`, metaTable),
		name, raw)
	if err != nil {
		return fmt.Errorf("failed to write index meta: %w", err)
	}
	return nil
}
