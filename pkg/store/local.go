package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/ayurchat/internal/models"
	"github.com/xhad/ayurchat/internal/types"
	_ "modernc.org/sqlite"
)

// IndexFile is the database file inside the persist directory.
const IndexFile = "index.db"

const localSchema = `
	CREATE TABLE IF NOT EXISTS chunks (
		id        TEXT PRIMARY KEY,
		position  INTEGER NOT NULL,
		content   TEXT NOT NULL,
		source    TEXT,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_position ON chunks(position);
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

type LocalConfig struct {
	Dir            string
	BatchSize      int
	EmbeddingModel string
}

// LocalBackend persists an index as a SQLite database in a directory.
type LocalBackend struct {
	config   LocalConfig
	embedder embeddings.Embedder
}

var _ types.Backend = (*LocalBackend)(nil)

func NewLocal(config LocalConfig, embedder embeddings.Embedder) *LocalBackend {
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	return &LocalBackend{
		config:   config,
		embedder: embedder,
	}
}

func (b *LocalBackend) Location() string {
	return b.config.Dir
}

// Exists reports whether the directory holds an index database. A missing or
// empty directory counts as absent.
func (b *LocalBackend) Exists(ctx context.Context) (bool, error) {
	info, err := os.Stat(filepath.Join(b.config.Dir, IndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat index: %w", err)
	}
	return !info.IsDir(), nil
}

// Build embeds docs into a database in a sibling temp directory and renames
// it over the persist directory once complete.
func (b *LocalBackend) Build(ctx context.Context, docs []schema.Document, meta models.IndexMeta, progress types.ProgressFunc) (types.Index, error) {
	dir := filepath.Clean(b.config.Dir)
	parent := filepath.Dir(dir)

	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	if err := checkReplaceable(dir); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-build-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	vectors, err := embedAll(ctx, b.embedder, documentTexts(docs), b.config.BatchSize, progress)
	if err != nil {
		return nil, err
	}

	db, err := openSQLite(filepath.Join(tmp, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}

	meta.EmbeddingModel = b.config.EmbeddingModel
	meta.Chunks = len(docs)
	if err := writeLocal(ctx, db, docs, vectors, meta); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to close index: %w", ErrUnwritable, err)
	}

	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	committed = true

	return b.Load(ctx)
}

// Load opens the stored index and reads all vectors into memory.
func (b *LocalBackend) Load(ctx context.Context) (types.Index, error) {
	path := filepath.Join(b.config.Dir, IndexFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, b.config.Dir)
		}
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	idx := &LocalIndex{
		db:        db,
		embedder:  b.embedder,
		batchSize: b.config.BatchSize,
	}
	if err := idx.load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if idx.meta.EmbeddingModel != b.config.EmbeddingModel {
		db.Close()
		return nil, fmt.Errorf("%w: stored %q, configured %q",
			ErrEmbedderMismatch, idx.meta.EmbeddingModel, b.config.EmbeddingModel)
	}

	return idx, nil
}

// LocalIndex is an open local index. Vectors are kept in memory and searched
// by brute-force cosine similarity.
type LocalIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	embedder  embeddings.Embedder
	batchSize int
	meta      models.IndexMeta
	docs      []schema.Document
	vectors   [][]float32
}

var _ types.Index = (*LocalIndex)(nil)

func (idx *LocalIndex) load(ctx context.Context) error {
	var raw string
	err := idx.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'index'`).Scan(&raw)
	if err != nil {
		return fmt.Errorf("failed to read index meta: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &idx.meta); err != nil {
		return fmt.Errorf("failed to parse index meta: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `SELECT id, position, content, source, embedding FROM chunks ORDER BY position`)
	if err != nil {
		return fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, content string
			source      sql.NullString
			position    int
			blob        []byte
		)
		if err := rows.Scan(&id, &position, &content, &source, &blob); err != nil {
			return fmt.Errorf("failed to scan chunk: %w", err)
		}
		vector, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", id, err)
		}
		idx.docs = append(idx.docs, newChunkDocument(id, position, content, source.String))
		idx.vectors = append(idx.vectors, vector)
	}

	return rows.Err()
}

func (idx *LocalIndex) Meta() models.IndexMeta {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.meta
}

func (idx *LocalIndex) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs), nil
}

// AddDocuments implements vectorstores.VectorStore.
func (idx *LocalIndex) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	embedder := idx.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}

	if opts.Deduplicater != nil {
		kept := docs[:0:0]
		for _, doc := range docs {
			if !opts.Deduplicater(ctx, doc) {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) == 0 {
		return nil, nil
	}

	vectors, err := embedAll(ctx, embedder, documentTexts(docs), idx.batchSize, nil)
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	next := len(idx.docs)
	stored := make([]schema.Document, len(docs))
	for i, doc := range docs {
		stored[i] = newChunkDocument(documentID(doc), metaInt(doc, "position", next+i),
			sanitizeUTF8(doc.PageContent), metaString(doc, "source"))
	}

	meta := idx.meta
	meta.Chunks += len(stored)
	if err := writeLocal(ctx, idx.db, stored, vectors, meta); err != nil {
		return nil, err
	}

	ids := make([]string, len(stored))
	for i, doc := range stored {
		ids[i] = doc.Metadata["id"].(string)
	}
	idx.meta = meta
	idx.docs = append(idx.docs, stored...)
	idx.vectors = append(idx.vectors, vectors...)

	return ids, nil
}

// SimilaritySearch implements vectorstores.VectorStore.
func (idx *LocalIndex) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	embedder := idx.embedder
	if opts.Embedder != nil {
		embedder = opts.Embedder
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := nearest(vector, idx.vectors, numDocuments, opts.ScoreThreshold)
	results := make([]schema.Document, 0, len(matches))
	for _, m := range matches {
		doc := idx.docs[m.index]
		results = append(results, schema.Document{
			PageContent: doc.PageContent,
			Metadata:    doc.Metadata,
			Score:       m.score,
		})
	}

	return results, nil
}

func (idx *LocalIndex) Close() error {
	return idx.db.Close()
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

func writeLocal(ctx context.Context, db *sql.DB, docs []schema.Document, vectors [][]float32, meta models.IndexMeta) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, position, content, source, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		_, err := stmt.ExecContext(ctx,
			documentID(doc),
			metaInt(doc, "position", i),
			sanitizeUTF8(doc.PageContent),
			metaString(doc, "source"),
			encodeVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode index meta: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('index', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write index meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkReplaceable fails when dir exists and holds anything, since a rename
// over it would discard data that is not an index.
func checkReplaceable(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%w: %s is not empty", ErrUnwritable, dir)
	}
	return nil
}

func newChunkDocument(id string, position int, content, source string) schema.Document {
	return schema.Document{
		PageContent: content,
		Metadata: map[string]any{
			"id":       id,
			"position": position,
			"source":   source,
		},
	}
}
