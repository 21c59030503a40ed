package models

import "time"

// Chunk is one window of extracted corpus text.
type Chunk struct {
	ID       string
	Text     string
	Position int
	Source   string
}

// IndexMeta describes how a persisted index was built.
type IndexMeta struct {
	EmbeddingModel string    `json:"embedding_model"`
	ChunkSize      int       `json:"chunk_size"`
	ChunkOverlap   int       `json:"chunk_overlap"`
	Chunks         int       `json:"chunks"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}
