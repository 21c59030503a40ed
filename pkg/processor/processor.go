package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/ayurchat/internal/models"
)

const (
	DefaultChunkSize    = 10000
	DefaultChunkOverlap = 50

	// PageSeparator joins extracted pages before splitting.
	PageSeparator = "\n\n"
)

var ErrInvalidWindow = errors.New("chunk overlap must be non-negative and less than chunk size")

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Source       string
}

// Processor splits extracted text into fixed-size windows. Consecutive
// windows share exactly ChunkOverlap characters; sizes count runes.
type Processor struct {
	config ProcessorConfig
}

var _ textsplitter.TextSplitter = Processor{}

// NewWithConfig fills in the default window when ChunkSize is unset. A zero
// ChunkOverlap alongside an explicit ChunkSize means no overlap.
func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = DefaultChunkOverlap
		}
	}

	return Processor{
		config: config,
	}
}

// ChunkSize returns the configured window size.
func (p Processor) ChunkSize() int { return p.config.ChunkSize }

// ChunkOverlap returns the configured overlap.
func (p Processor) ChunkOverlap() int { return p.config.ChunkOverlap }

// SplitText implements textsplitter.TextSplitter.
func (p Processor) SplitText(text string) ([]string, error) {
	size, overlap := p.config.ChunkSize, p.config.ChunkOverlap
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks, nil
}

// Process joins the loaded pages and splits them into positioned chunks.
func (p Processor) Process(pages []schema.Document) ([]models.Chunk, error) {
	texts, err := p.SplitText(JoinPages(pages))
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, models.Chunk{
			ID:       uuid.New().String(),
			Text:     text,
			Position: i,
			Source:   p.config.Source,
		})
	}

	return chunks, nil
}

// JoinPages concatenates page contents with a blank line between pages.
func JoinPages(pages []schema.Document) string {
	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		parts = append(parts, page.PageContent)
	}
	return strings.Join(parts, PageSeparator)
}

// Documents converts chunks into vector store documents.
func Documents(chunks []models.Chunk) []schema.Document {
	docs := make([]schema.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, schema.Document{
			PageContent: c.Text,
			Metadata: map[string]any{
				"id":       c.ID,
				"position": c.Position,
				"source":   c.Source,
			},
		})
	}
	return docs
}

// Reassemble drops the overlapping prefix of every chunk after the first and
// concatenates the rest, returning the text the chunks were split from.
func Reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		if overlap < len(r) {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}
