package processor_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/ayurchat/pkg/processor"
)

func TestProcessor_SplitText(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	tests := []struct {
		name    string
		length  int
		windows [][2]int
	}{
		{name: "empty", length: 0},
		{name: "single short", length: 120, windows: [][2]int{{0, 120}}},
		{name: "exact size", length: 10000, windows: [][2]int{{0, 10000}}},
		{name: "one over", length: 10001, windows: [][2]int{{0, 10000}, {9950, 10001}}},
		{name: "twenty thousand", length: 20000, windows: [][2]int{{0, 10000}, {9950, 19950}, {19900, 20000}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := sequence(tt.length)
			chunks, err := p.SplitText(text)
			require.NoError(t, err)
			require.Len(t, chunks, len(tt.windows))

			runes := []rune(text)
			for i, w := range tt.windows {
				assert.Equal(t, string(runes[w[0]:w[1]]), chunks[i], "window %d", i)
			}
		})
	}
}

func TestProcessor_WindowInvariants(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: 7})
	text := sequence(1234)

	chunks, err := p.SplitText(text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
		if i > 0 {
			prev := []rune(chunks[i-1])
			cur := []rune(c)
			assert.Equal(t, string(prev[len(prev)-7:]), string(cur[:7]), "overlap at %d", i)
		}
	}

	assert.Equal(t, text, processor.Reassemble(chunks, 7))
}

func TestProcessor_MultibyteText(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4, ChunkOverlap: 1})

	chunks, err := p.SplitText("वात पित्त")
	require.NoError(t, err)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 4)
	}
	assert.Equal(t, "वात पित्त", processor.Reassemble(chunks, 1))
}

func TestProcessor_InvalidWindow(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 10})

	_, err := p.SplitText("anything")
	assert.ErrorIs(t, err, processor.ErrInvalidWindow)
}

func TestProcessor_Process(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    12,
		ChunkOverlap: 2,
		Source:       "book.pdf",
	})

	pages := []schema.Document{
		{PageContent: "Kapha dosha"},
		{PageContent: "Pitta dosha"},
	}
	assert.Equal(t, "Kapha dosha\n\nPitta dosha", processor.JoinPages(pages))

	chunks, err := p.Process(pages)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	ids := map[string]bool{}
	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, "book.pdf", c.Source)
		assert.NotEmpty(t, c.ID)
		ids[c.ID] = true
	}
	assert.Len(t, ids, 3)

	docs := processor.Documents(chunks)
	require.Len(t, docs, 3)
	assert.Equal(t, chunks[1].Text, docs[1].PageContent)
	assert.Equal(t, 1, docs[1].Metadata["position"])
	assert.Equal(t, "book.pdf", docs[1].Metadata["source"])
}

func TestProcessor_ZeroOverlap(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 5})
	assert.Equal(t, 0, p.ChunkOverlap())

	chunks, err := p.SplitText("abcdefghijkl")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcde", "fghij", "kl"}, chunks)

	defaults := processor.NewWithConfig(processor.ProcessorConfig{})
	assert.Equal(t, processor.DefaultChunkSize, defaults.ChunkSize())
	assert.Equal(t, processor.DefaultChunkOverlap, defaults.ChunkOverlap())
}

func TestProcessor_ProcessEmpty(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	chunks, err := p.Process(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// sequence builds n distinct-looking characters so windows can be compared.
func sequence(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}
