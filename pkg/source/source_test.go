package source_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ayurchat/pkg/processor"
	"github.com/xhad/ayurchat/pkg/source"
)

func TestNew(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"docs/book.pdf", false},
		{"docs/BOOK.PDF", false},
		{"notes.txt", false},
		{"README.md", false},
		{"https://example.com/guide", false},
		{"book.epub", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := source.New(tt.path, source.Options{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := source.New("book.epub", source.Options{})
	assert.ErrorIs(t, err, source.ErrUnsupported)
}

func TestLoadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Triphala before bed."), 0o644))

	src, err := source.New(path, source.Options{})
	require.NoError(t, err)

	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Triphala before bed.", docs[0].PageContent)
	assert.Equal(t, path, docs[0].Metadata["source"])
}

func TestLoadAndSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("abcdefghijklmnopqrstuvwxyz"), 0o644))

	src, err := source.New(path, source.Options{})
	require.NoError(t, err)

	splitter := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 2})
	docs, err := src.LoadAndSplit(context.Background(), splitter)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "abcdefghij", docs[0].PageContent)
	assert.Equal(t, "ijklmnopqr", docs[1].PageContent)
	assert.Equal(t, "qrstuvwxyz", docs[2].PageContent)
}

func TestLoadMissingFile(t *testing.T) {
	src, err := source.New(filepath.Join(t.TempDir(), "absent.pdf"), source.Options{})
	require.NoError(t, err)

	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	src, err := source.New(path, source.Options{})
	require.NoError(t, err)

	_, err = src.Load(context.Background())
	assert.Error(t, err)
}

func TestLoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Guide</title></head><body><main>Oil pulling.</main></body></html>`))
	}))
	defer server.Close()

	src, err := source.New(server.URL, source.Options{MaxDepth: 1, RateLimit: 100})
	require.NoError(t, err)

	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Oil pulling.", docs[0].PageContent)
}

func TestLoad_ReportsToPebblo(t *testing.T) {
	var (
		gotPath string
		report  map[string]any
	)
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&report)
		w.WriteHeader(http.StatusOK)
	}))
	defer daemon.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Abhyanga with sesame oil."), 0o644))

	src, err := source.New(path, source.Options{Pebblo: source.PebbloConfig{URL: daemon.URL, Owner: "clinic"}})
	require.NoError(t, err)

	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "/v1/loader/doc", gotPath)
	assert.Equal(t, source.DefaultPebbloName, report["name"])
	assert.Equal(t, "clinic", report["owner"])
	assert.Equal(t, true, report["loading_end"])
	assert.NotEmpty(t, report["load_id"])

	details := report["loader_details"].(map[string]any)
	assert.Equal(t, "TextLoader", details["loader"])
	assert.Equal(t, path, details["source_path"])

	reported := report["docs"].([]any)
	require.Len(t, reported, 1)
	assert.Equal(t, "Abhyanga with sesame oil.", reported[0].(map[string]any)["doc"])
}

func TestLoad_PebbloDownDoesNotFailLoad(t *testing.T) {
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := daemon.URL
	daemon.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Nasya in the morning."), 0o644))

	src, err := source.New(path, source.Options{Pebblo: source.PebbloConfig{URL: url}})
	require.NoError(t, err)

	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
