// Package source opens the corpus a chat index is built from.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/ayurchat/pkg/scraper"
)

var ErrUnsupported = errors.New("unsupported source type")

type Options struct {
	Password  string // PDF password, if any
	MaxDepth  int
	RateLimit float64
	Pebblo    PebbloConfig
}

// Source loads the pages of one corpus document.
type Source struct {
	path string
	opts Options
}

var _ documentloaders.Loader = (*Source)(nil)

// New returns a Source for a local .pdf, .txt or .md file, or an http(s) URL.
func New(path string, opts Options) (*Source, error) {
	if path == "" {
		return nil, errors.New("source path is empty")
	}
	if _, err := kindOf(path); err != nil {
		return nil, err
	}
	return &Source{path: path, opts: opts}, nil
}

func (s *Source) Path() string {
	return s.path
}

// Load returns the source's pages in reading order. When Pebblo reporting is
// configured, a successful load is reported to the daemon.
func (s *Source) Load(ctx context.Context) ([]schema.Document, error) {
	k, _ := kindOf(s.path)
	docs, err := s.load(ctx, k)
	if err != nil {
		return nil, err
	}
	reportLoad(ctx, s.opts.Pebblo, s.path, k, docs)
	return docs, nil
}

func (s *Source) load(ctx context.Context, k kind) ([]schema.Document, error) {
	switch k {
	case kindURL:
		crawler, err := scraper.NewWithConfig(scraper.ScraperConfig{
			BaseURL:   s.path,
			MaxDepth:  s.opts.MaxDepth,
			RateLimit: s.opts.RateLimit,
		})
		if err != nil {
			return nil, err
		}
		return crawler.Load(ctx)
	case kindPDF:
		return s.loadPDF(ctx)
	default:
		return s.loadText(ctx)
	}
}

// LoadAndSplit implements documentloaders.Loader.
func (s *Source) LoadAndSplit(ctx context.Context, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	docs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return textsplitter.SplitDocuments(splitter, docs)
}

func (s *Source) loadPDF(ctx context.Context) (docs []schema.Document, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var opts []documentloaders.PDFOptions
	if s.opts.Password != "" {
		opts = append(opts, documentloaders.WithPassword(s.opts.Password))
	}

	// The PDF reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	docs, err = documentloaders.NewPDF(f, info.Size(), opts...).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}
	for i := range docs {
		docs[i].Metadata["source"] = s.path
	}
	return docs, nil
}

func (s *Source) loadText(ctx context.Context) ([]schema.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Metadata["source"] = s.path
	}
	return docs, nil
}

type kind int

const (
	kindPDF kind = iota
	kindText
	kindURL
)

func kindOf(path string) (kind, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return kindURL, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return kindPDF, nil
	case ".txt", ".md":
		return kindText, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
}
