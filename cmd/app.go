package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/ayurchat/internal/logger"
	"github.com/xhad/ayurchat/internal/types"
	"github.com/xhad/ayurchat/pkg/chat"
	cfgPkg "github.com/xhad/ayurchat/pkg/config"
	"github.com/xhad/ayurchat/pkg/indexer"
	"github.com/xhad/ayurchat/pkg/llm"
	"github.com/xhad/ayurchat/pkg/processor"
	"github.com/xhad/ayurchat/pkg/source"
	"github.com/xhad/ayurchat/pkg/store"
)

// app holds everything a surface needs once startup has succeeded.
type app struct {
	config   *cfgPkg.Config
	embedder *llm.Embedder
	backend  types.Backend
	indexer  *indexer.Indexer
	index    types.Index
	engine   *llm.ChatEngine
}

// newApp loads and validates configuration, then ensures the index. Every
// error it returns is fatal.
func newApp(ctx context.Context, configPath string) (*app, error) {
	config, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Err(); err != nil {
		return nil, err
	}

	a := &app{config: config}
	if err := a.ensureIndex(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = llm.NewWithConfig(llm.ChatConfig{
		Provider:    config.LLM.Provider,
		Model:       config.LLM.Model,
		Temperature: config.LLM.Temperature,
		MaxTokens:   config.LLM.MaxTokens,
		APIKey:      config.LLM.APIKey,
		BaseURL:     config.LLM.BaseURL,
		Safety:      config.LLM.Safety,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	return a, nil
}

func (a *app) ensureIndex(ctx context.Context) error {
	config := a.config

	embedder, err := llm.NewEmbedder(ctx, llm.EmbedderConfig{
		Provider:  config.Embedding.Provider,
		Model:     config.Embedding.Model,
		APIKey:    config.LLM.APIKey,
		BaseURL:   config.Embedding.BaseURL,
		BatchSize: config.Embedding.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.embedder = embedder

	a.backend, err = store.New(ctx, store.StoreConfig{
		Backend:        config.Index.Backend,
		Dir:            config.Index.PersistDir,
		ConnString:     config.Index.DBURL,
		TableName:      config.Index.TableName,
		VectorDim:      config.Index.VectorDim,
		BatchSize:      config.Embedding.BatchSize,
		EmbeddingModel: embedder.Name(),
	}, embedder)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}

	src, err := source.New(config.Source.Path, source.Options{
		Password:  config.Source.Password,
		MaxDepth:  config.Source.MaxDepth,
		RateLimit: config.Source.RateLimit,
		Pebblo: source.PebbloConfig{
			URL:   config.Source.Pebblo.URL,
			Name:  config.Source.Pebblo.Name,
			Owner: config.Source.Pebblo.Owner,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", indexer.ErrSourceUnreadable, err)
	}

	progress := &indexProgress{out: os.Stderr}
	a.indexer, err = indexer.NewWithConfig(indexer.IndexerConfig{
		Source:     src,
		SourceName: src.Path(),
		Backend:    a.backend,
		Processor: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    config.Processor.ChunkSize,
			ChunkOverlap: config.Processor.ChunkOverlap,
			Source:       src.Path(),
		}),
		OnState:    progress.state(a.backend.Location()),
		OnProgress: progress.update,
	})
	if err != nil {
		return err
	}

	a.index, err = a.indexer.EnsureIndex(ctx)
	progress.finish()
	return err
}

func (a *app) pipeline() (*chat.RetrievalPipeline, error) {
	return chat.NewRetrievalPipeline(chat.PipelineConfig{
		LLM:   a.engine.Model(),
		Index: a.index,
		TopK:  a.config.Chat.TopK,
	})
}

func (a *app) newSession() (*chat.Session, error) {
	p, err := a.pipeline()
	if err != nil {
		return nil, err
	}
	return chat.NewSession(chat.SessionConfig{
		Pipeline:     p,
		SafetySuffix: a.config.Chat.SafetySuffix,
		Timeout:      a.config.Chat.Timeout,
	})
}

func (a *app) summary() string {
	meta := a.index.Meta()
	return fmt.Sprintf("%d chunks · %s · %s", meta.Chunks, a.engine.Config().Model, meta.EmbeddingModel)
}

func (a *app) Close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			logger.Warn("failed to close index: %v", err)
		}
	}
	if pg, ok := a.backend.(*store.PGVectorBackend); ok && a.index == nil {
		pg.Close()
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}

// indexProgress renders index initialization on the terminal.
type indexProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func (p *indexProgress) state(location string) func(indexer.State) {
	return func(s indexer.State) {
		switch s {
		case indexer.Building:
			fmt.Fprintln(p.out, color.BlueString("No index at %s, building it from the source document", location))
		case indexer.Loading:
			logger.Info("loading index from %s", location)
		case indexer.Ready:
			fmt.Fprintln(p.out, color.GreenString("✓ Index ready"))
		}
	}
}

func (p *indexProgress) update(done, total int) {
	if p.bar == nil {
		p.bar = getProgressBar(p.out, total, "🧮 Embedding chunks...")
	}
	p.bar.Set(done)
}

func (p *indexProgress) finish() {
	if p.bar != nil {
		p.bar.Finish()
		fmt.Fprintln(p.out)
	}
}

func getProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(out io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
