// Package indexer builds the vector index for a corpus on first run and loads
// it on every run after.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/xhad/ayurchat/internal/logger"
	"github.com/xhad/ayurchat/internal/models"
	"github.com/xhad/ayurchat/internal/types"
	"github.com/xhad/ayurchat/pkg/processor"
	"github.com/xhad/ayurchat/pkg/store"
)

// State is a step of index initialization. An indexer moves either
// Absent → Building → Ready or Present → Loading → Ready, or ends in Failed.
type State int

const (
	Unknown State = iota
	Absent
	Building
	Present
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Building:
		return "building"
	case Present:
		return "present"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type IndexerConfig struct {
	Source     documentloaders.Loader
	SourceName string
	Backend    types.Backend
	Processor  processor.Processor

	OnState    func(State)
	OnProgress types.ProgressFunc
}

// Indexer owns one source/location pair.
type Indexer struct {
	config IndexerConfig

	mu    sync.Mutex
	state State
	index types.Index
	built bool
	err   error
}

func NewWithConfig(config IndexerConfig) (*Indexer, error) {
	if config.Source == nil {
		return nil, errors.New("indexer needs a source")
	}
	if config.Backend == nil {
		return nil, errors.New("indexer needs a backend")
	}
	if config.Processor == (processor.Processor{}) {
		config.Processor = processor.NewWithConfig(processor.ProcessorConfig{Source: config.SourceName})
	}

	return &Indexer{config: config}, nil
}

// EnsureIndex returns the index, building it if the location holds none.
// Later calls return the same handle, or the same error, without any work.
func (ix *Indexer) EnsureIndex(ctx context.Context) (types.Index, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.index != nil || ix.err != nil {
		return ix.index, ix.err
	}

	index, err := ix.ensure(ctx)
	if err != nil {
		ix.err = err
		ix.setState(Failed)
		return nil, err
	}

	ix.index = index
	ix.setState(Ready)
	return index, nil
}

// State returns the current initialization state.
func (ix *Indexer) State() State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.state
}

// Built reports whether this indexer built the index rather than loading it.
func (ix *Indexer) Built() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.built
}

func (ix *Indexer) ensure(ctx context.Context) (types.Index, error) {
	location := ix.config.Backend.Location()

	exists, err := ix.config.Backend.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistUnwritable, err)
	}

	if exists {
		ix.setState(Present)
		ix.setState(Loading)
		logger.Info("loading index from %s", location)

		index, err := ix.config.Backend.Load(ctx)
		if err != nil {
			return nil, classify(err, "failed to load index")
		}
		return index, nil
	}

	ix.setState(Absent)
	ix.setState(Building)
	logger.Info("building index at %s", location)

	index, err := ix.build(ctx)
	if err != nil {
		return nil, err
	}
	ix.built = true
	return index, nil
}

func (ix *Indexer) build(ctx context.Context) (types.Index, error) {
	pages, err := ix.config.Source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, ix.config.SourceName, err)
	}

	if strings.TrimSpace(processor.JoinPages(pages)) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, ix.config.SourceName)
	}

	chunks, err := ix.config.Processor.Process(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to split source: %w", err)
	}
	logger.Debug("split %d pages into %d chunks", len(pages), len(chunks))

	meta := models.IndexMeta{
		ChunkSize:    ix.config.Processor.ChunkSize(),
		ChunkOverlap: ix.config.Processor.ChunkOverlap(),
		Source:       ix.config.SourceName,
		CreatedAt:    time.Now().UTC(),
	}

	index, err := ix.config.Backend.Build(ctx, processor.Documents(chunks), meta, ix.config.OnProgress)
	if err != nil {
		return nil, classify(err, "failed to build index")
	}
	return index, nil
}

func (ix *Indexer) setState(s State) {
	ix.state = s
	logger.Debug("index state: %s", s)
	if ix.config.OnState != nil {
		ix.config.OnState(s)
	}
}

// classify maps backend failures onto the indexer's error kinds.
func classify(err error, msg string) error {
	switch {
	case errors.Is(err, store.ErrEmbedderMismatch):
		return fmt.Errorf("%s: %w", msg, err)
	case errors.Is(err, store.ErrEmbedding):
		return fmt.Errorf("%w: %w", ErrEmbedding, err)
	case errors.Is(err, store.ErrUnwritable):
		return fmt.Errorf("%w: %w", ErrPersistUnwritable, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
