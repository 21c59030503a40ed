package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/ayurchat/internal/types"
)

const DefaultTopK = 4

type PipelineConfig struct {
	LLM            llms.Model
	Index          vectorstores.VectorStore
	TopK           int
	ScoreThreshold float32
}

// RetrievalPipeline retrieves the top-k chunks for a query and stuffs them,
// together with the query, into one completion call.
type RetrievalPipeline struct {
	chain chains.Chain
}

var _ types.Pipeline = (*RetrievalPipeline)(nil)

func NewRetrievalPipeline(config PipelineConfig) (*RetrievalPipeline, error) {
	if config.LLM == nil {
		return nil, errors.New("pipeline needs an LLM")
	}
	if config.Index == nil {
		return nil, errors.New("pipeline needs an index")
	}
	if config.TopK == 0 {
		config.TopK = DefaultTopK
	}

	var opts []vectorstores.Option
	if config.ScoreThreshold > 0 {
		opts = append(opts, vectorstores.WithScoreThreshold(config.ScoreThreshold))
	}

	retriever := vectorstores.ToRetriever(config.Index, config.TopK, opts...)
	return &RetrievalPipeline{
		chain: chains.NewRetrievalQAFromLLM(config.LLM, retriever),
	}, nil
}

func (p *RetrievalPipeline) Answer(ctx context.Context, query string, onToken func(string)) (string, error) {
	var opts []chains.ChainCallOption
	if onToken != nil {
		opts = append(opts, chains.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onToken(string(chunk))
			return nil
		}))
	}

	answer, err := chains.Run(ctx, p.chain, query, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to answer: %w", err)
	}
	return answer, nil
}
