package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var ErrMissingAPIKey = errors.New("missing Google API key")

// Harm categories accepted in a safety policy.
var harmCategories = map[string]genai.HarmCategory{
	"dangerous_content": genai.HarmCategoryDangerousContent,
	"harassment":        genai.HarmCategoryHarassment,
	"hate_speech":       genai.HarmCategoryHateSpeech,
	"sexually_explicit": genai.HarmCategorySexuallyExplicit,
}

var harmThresholds = map[string]genai.HarmBlockThreshold{
	"unspecified":      genai.HarmBlockUnspecified,
	"low_and_above":    genai.HarmBlockLowAndAbove,
	"medium_and_above": genai.HarmBlockMediumAndAbove,
	"only_high":        genai.HarmBlockOnlyHigh,
	"none":             genai.HarmBlockNone,
}

// DefaultSafety relaxes only the dangerous content filter, which otherwise
// blocks ordinary wellness advice.
func DefaultSafety() map[string]string {
	return map[string]string{"dangerous_content": "none"}
}

// SafetySettings converts a category → threshold policy into genai settings.
// Categories missing from the policy keep the service default.
func SafetySettings(policy map[string]string) ([]*genai.SafetySetting, error) {
	names := make([]string, 0, len(policy))
	for name := range policy {
		names = append(names, name)
	}
	sort.Strings(names)

	settings := make([]*genai.SafetySetting, 0, len(policy))
	for _, name := range names {
		category, ok := harmCategories[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown harm category %q", name)
		}
		threshold, ok := harmThresholds[strings.ToLower(policy[name])]
		if !ok {
			return nil, fmt.Errorf("unknown threshold %q for %s", policy[name], name)
		}
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: threshold,
		})
	}
	return settings, nil
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	Safety         map[string]string
}

// Gemini is a langchaingo model and embedder client backed by the Gemini API.
type Gemini struct {
	config GeminiConfig
	client *genai.Client
	safety []*genai.SafetySetting
}

var (
	_ llms.Model                = (*Gemini)(nil)
	_ embeddings.EmbedderClient = (*Gemini)(nil)
)

func NewGemini(ctx context.Context, config GeminiConfig) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-pro"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "embedding-001"
	}
	if config.Safety == nil {
		config.Safety = DefaultSafety()
	}

	safety, err := SafetySettings(config.Safety)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		config: config,
		client: client,
		safety: safety,
	}, nil
}

// Call implements llms.Model.
func (g *Gemini) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

// GenerateContent implements llms.Model. System messages become the system
// instruction; the last message is sent and the rest form the chat history.
func (g *Gemini) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	system, history, err := toGenaiContents(messages)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, errors.New("no messages to send")
	}

	model := g.model(opts)
	model.SystemInstruction = system

	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]

	if opts.StreamingFunc != nil {
		return streamFromIterator(ctx, cs.SendMessageStream(ctx, last.Parts...), opts.StreamingFunc)
	}

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return toContentResponse(resp.Candidates)
}

// CreateEmbedding implements embeddings.EmbedderClient.
func (g *Gemini) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.config.EmbeddingModel)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding failed: %w", err)
		}
		for _, e := range resp.Embeddings {
			vectors = append(vectors, e.Values)
		}
	}

	return vectors, nil
}

// Close releases the underlying client connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// maxEmbedBatch is the service limit on contents per batch embed request.
const maxEmbedBatch = 100

func (g *Gemini) model(opts llms.CallOptions) *genai.GenerativeModel {
	name := g.config.Model
	if opts.Model != "" {
		name = opts.Model
	}
	model := g.client.GenerativeModel(name)
	model.SafetySettings = g.safety

	temperature := g.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	model.SetTemperature(float32(temperature))

	maxTokens := g.config.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	if opts.TopK > 0 {
		model.SetTopK(int32(opts.TopK))
	}
	if opts.TopP > 0 {
		model.SetTopP(float32(opts.TopP))
	}
	if len(opts.StopWords) > 0 {
		model.StopSequences = opts.StopWords
	}
	return model
}

func toGenaiContents(messages []llms.MessageContent) (*genai.Content, []*genai.Content, error) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		parts := make([]genai.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p := p.(type) {
			case llms.TextContent:
				parts = append(parts, genai.Text(p.Text))
			case llms.BinaryContent:
				parts = append(parts, genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
			default:
				return nil, nil, fmt.Errorf("unsupported content part %T", p)
			}
		}

		switch m.Role {
		case schema.ChatMessageTypeSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, parts...)
		case schema.ChatMessageTypeAI:
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case schema.ChatMessageTypeHuman, schema.ChatMessageTypeGeneric:
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	return system, contents, nil
}

func toContentResponse(candidates []*genai.Candidate) (*llms.ContentResponse, error) {
	if len(candidates) == 0 {
		return nil, errors.New("gemini returned no candidates")
	}

	resp := &llms.ContentResponse{}
	for _, c := range candidates {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{
			Content:    candidateText(c),
			StopReason: c.FinishReason.String(),
		})
	}
	return resp, nil
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// streamFromIterator forwards text parts to fn as they arrive and returns the
// merged completion. An error from fn stops forwarding but not collection.
func streamFromIterator(ctx context.Context, iter responseIterator, fn func(context.Context, []byte) error) (*llms.ContentResponse, error) {
	merged := &genai.Candidate{Content: &genai.Content{}}
	forward := true

	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream failed: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}

		c := resp.Candidates[0]
		merged.Content.Parts = append(merged.Content.Parts, c.Content.Parts...)
		merged.FinishReason = c.FinishReason

		if !forward {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok && t != "" {
				if fn(ctx, []byte(t)) != nil {
					forward = false
					break
				}
			}
		}
	}

	return toContentResponse([]*genai.Candidate{merged})
}
