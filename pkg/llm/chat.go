package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	BaseURL     string // Ollama server URL
	Safety      map[string]string
}

// ChatEngine owns the chat model used to answer questions.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	close  func() error
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "gemini"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}

	switch config.Provider {
	case "gemini":
		if config.Model == "" {
			config.Model = "gemini-1.5-pro"
		}
		if config.Safety == nil {
			config.Safety = DefaultSafety()
		}

		gemini, err := NewGemini(context.Background(), GeminiConfig{
			APIKey:      config.APIKey,
			Model:       config.Model,
			Temperature: config.Temperature,
			MaxTokens:   config.MaxTokens,
			Safety:      config.Safety,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return &ChatEngine{config: config, llm: gemini, close: gemini.Close}, nil

	case "ollama":
		if config.Model == "" {
			config.Model = "mistral" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}

		llm, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return &ChatEngine{config: config, llm: &defaults{Model: llm, config: config}}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.Provider)
	}
}

// Model returns the underlying langchaingo model.
func (ce *ChatEngine) Model() llms.Model {
	return ce.llm
}

// Config returns the effective configuration after defaults.
func (ce *ChatEngine) Config() ChatConfig {
	return ce.config
}

func (ce *ChatEngine) Close() error {
	if ce.close == nil {
		return nil
	}
	return ce.close()
}

// defaults prepends the configured sampling options to every call so
// callers that pass none still get them. Later options win.
type defaults struct {
	llms.Model
	config ChatConfig
}

func (d *defaults) options(options []llms.CallOption) []llms.CallOption {
	base := []llms.CallOption{
		llms.WithTemperature(d.config.Temperature),
		llms.WithMaxTokens(d.config.MaxTokens),
	}
	return append(base, options...)
}

func (d *defaults) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return d.Model.GenerateContent(ctx, messages, d.options(options)...)
}

func (d *defaults) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, d, prompt, options...)
}
