package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validThresholds = map[string]bool{
	"unspecified":      true,
	"low_and_above":    true,
	"medium_and_above": true,
	"only_high":        true,
	"none":             true,
}

var validCategories = map[string]bool{
	"dangerous_content": true,
	"harassment":        true,
	"hate_speech":       true,
	"sexually_explicit": true,
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// LLM
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: fmt.Sprintf("%s is not set", c.LLM.APIKeyEnv),
			})
		}
	case "ollama":
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	for category, threshold := range c.LLM.Safety {
		if !validCategories[strings.ToLower(category)] {
			errors = append(errors, ValidationError{
				Field:   "llm.safety",
				Message: fmt.Sprintf("unknown harm category %q", category),
			})
		}
		if !validThresholds[strings.ToLower(threshold)] {
			errors = append(errors, ValidationError{
				Field:   "llm.safety",
				Message: fmt.Sprintf("unknown threshold %q for %s", threshold, category),
			})
		}
	}

	// Embedding
	if c.Embedding.Provider != "gemini" && c.Embedding.Provider != "ollama" {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embedding.Provider),
		})
	}
	if c.Embedding.Provider == "gemini" && c.LLM.Provider != "gemini" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("gemini embeddings need %s", c.LLM.APIKeyEnv),
		})
	}
	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Index
	switch c.Index.Backend {
	case "local":
		if c.Index.PersistDir == "" {
			errors = append(errors, ValidationError{
				Field:   "index.persist_dir",
				Message: "persist_dir is required",
			})
		}
	case "pgvector":
		if _, err := url.Parse(c.Index.DBURL); err != nil || c.Index.DBURL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.db_url",
				Message: "invalid database URL",
			})
		}
		if c.Index.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "index.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Index.Backend),
		})
	}

	// Source
	if c.Source.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "source.path",
			Message: "source path is required",
		})
	}
	if c.Source.Pebblo.URL != "" {
		if _, err := url.ParseRequestURI(c.Source.Pebblo.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "source.pebblo.url",
				Message: "invalid Pebblo daemon URL",
			})
		}
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Chat
	if c.Chat.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "chat.top_k",
			Message: "top_k must be positive",
		})
	}
	if c.Chat.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "chat.timeout",
			Message: "timeout must be positive",
		})
	}

	return errors
}

// Err joins the validation errors into a single error, or returns nil.
func (c *Config) Err() error {
	verrs := c.Validate()
	if len(verrs) == 0 {
		return nil
	}
	errs := make([]error, 0, len(verrs))
	for _, v := range verrs {
		errs = append(errs, v)
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}
