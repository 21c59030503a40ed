package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ayurchat/pkg/llm"
)

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  llm.ChatConfig
		wantErr error
		errText string
	}{
		{
			name: "ollama",
			config: llm.ChatConfig{
				Provider:    "ollama",
				Model:       "testmodel",
				Temperature: 0.5,
				MaxTokens:   1000,
				BaseURL:     "http://localhost:1234",
			},
		},
		{
			name:    "gemini without key",
			config:  llm.ChatConfig{Provider: "gemini", Temperature: 0.7},
			wantErr: llm.ErrMissingAPIKey,
		},
		{
			name:    "bad temperature",
			config:  llm.ChatConfig{Provider: "ollama", Temperature: 3},
			errText: "temperature must be between 0 and 2",
		},
		{
			name:    "negative max tokens",
			config:  llm.ChatConfig{Provider: "ollama", MaxTokens: -1},
			errText: "max tokens cannot be negative",
		},
		{
			name:    "unknown provider",
			config:  llm.ChatConfig{Provider: "openai"},
			errText: `unknown LLM provider "openai"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.config)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				assert.EqualError(t, err, tt.errText)
			default:
				require.NoError(t, err)
				require.NotNil(t, engine)
				assert.NotNil(t, engine.Model())
				assert.NoError(t, engine.Close())
			}
		})
	}
}

func TestNewWithConfig_Defaults(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{Provider: "ollama"})
	require.NoError(t, err)

	cfg := engine.Config()
	assert.Equal(t, "mistral", cfg.Model)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, "http://localhost:11434", cfg.BaseURL)
}
