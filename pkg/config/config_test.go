package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("AYURCHAT_PERSIST_DIR", "")
	t.Setenv("AYURCHAT_SOURCE", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  model: "llama3"
  max_tokens: 1000
  temperature: 0.5
  safety:
    dangerous_content: "none"
    harassment: "only_high"

embedding:
  provider: "ollama"
  batch_size: 16

index:
  backend: "local"
  persist_dir: "/tmp/ayurchat/per_dir"

source:
  path: "docs/book.pdf"

processor:
  chunk_size: 500
  chunk_overlap: 20

chat:
  top_k: 6
  timeout: 45s

ui:
  streaming: false
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "only_high", config.LLM.Safety["harassment"])
	assert.Equal(t, "nomic-embed-text", config.Embedding.Model)
	assert.Equal(t, 16, config.Embedding.BatchSize)
	assert.Equal(t, "/tmp/ayurchat/per_dir", config.Index.PersistDir)
	assert.Equal(t, "docs/book.pdf", config.Source.Path)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, 20, config.Processor.ChunkOverlap)
	assert.Equal(t, 6, config.Chat.TopK)
	assert.Equal(t, 45*time.Second, config.Chat.Timeout)
	assert.Equal(t, DefaultSafetySuffix, config.Chat.SafetySuffix)
	assert.False(t, config.UI.Streaming)
}

func TestLoadConfig_ExplicitZeros(t *testing.T) {
	t.Setenv("AYURCHAT_PERSIST_DIR", "")
	t.Setenv("AYURCHAT_SOURCE", "")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configData := `
llm:
  temperature: 0
processor:
  chunk_overlap: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0.0, config.LLM.Temperature)
	assert.Equal(t, 0, config.Processor.ChunkOverlap)
	assert.Equal(t, 10000, config.Processor.ChunkSize)

	// absent keys still get their defaults
	configData = "llm:\n  model: \"gemini-1.5-flash\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err = LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0.7, config.LLM.Temperature)
	assert.Equal(t, 50, config.Processor.ChunkOverlap)
}

func TestDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")
	t.Setenv("AYURCHAT_PERSIST_DIR", "")
	t.Setenv("AYURCHAT_SOURCE", "")

	config, err := getDefaultConfig()
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, "gemini", config.LLM.Provider)
	assert.Equal(t, "gemini-1.5-pro", config.LLM.Model)
	assert.Equal(t, "test-key", config.LLM.APIKey)
	assert.Equal(t, map[string]string{"dangerous_content": "none"}, config.LLM.Safety)
	assert.Equal(t, "embedding-001", config.Embedding.Model)
	assert.Equal(t, filepath.Join(wd, "per_dir"), config.Index.PersistDir)
	assert.Equal(t, filepath.Join(wd, "docs", DefaultSourceFile), config.Source.Path)
	assert.Equal(t, 10000, config.Processor.ChunkSize)
	assert.Equal(t, 50, config.Processor.ChunkOverlap)
	assert.Equal(t, 0.7, config.LLM.Temperature)
	assert.True(t, config.UI.Streaming)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.LLM.APIKey = "key"
		applyDefaults(c)
		return c
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:          "missing api key",
			mutate:        func(c *Config) { c.LLM.APIKey = "" },
			errorMessages: []string{"llm.api_key: GOOGLE_API_KEY is not set"},
		},
		{
			name: "bad ranges",
			mutate: func(c *Config) {
				c.LLM.MaxTokens = 100000
				c.LLM.Temperature = 3
			},
			errorMessages: []string{
				"llm.max_tokens: max_tokens must be between 1 and 8192",
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
		{
			name:          "unknown safety threshold",
			mutate:        func(c *Config) { c.LLM.Safety = map[string]string{"dangerous_content": "sometimes"} },
			errorMessages: []string{`llm.safety: unknown threshold "sometimes" for dangerous_content`},
		},
		{
			name: "overlap not below size",
			mutate: func(c *Config) {
				c.Processor.ChunkSize = 50
				c.Processor.ChunkOverlap = 50
			},
			errorMessages: []string{"processor.chunk_overlap: chunk_overlap must be non-negative and less than chunk_size"},
		},
		{
			name:          "pgvector without url",
			mutate:        func(c *Config) { c.Index.Backend = "pgvector" },
			errorMessages: []string{"index.db_url: invalid database URL"},
		},
		{
			name:          "bad pebblo url",
			mutate:        func(c *Config) { c.Source.Pebblo.URL = "localhost 8000" },
			errorMessages: []string{"source.pebblo.url: invalid Pebblo daemon URL"},
		},
		{
			name:          "unknown backend",
			mutate:        func(c *Config) { c.Index.Backend = "chroma" },
			errorMessages: []string{`index.backend: unknown backend "chroma"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)

			errors := c.Validate()
			require.Len(t, errors, len(tt.errorMessages))
			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}

			if len(tt.errorMessages) == 0 {
				assert.NoError(t, c.Err())
			} else {
				assert.ErrorContains(t, c.Err(), tt.errorMessages[0])
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("AYURCHAT_PERSIST_DIR", "/data/index")
	t.Setenv("AYURCHAT_SOURCE", "/data/book.pdf")
	t.Setenv("PORT", "9090")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Index.DBURL)
	assert.Equal(t, "/data/index", config.Index.PersistDir)
	assert.Equal(t, "/data/book.pdf", config.Source.Path)
	assert.Equal(t, ":9090", config.Server.Addr)
}
