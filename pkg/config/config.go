package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPersistDirName = "per_dir"
	DefaultSourceFile     = "Merged_Ayurbeat_Everyday_Ayurveda.pdf"
	DefaultSafetySuffix   = ". don't give harmful advice or anything that can hurt someone's feelings or emotions or anything outside of the context of this chat."
)

type Config struct {
	LLM struct {
		Provider    string            `yaml:"provider"`
		BaseURL     string            `yaml:"base_url"`
		Model       string            `yaml:"model"`
		APIKeyEnv   string            `yaml:"api_key_env"`
		APIKey      string            `yaml:"-"`
		MaxTokens   int               `yaml:"max_tokens"`
		Temperature float64           `yaml:"temperature"`
		Safety      map[string]string `yaml:"safety"`
	} `yaml:"llm"`

	Embedding struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedding"`

	Index struct {
		Backend    string `yaml:"backend"`
		PersistDir string `yaml:"persist_dir"`
		DBURL      string `yaml:"db_url"`
		TableName  string `yaml:"table_name"`
		VectorDim  int    `yaml:"vector_dim"`
	} `yaml:"index"`

	Source struct {
		Path      string  `yaml:"path"`
		Password  string  `yaml:"password"`
		MaxDepth  int     `yaml:"max_depth"`
		RateLimit float64 `yaml:"rate_limit"`
		Pebblo    struct {
			URL   string `yaml:"url"`
			Name  string `yaml:"name"`
			Owner string `yaml:"owner"`
		} `yaml:"pebblo"`
	} `yaml:"source"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Chat struct {
		SafetySuffix string        `yaml:"safety_suffix"`
		TopK         int           `yaml:"top_k"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"chat"`

	UI struct {
		Streaming bool   `yaml:"streaming"`
		Theme     string `yaml:"theme"`
	} `yaml:"ui"`

	Server struct {
		Addr         string        `yaml:"addr"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`
}

// LoadConfig reads the YAML config at path, or from the default locations
// when path is empty. A .env file in the working directory is loaded into
// the process environment first.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ayurchat/config.yaml"),
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// newConfig seeds the settings whose zero value is a valid choice. The file
// is unmarshalled over it, so only keys that are absent keep these values.
func newConfig() *Config {
	config := &Config{}
	config.LLM.Temperature = 0.7
	config.Processor.ChunkOverlap = 50
	config.UI.Streaming = true
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "gemini"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "gemini-1.5-pro"
		}
	}
	if config.LLM.APIKeyEnv == "" {
		config.LLM.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv(config.LLM.APIKeyEnv)
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2048
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Safety == nil {
		config.LLM.Safety = map[string]string{"dangerous_content": "none"}
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.Model == "" {
		switch config.Embedding.Provider {
		case "ollama":
			config.Embedding.Model = "nomic-embed-text"
		default:
			config.Embedding.Model = "embedding-001"
		}
	}
	if config.Embedding.Provider == "ollama" && config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
		if config.Embedding.BaseURL == "" {
			config.Embedding.BaseURL = "http://localhost:11434"
		}
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 100
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "local"
	}
	if config.Index.PersistDir == "" {
		config.Index.PersistDir = filepath.Join(workingDir(), DefaultPersistDirName)
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "ayurchat_chunks"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 768
	}

	if config.Source.Path == "" {
		config.Source.Path = filepath.Join(workingDir(), "docs", DefaultSourceFile)
	}
	if config.Source.MaxDepth == 0 {
		config.Source.MaxDepth = 2
	}
	if config.Source.RateLimit == 0 {
		config.Source.RateLimit = 2.0
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 10000
	}

	if config.Chat.SafetySuffix == "" {
		config.Chat.SafetySuffix = DefaultSafetySuffix
	}
	if config.Chat.TopK == 0 {
		config.Chat.TopK = 4
	}
	if config.Chat.Timeout == 0 {
		config.Chat.Timeout = 2 * time.Minute
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 10 * time.Second
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DBURL = dbURL
	}
	if dir := os.Getenv("AYURCHAT_PERSIST_DIR"); dir != "" {
		config.Index.PersistDir = dir
	}
	if src := os.Getenv("AYURCHAT_SOURCE"); src != "" {
		config.Source.Path = src
	}
	if pebblo := os.Getenv("PEBBLO_CLASSIFIER_URL"); pebblo != "" {
		config.Source.Pebblo.URL = pebblo
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}

// workingDir mirrors the original PWD-relative layout.
func workingDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
