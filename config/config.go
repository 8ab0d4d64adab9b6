package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	// Provider selects the embedding + generation backend: "openai" or "ollama"
	Provider string `yaml:"provider"`
	OpenAI   struct {
		APIKeyEnv      string `yaml:"api_key_env"`
		BaseURL        string `yaml:"base_url"`
		Model          string `yaml:"model"`
		EmbeddingModel string `yaml:"embedding_model"`
		Dimension      int    `yaml:"dimension"`
	} `yaml:"openai"`
	Ollama struct {
		BaseURL        string `yaml:"base_url"`
		Model          string `yaml:"model"`
		EmbeddingModel string `yaml:"embedding_model"`
	} `yaml:"ollama"`
	Index struct {
		// Type selects the vector index backend: "postgres" or "memory"
		Type string `yaml:"type"`
	} `yaml:"index"`
	Processing struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
		TopK         int `yaml:"top_k"`
	} `yaml:"processing"`
	Chat struct {
		// HistoryTurns is the number of question/answer pairs kept as
		// generation context (3 turns = 6 messages).
		HistoryTurns       int `yaml:"history_turns"`
		ContextTokenBudget int `yaml:"context_token_budget"`
		SnippetLength      int `yaml:"snippet_length"`
	} `yaml:"chat"`
	Limits struct {
		RequestTimeoutSecs int `yaml:"request_timeout_secs"`
		EmbedTimeoutSecs   int `yaml:"embed_timeout_secs"`
		MaxRetries         int `yaml:"max_retries"`
	} `yaml:"limits"`
}

// Load loads configuration from file or returns defaults
func Load() (*Config, error) {
	cfg := Default()

	configPath := filepath.Join(os.Getenv("HOME"), ".duc", "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save() error {
	configDir := filepath.Join(os.Getenv("HOME"), ".duc")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.Provider = "openai"
	cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	cfg.OpenAI.Model = "gpt-4o-mini"
	cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	cfg.OpenAI.Dimension = 1536
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.Model = "llama3.1"
	cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	cfg.Index.Type = "postgres"
	cfg.Processing.ChunkSize = 1500
	cfg.Processing.ChunkOverlap = 200
	cfg.Processing.TopK = 6
	cfg.Chat.HistoryTurns = 3
	cfg.Chat.ContextTokenBudget = 3000
	cfg.Chat.SnippetLength = 240
	cfg.Limits.RequestTimeoutSecs = 60
	cfg.Limits.EmbedTimeoutSecs = 30
	cfg.Limits.MaxRetries = 3

	return cfg
}

// applyDefaults fills zero values left by a partial config file
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = def.OpenAI.APIKeyEnv
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = def.OpenAI.Model
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = def.OpenAI.EmbeddingModel
	}
	if cfg.OpenAI.Dimension == 0 {
		cfg.OpenAI.Dimension = def.OpenAI.Dimension
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = def.Ollama.BaseURL
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = def.Ollama.Model
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = def.Ollama.EmbeddingModel
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = def.Index.Type
	}
	if cfg.Processing.ChunkSize == 0 {
		cfg.Processing.ChunkSize = def.Processing.ChunkSize
	}
	if cfg.Processing.ChunkOverlap == 0 {
		cfg.Processing.ChunkOverlap = def.Processing.ChunkOverlap
	}
	if cfg.Processing.TopK == 0 {
		cfg.Processing.TopK = def.Processing.TopK
	}
	if cfg.Chat.HistoryTurns == 0 {
		cfg.Chat.HistoryTurns = def.Chat.HistoryTurns
	}
	if cfg.Chat.ContextTokenBudget == 0 {
		cfg.Chat.ContextTokenBudget = def.Chat.ContextTokenBudget
	}
	if cfg.Chat.SnippetLength == 0 {
		cfg.Chat.SnippetLength = def.Chat.SnippetLength
	}
	if cfg.Limits.RequestTimeoutSecs == 0 {
		cfg.Limits.RequestTimeoutSecs = def.Limits.RequestTimeoutSecs
	}
	if cfg.Limits.EmbedTimeoutSecs == 0 {
		cfg.Limits.EmbedTimeoutSecs = def.Limits.EmbedTimeoutSecs
	}
	if cfg.Limits.MaxRetries == 0 {
		cfg.Limits.MaxRetries = def.Limits.MaxRetries
	}
}
