package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Ollama struct {
		BaseURL        string `yaml:"base_url"`
		ChatModel      string `yaml:"chat_model"`
		EmbeddingModel string `yaml:"embedding_model"`
	} `yaml:"ollama"`
	Chunking struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
		MinChunkSize int `yaml:"min_chunk_size"`
	} `yaml:"chunking"`
	Chat struct {
		TopK            int `yaml:"top_k"`
		MaxHistory      int `yaml:"max_history"`
		CitationPreview int `yaml:"citation_preview"`
		TitleMaxLength  int `yaml:"title_max_length"`
	} `yaml:"chat"`
	Upload struct {
		StorageDir   string   `yaml:"storage_dir"`
		MaxSizeBytes int64    `yaml:"max_size_bytes"`
		AllowedTypes []string `yaml:"allowed_types"`
		Workers      int      `yaml:"workers"`
	} `yaml:"upload"`
	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Load loads configuration from the given path, falling back to defaults
// when the file does not exist. A .env file in the working directory is
// applied to the environment first so deployments can keep overrides
// alongside the binary.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".ragd", "config.yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Server.ListenAddr = ":8080"
	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.ChatModel = "llama3.1"
	cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	cfg.Chunking.ChunkSize = 800
	cfg.Chunking.ChunkOverlap = 200
	cfg.Chunking.MinChunkSize = 100
	cfg.Chat.TopK = 5
	cfg.Chat.MaxHistory = 10
	cfg.Chat.CitationPreview = 200
	cfg.Chat.TitleMaxLength = 100
	cfg.Upload.StorageDir = "./uploads"
	cfg.Upload.MaxSizeBytes = 50 << 20
	cfg.Upload.AllowedTypes = []string{
		"application/pdf",
		"application/epub+zip",
		"text/plain",
		"text/markdown",
	}
	cfg.Upload.Workers = 4
	cfg.RateLimit.RequestsPerSecond = 10
	cfg.RateLimit.Burst = 20

	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAGD_DATABASE_URL"); v != "" {
		cfg.Database.ConnectionString = v
	}
	if v := os.Getenv("RAGD_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("RAGD_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
}
