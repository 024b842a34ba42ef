// Package config provides configuration loading and structs for the dcia server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Index       IndexConfig       `yaml:"index"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Answer      AnswerConfig      `yaml:"answer"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig selects and configures the graph store backend.
type StoreConfig struct {
	// Backend is one of "neo4j", "sqlite", "memory".
	Backend    string      `yaml:"backend"`
	Neo4j      Neo4jConfig `yaml:"neo4j"`
	SQLitePath string      `yaml:"sqlite_path"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI                   string `yaml:"uri"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	Database              string `yaml:"database"`
	MaxConnectionPoolSize int    `yaml:"max_connection_pool_size"`
}

// IndexConfig describes the vector index over node embeddings.
type IndexConfig struct {
	Name       string `yaml:"name"`
	Dimensions int    `yaml:"dimensions"`
	Similarity string `yaml:"similarity"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is one of "ollama", "onnx", "mock".
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
	ModelPath string        `yaml:"model_path"`
	MaxTokens int           `yaml:"max_tokens"`
}

// AnswerConfig holds answer generation settings.
type AnswerConfig struct {
	// Provider is one of "placeholder", "ollama".
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// MaintenanceConfig holds embedding refresh settings.
type MaintenanceConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// CatalogConfig lists knowledge catalog files to import.
type CatalogConfig struct {
	Files []string `yaml:"files"`
	Watch bool     `yaml:"watch"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults
// and environment overrides. Returns an error if the file cannot be read or parsed,
// or if the result is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.LookupEnv)

	configDir := filepath.Dir(path)
	cfg.Store.SQLitePath = expandPath(cfg.Store.SQLitePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Catalog.Files {
		cfg.Catalog.Files[i] = expandPath(cfg.Catalog.Files[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated config built only from defaults and the environment.
func Default() (*Config, error) {
	var cfg Config
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "neo4j":
		if c.Store.Neo4j.URI == "" || c.Store.Neo4j.Username == "" || c.Store.Neo4j.Password == "" {
			return fmt.Errorf("invalid config: neo4j uri, username and password must be set")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Embedding.Provider {
	case "ollama", "onnx", "mock":
	default:
		return fmt.Errorf("invalid config: unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Answer.Provider {
	case "placeholder", "ollama":
	default:
		return fmt.Errorf("invalid config: unknown answer provider %q", c.Answer.Provider)
	}
	if c.Index.Dimensions <= 0 {
		return fmt.Errorf("invalid config: index dimensions must be positive")
	}
	if c.Index.Similarity != "cosine" && c.Index.Similarity != "euclidean" {
		return fmt.Errorf("invalid config: unknown similarity function %q", c.Index.Similarity)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid config: retrieval top_k must be positive")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty and ":memory:" are kept.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
