package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "neo4j"
	}
	if cfg.Store.Neo4j.URI == "" {
		cfg.Store.Neo4j.URI = "bolt://localhost:7687"
	}
	if cfg.Store.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Store.Neo4j.MaxConnectionPoolSize = 50
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "./data/dcia.db"
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "node_embedding_index"
	}
	if cfg.Index.Dimensions == 0 {
		cfg.Index.Dimensions = 384
	}
	if cfg.Index.Similarity == "" {
		cfg.Index.Similarity = "cosine"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Answer.Provider == "" {
		cfg.Answer.Provider = "placeholder"
	}
	if cfg.Answer.BaseURL == "" {
		cfg.Answer.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "llama3"
	}
	if cfg.Answer.Timeout == 0 {
		cfg.Answer.Timeout = 120 * time.Second
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Maintenance.Concurrency == 0 {
		cfg.Maintenance.Concurrency = 1
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
