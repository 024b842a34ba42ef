package config

import (
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// ApplyEnv overrides cfg with values from the environment. lookup is usually os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("NEO4J_URI", &cfg.Store.Neo4j.URI)
	str("NEO4J_USER", &cfg.Store.Neo4j.Username)
	str("NEO4J_PASSWORD", &cfg.Store.Neo4j.Password)
	str("NEO4J_DATABASE", &cfg.Store.Neo4j.Database)
	str("DCIA_STORE", &cfg.Store.Backend)
	str("DCIA_SQLITE_PATH", &cfg.Store.SQLitePath)
	str("DCIA_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	if v, ok := lookup("OLLAMA_HOST"); ok && strings.TrimSpace(v) != "" {
		host := strings.TrimSpace(v)
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		cfg.Embedding.BaseURL = host
		cfg.Answer.BaseURL = host
	}
	if v, ok := lookup("DCIA_DEBUG"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Debug = b
		}
	}
}
