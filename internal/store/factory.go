package store

import (
	"context"
	"fmt"

	"github.com/hyperjump/dcia/internal/config"
	"github.com/hyperjump/dcia/internal/graph"
	"go.uber.org/zap"
)

// SpecFromConfig returns the vector index description from cfg.
func SpecFromConfig(cfg config.IndexConfig) IndexSpec {
	return IndexSpec{Name: cfg.Name, Dimensions: cfg.Dimensions, Similarity: cfg.Similarity}
}

// New opens the backend named by cfg.Store.Backend. For Neo4j, connectivity is verified
// before returning.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	spec := SpecFromConfig(cfg.Index)
	switch cfg.Store.Backend {
	case "neo4j", "":
		n := cfg.Store.Neo4j
		client, err := graph.NewNeo4jClient(ctx, graph.Neo4jConfig{
			URI:                   n.URI,
			Username:              n.Username,
			Password:              n.Password,
			Database:              n.Database,
			MaxConnectionPoolSize: n.MaxConnectionPoolSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		s, err := NewNeo4jStore(client, spec, logger)
		if err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		return s, nil
	case "sqlite":
		return NewSQLiteStore(cfg.Store.SQLitePath, spec)
	case "memory":
		return NewMemoryStore(spec)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
