package graph

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/dcia/pkg/utils"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jConfig holds connection settings for Neo4jClient.
type Neo4jConfig struct {
	URI                   string
	Username              string
	Password              string
	Database              string
	MaxConnectionPoolSize int
}

// Neo4jClient implements Client with the Neo4j Go driver. Safe for concurrent use.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
	closed   atomic.Bool
}

// NewNeo4jClient opens a driver and verifies connectivity before returning.
func NewNeo4jClient(ctx context.Context, cfg Neo4jConfig, logger *zap.Logger) (*Neo4jClient, error) {
	logger = utils.OrNop(logger)
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
		})
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", cfg.URI, err)
	}
	logger.Info("connected to neo4j", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))
	return &Neo4jClient{driver: driver, database: cfg.Database, logger: logger}, nil
}

// Query runs cypher routed to readers.
func (c *Neo4jClient) Query(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return c.run(ctx, cypher, params, neo4j.ExecuteQueryWithReadersRouting())
}

// Execute runs cypher routed to the writer.
func (c *Neo4jClient) Execute(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return c.run(ctx, cypher, params, neo4j.ExecuteQueryWithWritersRouting())
}

func (c *Neo4jClient) run(ctx context.Context, cypher string, params map[string]any, routing neo4j.ExecuteQueryConfigurationOption) ([]Record, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	opts := []neo4j.ExecuteQueryConfigurationOption{routing}
	if c.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(c.database))
	}
	res, err := neo4j.ExecuteQuery(ctx, c.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		c.logger.Debug("cypher failed", zap.String("cypher", utils.Truncate(cypher, 120)), zap.Error(err))
		return nil, fmt.Errorf("cypher query failed: %w", err)
	}
	records := make([]Record, 0, len(res.Records))
	for _, r := range res.Records {
		records = append(records, Record(r.AsMap()))
	}
	return records, nil
}

// Ping verifies connectivity.
func (c *Neo4jClient) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.driver.VerifyConnectivity(ctx)
}

// Close closes the driver. Further calls return ErrClosed.
func (c *Neo4jClient) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.driver.Close(ctx)
}

var _ Client = (*Neo4jClient)(nil)
