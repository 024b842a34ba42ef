// Package graph provides a small client abstraction over a property graph database.
//
// Neo4jClient talks to Neo4j through the official Go driver. MockClient is driven by a
// handler func and records every statement, for testing code built on top of Client.
//
// Node IDs are opaque strings (Neo4j element IDs); callers should never parse them.
package graph

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("graph client closed")

// Record is one result row keyed by column name.
type Record map[string]any

// Client executes Cypher statements.
type Client interface {
	// Query runs a read-only statement.
	Query(ctx context.Context, cypher string, params map[string]any) ([]Record, error)
	// Execute runs a statement that may write.
	Execute(ctx context.Context, cypher string, params map[string]any) ([]Record, error)
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
