// Package embedding turns text into fixed-length vectors using Ollama, a local ONNX model,
// or a deterministic hashing embedder.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the provider cannot produce a vector: transport
	// failures, non-success statuses, missing or malformed vectors. Callers may retry.
	ErrUnavailable = errors.New("embedding unavailable")

	// ErrEmptyText is returned when asked to embed blank text.
	ErrEmptyText = errors.New("cannot embed empty text")
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
