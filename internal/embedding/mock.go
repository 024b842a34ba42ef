package embedding

import (
	"context"
	"sync"

	"github.com/hyperjump/dcia/internal/vector"
)

// MockEmbedder produces deterministic embeddings without a model. Each word is hashed into a
// bucket with a signed weight, so texts sharing words land close together. Useful for tests
// and offline runs.
type MockEmbedder struct {
	dimensions int
	fail       func(text string) error
	pinned     map[string][]float32

	mu    sync.Mutex
	calls int
}

// MockOption configures a MockEmbedder.
type MockOption func(*MockEmbedder)

// WithFailure makes Embed return fn's error when non-nil.
func WithFailure(fn func(text string) error) MockOption {
	return func(e *MockEmbedder) { e.fail = fn }
}

// WithVector pins the vector returned for an exact text.
func WithVector(text string, v []float32) MockOption {
	return func(e *MockEmbedder) { e.pinned[text] = cloneVector(v) }
}

// NewMockEmbedder creates a mock embedder with the given dimensions.
func NewMockEmbedder(dimensions int, opts ...MockOption) *MockEmbedder {
	e := &MockEmbedder{dimensions: dimensions, pinned: make(map[string][]float32)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns a unit-length vector derived from the words of text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.fail != nil {
		if err := e.fail(text); err != nil {
			return nil, err
		}
	}
	if v, ok := e.pinned[text]; ok {
		return cloneVector(v), nil
	}
	words := SplitWords(text)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}
	out := make([]float32, e.dimensions)
	for _, w := range words {
		h := HashWord(w)
		sign := float32(1)
		if h&1 == 1 {
			sign = -1
		}
		out[(h>>1)%e.dimensions] += sign
	}
	vector.Normalize(out)
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}

// Calls returns how many times Embed has been called.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var _ Embedder = (*MockEmbedder)(nil)
