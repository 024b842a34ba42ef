package graph

import (
	"context"
	"sync"
)

// Call is one statement seen by MockClient.
type Call struct {
	Write  bool
	Cypher string
	Params map[string]any
}

// HandlerFunc answers a statement for MockClient.
type HandlerFunc func(cypher string, params map[string]any) ([]Record, error)

// MockClient is a Client for tests. Statements are answered by Handler (nil answers nothing)
// and recorded in order.
type MockClient struct {
	Handler HandlerFunc
	PingErr error

	mu     sync.Mutex
	calls  []Call
	closed bool
}

// NewMockClient returns a MockClient using h.
func NewMockClient(h HandlerFunc) *MockClient {
	return &MockClient{Handler: h}
}

func (m *MockClient) Query(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return m.handle(ctx, false, cypher, params)
}

func (m *MockClient) Execute(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return m.handle(ctx, true, cypher, params)
}

func (m *MockClient) handle(ctx context.Context, write bool, cypher string, params map[string]any) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.calls = append(m.calls, Call{Write: write, Cypher: cypher, Params: params})
	h := m.Handler
	m.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(cypher, params)
}

func (m *MockClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.PingErr
}

func (m *MockClient) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns a copy of the recorded statements.
func (m *MockClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ Client = (*MockClient)(nil)
