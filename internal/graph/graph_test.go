package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	r := Record{
		"name":   "Browser history",
		"score":  0.91,
		"count":  int64(3),
		"ok":     true,
		"labels": []any{"EvidenceItem", "", 7, "Searchable"},
		"vec":    []any{0.5, int64(1)},
	}
	assert.Equal(t, "Browser history", String(r, "name"))
	assert.Equal(t, "", String(r, "missing"))
	assert.Equal(t, 0.91, Float(r, "score"))
	assert.Equal(t, 3.0, Float(r, "count"))
	assert.Equal(t, 3, Int(r, "count"))
	assert.True(t, Bool(r, "ok"))
	assert.Equal(t, []string{"EvidenceItem", "Searchable"}, Strings(r, "labels"))
	assert.Nil(t, Strings(r, "missing"))
	assert.Equal(t, []float32{0.5, 1}, Float32s(r, "vec"))
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient(func(cypher string, params map[string]any) ([]Record, error) {
		if cypher == "boom" {
			return nil, errors.New("boom")
		}
		return []Record{{"n": params["x"]}}, nil
	})

	recs, err := m.Query(ctx, "RETURN $x AS n", map[string]any{"x": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, Int(recs[0], "n"))

	_, err = m.Execute(ctx, "boom", nil)
	assert.EqualError(t, err, "boom")

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Write)
	assert.True(t, calls[1].Write)

	m.PingErr = errors.New("down")
	assert.Error(t, m.Ping(ctx))

	require.NoError(t, m.Close(ctx))
	_, err = m.Query(ctx, "RETURN 1", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMockClient_canceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockClient(nil).Query(ctx, "RETURN 1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
