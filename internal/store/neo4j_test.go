package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/graph"
	"github.com/hyperjump/dcia/internal/models"
)

func newTestNeo4jStore(t *testing.T, h graph.HandlerFunc) (*Neo4jStore, *graph.MockClient) {
	t.Helper()
	client := graph.NewMockClient(h)
	s, err := NewNeo4jStore(client, IndexSpec{Name: "node_embedding_index", Dimensions: 3}, zap.NewNop())
	require.NoError(t, err)
	return s, client
}

func TestNewNeo4jStore_validatesIndexName(t *testing.T) {
	_, err := NewNeo4jStore(graph.NewMockClient(nil), IndexSpec{Name: "bad name; DROP", Dimensions: 3}, nil)
	assert.Error(t, err)
	_, err = NewNeo4jStore(graph.NewMockClient(nil), IndexSpec{Name: "ok_name", Dimensions: 0}, nil)
	assert.Error(t, err)
}

func TestNeo4jStore_Candidates(t *testing.T) {
	s, client := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		return []graph.Record{
			{"id": "4:abc:1", "text": "Record of websites visited"},
			{"id": "4:abc:2", "text": "Text messages"},
		}, nil
	})
	got, err := s.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Candidate{
		{NodeID: "4:abc:1", Text: "Record of websites visited"},
		{NodeID: "4:abc:2", Text: "Text messages"},
	}, got)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Write)
	assert.Contains(t, calls[0].Cypher, "n.embedding IS NULL")
	assert.Contains(t, calls[0].Cypher, "n:EvidenceItem OR n:CrimeSubtype")
}

func TestNeo4jStore_SetEmbedding(t *testing.T) {
	updated := int64(1)
	s, client := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		return []graph.Record{{"updated": updated}}, nil
	})
	ctx := context.Background()

	ok, err := s.SetEmbedding(ctx, "4:abc:1", []float32{0.5, 0.25, 1})
	require.NoError(t, err)
	assert.True(t, ok)
	call := client.Calls()[0]
	assert.True(t, call.Write)
	assert.Equal(t, "4:abc:1", call.Params["id"])
	assert.Equal(t, []float64{0.5, 0.25, 1}, call.Params["embedding"])
	assert.Contains(t, call.Cypher, "n:Searchable")

	updated = 0
	ok, err = s.SetEmbedding(ctx, "4:abc:9", []float32{1, 0, 0})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.SetEmbedding(ctx, "4:abc:1", []float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNeo4jStore_VectorIndex(t *testing.T) {
	exists := false
	s, client := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		if strings.Contains(cypher, "SHOW INDEXES") {
			return []graph.Record{{"exists": exists}}, nil
		}
		return nil, nil
	})
	ctx := context.Background()

	ok, err := s.VectorIndexExists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "node_embedding_index", client.Calls()[0].Params["name"])

	require.NoError(t, s.CreateVectorIndex(ctx))
	create := client.Calls()[1]
	assert.True(t, create.Write)
	assert.Contains(t, create.Cypher, "CREATE VECTOR INDEX node_embedding_index IF NOT EXISTS FOR (n:Searchable) ON (n.embedding)")
	assert.Contains(t, create.Cypher, "`vector.dimensions`: 3")
	assert.Contains(t, create.Cypher, "'cosine'")

	exists = true
	ok, err = s.VectorIndexExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNeo4jStore_MarkEmbedded(t *testing.T) {
	s, client := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		return []graph.Record{{"marked": int64(7)}}, nil
	})
	n, err := s.MarkEmbedded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	call := client.Calls()[0]
	assert.True(t, call.Write)
	assert.Contains(t, call.Cypher, "n.embedding IS NOT NULL")
	assert.Contains(t, call.Cypher, "NOT n:Searchable")
	assert.Contains(t, call.Cypher, "SET n:Searchable")
	assert.Contains(t, call.Cypher, "n:EvidenceItem OR n:CrimeSubtype")

	failing, _ := newTestNeo4jStore(t, func(string, map[string]any) ([]graph.Record, error) {
		return nil, errors.New("unavailable")
	})
	_, err = failing.MarkEmbedded(context.Background())
	assert.ErrorContains(t, err, "marking embedded nodes")
}

func TestNeo4jStore_QueryNodes(t *testing.T) {
	s, client := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		return []graph.Record{
			{"id": "4:a:1", "labels": []any{"Searchable", "EvidenceItem"}, "name": "Browser history",
				"description": "Visited sites", "significance": "Shows intent", "score": 0.93},
			{"id": "4:a:2", "labels": []any{"CrimeSubtype", "Searchable"}, "name": "Cyberstalking",
				"description": "Harassment", "significance": nil, "score": 0.81},
		}, nil
	})
	results, err := s.QueryNodes(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"EvidenceItem"}, results[0].Labels)
	assert.Equal(t, "CrimeSubtype", results[1].PrimaryLabel())
	assert.Equal(t, "", results[1].Significance)
	assert.Equal(t, 0.93, results[0].Score)

	params := client.Calls()[0].Params
	assert.Equal(t, "node_embedding_index", params["index"])
	assert.Equal(t, 5, params["limit"])
}

func TestNeo4jStore_QueryNodes_missingIndex(t *testing.T) {
	s, _ := newTestNeo4jStore(t, func(string, map[string]any) ([]graph.Record, error) {
		return nil, errors.New("Neo.ClientError.Procedure.ProcedureCallFailed: There is no such vector schema index: node_embedding_index")
	})
	_, err := s.QueryNodes(context.Background(), []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, ErrNoVectorIndex)
}

func TestNeo4jStore_Evidence(t *testing.T) {
	s, client := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		return []graph.Record{
			{"name": "SMS messages", "significance": "Threats", "locations": []any{}},
			{"name": "Browser history", "significance": "Intent", "locations": []any{"/b", "/a"}},
		}, nil
	})
	items, err := s.Evidence(context.Background(), "Cyberstalking", models.DeviceAndroid)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Browser history", items[0].Name)
	assert.Equal(t, []string{"/a", "/b"}, items[0].Locations)
	assert.Equal(t, []string{}, items[1].Locations)

	params := client.Calls()[0].Params
	assert.Equal(t, "Cyberstalking", params["subtype"])
	assert.Equal(t, "POSSIBLE_LOCATION_ON_ANDROID", params["relationship"])
}

func TestNeo4jStore_SubtypeLookups(t *testing.T) {
	s, _ := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		switch {
		case strings.Contains(cypher, "count(s)"):
			if params["subtype"] == "Data theft" {
				return []graph.Record{{"count": int64(1)}}, nil
			}
			return []graph.Record{{"count": int64(0)}}, nil
		case strings.Contains(cypher, "toLower"):
			if strings.EqualFold(params["subtype"].(string), "data theft") {
				return []graph.Record{{"name": "Data theft"}}, nil
			}
			return nil, nil
		default:
			return []graph.Record{{"name": "Cyberstalking"}, {"name": "Data theft"}}, nil
		}
	})
	ctx := context.Background()

	names, err := s.CrimeSubtypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cyberstalking", "Data theft"}, names)

	n, err := s.CountSubtypes(ctx, "Data theft")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	name, ok, err := s.FindSubtypeFold(ctx, "DATA THEFT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Data theft", name)

	_, ok, err = s.FindSubtypeFold(ctx, "Ransomware")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNeo4jStore_Import(t *testing.T) {
	s, client := newTestNeo4jStore(t, func(cypher string, params map[string]any) ([]graph.Record, error) {
		switch {
		case strings.Contains(cypher, "UNWIND $paths"):
			return []graph.Record{{"count": int64(len(params["paths"].([]string)))}}, nil
		case params["name"] == "SMS messages":
			return []graph.Record{{"changed": true}}, nil
		default:
			return []graph.Record{{"changed": false}}, nil
		}
	})
	stats, err := s.Import(context.Background(), testCatalog())
	require.NoError(t, err)
	assert.Equal(t, models.ImportStats{Subtypes: 2, Evidence: 4, Locations: 6, Invalidated: 1}, stats)

	var relationships []string
	for _, c := range client.Calls() {
		assert.True(t, c.Write)
		if strings.Contains(c.Cypher, "UNWIND $paths") {
			relationships = append(relationships, c.Cypher)
		}
	}
	require.Len(t, relationships, 5)
	assert.Contains(t, relationships[0], "[:POSSIBLE_LOCATION_ON_ANDROID]")
	assert.Contains(t, relationships[1], "[:POSSIBLE_LOCATION_ON_WINDOWS]")
}

func TestNeo4jStore_wrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	s, _ := newTestNeo4jStore(t, func(string, map[string]any) ([]graph.Record, error) { return nil, boom })
	ctx := context.Background()

	_, err := s.Candidates(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = s.CrimeSubtypes(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = s.Evidence(ctx, "x", models.DeviceWindows)
	assert.ErrorIs(t, err, boom)
}
