package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/dcia/internal/graph"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/vector"
	"github.com/hyperjump/dcia/pkg/utils"
	"go.uber.org/zap"
)

// searchableLabel marks embedded nodes; a Neo4j vector index covers exactly one label.
const searchableLabel = "Searchable"

var indexNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const (
	cypherCandidates = `
MATCH (n)
WHERE (n:EvidenceItem OR n:CrimeSubtype)
  AND n.description IS NOT NULL
  AND n.embedding IS NULL
RETURN elementId(n) AS id, n.description AS text`

	cypherSetEmbedding = `
MATCH (n)
WHERE elementId(n) = $id
SET n.embedding = $embedding, n:Searchable
RETURN count(n) AS updated`

	cypherMarkEmbedded = `
MATCH (n)
WHERE (n:EvidenceItem OR n:CrimeSubtype)
  AND n.embedding IS NOT NULL
  AND NOT n:Searchable
SET n:Searchable
RETURN count(n) AS marked`

	cypherIndexExists = `
SHOW INDEXES
YIELD name, type
WHERE name = $name AND type = 'VECTOR'
RETURN count(*) > 0 AS exists`

	cypherQueryNodes = `
CALL db.index.vector.queryNodes($index, $limit, $embedding)
YIELD node, score
RETURN elementId(node) AS id,
       labels(node) AS labels,
       node.name AS name,
       node.description AS description,
       node.significance AS significance,
       score
ORDER BY score DESC`

	cypherCrimeSubtypes = `
MATCH (s:CrimeSubtype)
WHERE s.name IS NOT NULL
RETURN s.name AS name
ORDER BY name`

	cypherCountSubtypes = `
MATCH (s:CrimeSubtype {name: $subtype})
RETURN count(s) AS count`

	cypherFindSubtypeFold = `
MATCH (s:CrimeSubtype)
WHERE toLower(s.name) = toLower($subtype)
RETURN s.name AS name
ORDER BY name
LIMIT 1`

	cypherEvidence = `
MATCH (s:CrimeSubtype {name: $subtype})-[:HAS_EVIDENCE]->(e:EvidenceItem)
OPTIONAL MATCH (e)-[r]->(p:PossibleLocation)
WHERE type(r) = $relationship
WITH e, collect(DISTINCT p.path) AS locations
RETURN e.name AS name, e.significance AS significance, locations
ORDER BY name`

	cypherNodes = `
MATCH (n)
WHERE n:CrimeSubtype OR n:EvidenceItem OR n:PossibleLocation
RETURN elementId(n) AS id,
       labels(n) AS labels,
       coalesce(n.name, n.path) AS name,
       n.description AS description,
       n.significance AS significance,
       n.embedding IS NOT NULL AS embedded
ORDER BY name`

	cypherMergeSubtype = `
MERGE (s:CrimeSubtype {name: $name})
WITH s, s.description AS old
SET s.description = $description
WITH s, old IS NOT NULL AND old <> coalesce($description, '') AS changed
FOREACH (_ IN CASE WHEN changed THEN [1] ELSE [] END | REMOVE s.embedding, s:Searchable)
RETURN changed`

	cypherMergeEvidence = `
MATCH (s:CrimeSubtype {name: $subtype})
MERGE (e:EvidenceItem {name: $name})
WITH s, e, e.description AS old
SET e.description = $description, e.significance = $significance
MERGE (s)-[:HAS_EVIDENCE]->(e)
WITH e, old IS NOT NULL AND old <> coalesce($description, '') AS changed
FOREACH (_ IN CASE WHEN changed THEN [1] ELSE [] END | REMOVE e.embedding, e:Searchable)
RETURN changed`

	// %s is a Device.Relationship(); relationship types cannot be parameters.
	cypherMergeLocations = `
MATCH (e:EvidenceItem {name: $evidence})
UNWIND $paths AS path
MERGE (p:PossibleLocation {path: path})
MERGE (e)-[:%s]->(p)
RETURN count(p) AS count`
)

// Neo4jStore implements Store with Cypher over a graph.Client.
type Neo4jStore struct {
	client graph.Client
	index  IndexSpec
	logger *zap.Logger
}

// NewNeo4jStore creates a store over client. The index name must be a plain identifier.
func NewNeo4jStore(client graph.Client, index IndexSpec, logger *zap.Logger) (*Neo4jStore, error) {
	if !indexNamePattern.MatchString(index.Name) {
		return nil, fmt.Errorf("invalid vector index name %q", index.Name)
	}
	if index.Dimensions <= 0 {
		return nil, fmt.Errorf("index dimensions must be positive")
	}
	if index.Similarity == "" {
		index.Similarity = "cosine"
	}
	return &Neo4jStore{client: client, index: index, logger: utils.OrNop(logger)}, nil
}

func (s *Neo4jStore) Candidates(ctx context.Context) ([]models.Candidate, error) {
	recs, err := s.client.Query(ctx, cypherCandidates, nil)
	if err != nil {
		return nil, fmt.Errorf("querying nodes without embeddings: %w", err)
	}
	out := make([]models.Candidate, 0, len(recs))
	for _, r := range recs {
		out = append(out, models.Candidate{NodeID: graph.String(r, "id"), Text: graph.String(r, "text")})
	}
	return out, nil
}

func (s *Neo4jStore) SetEmbedding(ctx context.Context, id string, vec []float32) (bool, error) {
	if len(vec) != s.index.Dimensions {
		return false, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), s.index.Dimensions)
	}
	recs, err := s.client.Execute(ctx, cypherSetEmbedding, map[string]any{
		"id":        id,
		"embedding": vector.ToFloat64s(vec),
	})
	if err != nil {
		return false, fmt.Errorf("updating embedding for node %s: %w", id, err)
	}
	return len(recs) > 0 && graph.Int(recs[0], "updated") > 0, nil
}

// MarkEmbedded adds the Searchable label to embedded nodes that lack it, such as nodes
// embedded before the label existed. It returns how many nodes were marked.
func (s *Neo4jStore) MarkEmbedded(ctx context.Context) (int, error) {
	recs, err := s.client.Execute(ctx, cypherMarkEmbedded, nil)
	if err != nil {
		return 0, fmt.Errorf("marking embedded nodes: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return graph.Int(recs[0], "marked"), nil
}

func (s *Neo4jStore) VectorIndexExists(ctx context.Context) (bool, error) {
	recs, err := s.client.Query(ctx, cypherIndexExists, map[string]any{"name": s.index.Name})
	if err != nil {
		return false, fmt.Errorf("checking vector index: %w", err)
	}
	return len(recs) > 0 && graph.Bool(recs[0], "exists"), nil
}

func (s *Neo4jStore) CreateVectorIndex(ctx context.Context) error {
	cypher := fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.embedding)\n"+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: '%s'}}",
		s.index.Name, searchableLabel, s.index.Dimensions, s.index.Similarity)
	if _, err := s.client.Execute(ctx, cypher, nil); err != nil {
		return fmt.Errorf("creating vector index %s: %w", s.index.Name, err)
	}
	return nil
}

func (s *Neo4jStore) QueryNodes(ctx context.Context, vec []float32, limit int) ([]models.RetrievalResult, error) {
	if len(vec) != s.index.Dimensions {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), s.index.Dimensions)
	}
	recs, err := s.client.Query(ctx, cypherQueryNodes, map[string]any{
		"index":     s.index.Name,
		"limit":     limit,
		"embedding": vector.ToFloat64s(vec),
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such vector schema index") {
			return nil, fmt.Errorf("%w: %s", ErrNoVectorIndex, s.index.Name)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]models.RetrievalResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, models.RetrievalResult{
			NodeID:       graph.String(r, "id"),
			Labels:       categoryLabels(graph.Strings(r, "labels")),
			Name:         graph.String(r, "name"),
			Description:  graph.String(r, "description"),
			Significance: graph.String(r, "significance"),
			Score:        graph.Float(r, "score"),
		})
	}
	s.logger.Debug("vector search", zap.Int("results", len(out)))
	return out, nil
}

func (s *Neo4jStore) CrimeSubtypes(ctx context.Context) ([]string, error) {
	recs, err := s.client.Query(ctx, cypherCrimeSubtypes, nil)
	if err != nil {
		return nil, fmt.Errorf("listing crime subtypes: %w", err)
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, graph.String(r, "name"))
	}
	return out, nil
}

func (s *Neo4jStore) CountSubtypes(ctx context.Context, name string) (int, error) {
	recs, err := s.client.Query(ctx, cypherCountSubtypes, map[string]any{"subtype": name})
	if err != nil {
		return 0, fmt.Errorf("counting crime subtypes: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return graph.Int(recs[0], "count"), nil
}

func (s *Neo4jStore) FindSubtypeFold(ctx context.Context, name string) (string, bool, error) {
	recs, err := s.client.Query(ctx, cypherFindSubtypeFold, map[string]any{"subtype": name})
	if err != nil {
		return "", false, fmt.Errorf("matching crime subtype: %w", err)
	}
	if len(recs) == 0 {
		return "", false, nil
	}
	return graph.String(recs[0], "name"), true, nil
}

func (s *Neo4jStore) Evidence(ctx context.Context, subtype string, device models.Device) ([]models.EvidenceItem, error) {
	recs, err := s.client.Query(ctx, cypherEvidence, map[string]any{
		"subtype":      subtype,
		"relationship": device.Relationship(),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching evidence for %s: %w", subtype, err)
	}
	out := make([]models.EvidenceItem, 0, len(recs))
	for _, r := range recs {
		out = append(out, models.EvidenceItem{
			Name:         graph.String(r, "name"),
			Significance: graph.String(r, "significance"),
			Locations:    graph.Strings(r, "locations"),
		})
	}
	sortEvidence(out)
	return out, nil
}

func (s *Neo4jStore) Nodes(ctx context.Context) ([]models.Node, error) {
	recs, err := s.client.Query(ctx, cypherNodes, nil)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	out := make([]models.Node, 0, len(recs))
	for _, r := range recs {
		out = append(out, models.Node{
			ID:           graph.String(r, "id"),
			Labels:       categoryLabels(graph.Strings(r, "labels")),
			Name:         graph.String(r, "name"),
			Description:  graph.String(r, "description"),
			Significance: graph.String(r, "significance"),
			Embedded:     graph.Bool(r, "embedded"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) Import(ctx context.Context, c *models.Catalog) (models.ImportStats, error) {
	var stats models.ImportStats
	for _, sub := range c.CrimeSubtypes {
		recs, err := s.client.Execute(ctx, cypherMergeSubtype, map[string]any{
			"name":        sub.Name,
			"description": nullable(sub.Description),
		})
		if err != nil {
			return stats, fmt.Errorf("importing crime subtype %s: %w", sub.Name, err)
		}
		stats.Subtypes++
		if len(recs) > 0 && graph.Bool(recs[0], "changed") {
			stats.Invalidated++
		}

		for _, ev := range sub.Evidence {
			recs, err := s.client.Execute(ctx, cypherMergeEvidence, map[string]any{
				"subtype":      sub.Name,
				"name":         ev.Name,
				"description":  nullable(ev.Description),
				"significance": nullable(ev.Significance),
			})
			if err != nil {
				return stats, fmt.Errorf("importing evidence %s: %w", ev.Name, err)
			}
			stats.Evidence++
			if len(recs) > 0 && graph.Bool(recs[0], "changed") {
				stats.Invalidated++
			}

			for _, device := range models.Devices {
				paths := ev.Locations[device]
				if len(paths) == 0 {
					continue
				}
				cypher := fmt.Sprintf(cypherMergeLocations, device.Relationship())
				recs, err := s.client.Execute(ctx, cypher, map[string]any{"evidence": ev.Name, "paths": paths})
				if err != nil {
					return stats, fmt.Errorf("importing %s locations for %s: %w", device, ev.Name, err)
				}
				if len(recs) > 0 {
					stats.Locations += graph.Int(recs[0], "count")
				}
			}
		}
	}
	return stats, nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Neo4jStore) Close() error {
	return s.client.Close(context.Background())
}

// nullable maps "" to nil so Cypher removes the property instead of storing an empty string.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*Neo4jStore)(nil)
