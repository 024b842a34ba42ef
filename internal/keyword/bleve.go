package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/models"
)

const (
	fieldName  = "name"
	fieldText  = "text"
	fieldLabel = "labels"

	defaultNameBoost = 2.0
)

// nodeDoc is what gets indexed for a node.
type nodeDoc struct {
	Name   string   `json:"name"`
	Text   string   `json:"text"`
	Labels []string `json:"labels"`
}

// Index is a rebuildable, memory-only keyword index. Safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	nodes  map[string]models.Node
	spell  *SpellChecker
	logger *zap.Logger
}

// NewIndex returns an empty index.
func NewIndex(logger *zap.Logger) (*Index, error) {
	idx, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Index{index: idx, nodes: map[string]models.Node{}, logger: logger}
	i.spell = NewSpellChecker(i)
	return i, nil
}

func newMemIndex() (bleve.Index, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: no stemming, so "logs" does not match "log" and names stay literal.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldName, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldText, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldLabel, bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("node", docMapping)
	im.DefaultType = "node"
	im.DefaultMapping = docMapping

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return idx, nil
}

// Rebuild replaces the index contents with nodes. Searches see either the old or
// the new contents, never a mix.
func (i *Index) Rebuild(ctx context.Context, nodes []models.Node) error {
	idx, err := newMemIndex()
	if err != nil {
		return err
	}
	byID := make(map[string]models.Node, len(nodes))
	batch := idx.NewBatch()
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return err
		}
		text := strings.TrimSpace(n.Description + " " + n.Significance)
		if err := batch.Index(n.ID, nodeDoc{Name: n.Name, Text: text, Labels: n.Labels}); err != nil {
			_ = idx.Close()
			return fmt.Errorf("index node %s: %w", n.ID, err)
		}
		byID[n.ID] = n
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("index batch: %w", err)
	}

	i.mu.Lock()
	old := i.index
	i.index, i.nodes = idx, byID
	i.mu.Unlock()
	i.spell.Invalidate()

	i.logger.Debug("keyword index rebuilt", zap.Int("nodes", len(nodes)))
	return old.Close()
}

// Search ranks nodes by name and text matches. Name matches are boosted and, for
// multi-term queries, nodes matching fewer terms are penalized quadratically.
// When nothing matches, a spelling suggestion is attached if one exists.
func (i *Index) Search(ctx context.Context, query string, limit int, opts *SearchOptions) (*Results, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}
	boost := defaultNameBoost
	fuzziness := 0
	if opts != nil {
		if opts.NameBoost > 0 {
			boost = opts.NameBoost
		}
		if opts.Fuzzy {
			fuzziness = 1
			if opts.Fuzziness > 0 {
				fuzziness = opts.Fuzziness
			}
		}
	}

	hits, err := i.rank(ctx, terms, limit, boost, fuzziness)
	if err != nil {
		return nil, err
	}
	res := &Results{Query: query, Hits: hits}
	if len(hits) == 0 {
		if s := i.spell.SuggestQuery(query); s != query {
			res.Suggestion = s
		}
	}
	return res, nil
}

func (i *Index) rank(ctx context.Context, terms []string, limit int, boost float64, fuzziness int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	nameScores, err := i.scores(ctx, buildQuery(terms, fieldName, fuzziness), reqSize)
	if err != nil {
		return nil, err
	}
	textScores, err := i.scores(ctx, buildQuery(terms, fieldText, fuzziness), reqSize)
	if err != nil {
		return nil, err
	}

	coverage := map[string]int{}
	if len(terms) > 1 {
		for _, term := range terms {
			hits, err := i.scores(ctx, buildQuery([]string{term}, "", fuzziness), reqSize)
			if err != nil {
				return nil, err
			}
			for id := range hits {
				coverage[id]++
			}
		}
	}

	merged := make(map[string]float64, len(nameScores)+len(textScores))
	for id, s := range nameScores {
		merged[id] += s * boost
	}
	for id, s := range textScores {
		merged[id] += s
	}
	hits := make([]Hit, 0, len(merged))
	for id, score := range merged {
		if len(terms) > 1 {
			matched := max(coverage[id], 1)
			c := float64(matched) / float64(len(terms))
			score *= c * c
		}
		node, ok := i.nodes[id]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Node: node, Score: score})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Node.Name < hits[b].Node.Name
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (i *Index) scores(ctx context.Context, q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		out[hit.ID] = hit.Score
	}
	return out, nil
}

// buildQuery ORs the terms over field (all fields when empty). Fuzziness 0 means exact terms.
func buildQuery(terms []string, field string, fuzziness int) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		if fuzziness > 0 {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			if field != "" {
				fq.SetField(field)
			}
			queries = append(queries, fq)
			continue
		}
		mq := bleve.NewMatchQuery(term)
		if field != "" {
			mq.SetField(field)
		}
		queries = append(queries, mq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery lowercases and splits query on whitespace.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Terms returns every term in the name and text fields with its document frequency.
func (i *Index) Terms() (map[string]int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]int)
	for _, field := range []string{fieldName, fieldText} {
		dict, err := i.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("field dictionary %s: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if int(entry.Count) > out[entry.Term] {
				out[entry.Term] = int(entry.Count)
			}
		}
		_ = dict.Close()
	}
	return out, nil
}

// DocCount returns the number of indexed nodes.
func (i *Index) DocCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}
