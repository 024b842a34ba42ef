package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/vector"
)

type memNode struct {
	node      models.Node
	embedding []float32
}

// MemoryStore is an in-process Store. It holds the whole graph in maps and answers
// vector queries with a brute-force vector.MemoryIndex. Safe for concurrent use.
type MemoryStore struct {
	index IndexSpec

	mu           sync.RWMutex
	nodes        map[string]*memNode
	subtypes     map[string]string // name -> id
	evidence     map[string]string // name -> id
	locations    map[string]string // path -> id
	hasEvidence  map[string]map[string]bool
	locatedOn    map[string]map[models.Device]map[string]bool
	indexCreated bool
	vectors      *vector.MemoryIndex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(index IndexSpec) (*MemoryStore, error) {
	vectors, err := vector.NewMemoryIndex(index.Dimensions)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		index:       index,
		nodes:       make(map[string]*memNode),
		subtypes:    make(map[string]string),
		evidence:    make(map[string]string),
		locations:   make(map[string]string),
		hasEvidence: make(map[string]map[string]bool),
		locatedOn:   make(map[string]map[models.Device]map[string]bool),
		vectors:     vectors,
	}, nil
}

func (s *MemoryStore) Candidates(ctx context.Context) ([]models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Candidate
	for _, id := range s.sortedIDs() {
		n := s.nodes[id]
		if n.node.Embeddable() && n.node.Description != "" && n.embedding == nil {
			out = append(out, models.Candidate{NodeID: id, Text: n.node.Description})
		}
	}
	return out, nil
}

func (s *MemoryStore) SetEmbedding(ctx context.Context, id string, vec []float32) (bool, error) {
	if len(vec) != s.index.Dimensions {
		return false, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), s.index.Dimensions)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return false, nil
	}
	if err := s.vectors.Upsert(id, vec); err != nil {
		return false, err
	}
	n.embedding = append([]float32(nil), vec...)
	n.node.Embedded = true
	return true, nil
}

func (s *MemoryStore) VectorIndexExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexCreated, nil
}

func (s *MemoryStore) CreateVectorIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexCreated = true
	return nil
}

func (s *MemoryStore) QueryNodes(ctx context.Context, vec []float32, limit int) ([]models.RetrievalResult, error) {
	if len(vec) != s.index.Dimensions {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), s.index.Dimensions)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.indexCreated {
		return nil, fmt.Errorf("%w: %s", ErrNoVectorIndex, s.index.Name)
	}
	hits, err := s.vectors.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		n, ok := s.nodes[h.ID]
		if !ok {
			continue
		}
		out = append(out, models.RetrievalResult{
			NodeID:       h.ID,
			Labels:       append([]string(nil), n.node.Labels...),
			Name:         n.node.Name,
			Description:  n.node.Description,
			Significance: n.node.Significance,
			Score:        h.Score,
		})
	}
	return out, nil
}

func (s *MemoryStore) CrimeSubtypes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subtypes))
	for name := range s.subtypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CountSubtypes(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.subtypes[name]; ok {
		return 1, nil
	}
	return 0, nil
}

func (s *MemoryStore) FindSubtypeFold(ctx context.Context, name string) (string, bool, error) {
	names, _ := s.CrimeSubtypes(ctx)
	for _, n := range names {
		if foldEqual(n, name) {
			return n, true, nil
		}
	}
	return "", false, nil
}

func (s *MemoryStore) Evidence(ctx context.Context, subtype string, device models.Device) ([]models.EvidenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subID, ok := s.subtypes[subtype]
	if !ok {
		return []models.EvidenceItem{}, nil
	}
	out := make([]models.EvidenceItem, 0, len(s.hasEvidence[subID]))
	for evID := range s.hasEvidence[subID] {
		ev := s.nodes[evID].node
		item := models.EvidenceItem{Name: ev.Name, Significance: ev.Significance, Locations: []string{}}
		for locID := range s.locatedOn[evID][device] {
			item.Locations = append(item.Locations, s.nodes[locID].node.Name)
		}
		out = append(out, item)
	}
	sortEvidence(out)
	return out, nil
}

func (s *MemoryStore) Nodes(ctx context.Context) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Node, 0, len(s.nodes))
	for _, id := range s.sortedIDs() {
		n := s.nodes[id].node
		n.Labels = append([]string(nil), n.Labels...)
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Import(ctx context.Context, c *models.Catalog) (models.ImportStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.ImportStats
	for _, sub := range c.CrimeSubtypes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		subID, changed := s.upsert(s.subtypes, models.LabelCrimeSubtype, sub.Name, sub.Description, "")
		stats.Subtypes++
		if changed {
			stats.Invalidated++
		}
		for _, ev := range sub.Evidence {
			evID, changed := s.upsert(s.evidence, models.LabelEvidenceItem, ev.Name, ev.Description, ev.Significance)
			stats.Evidence++
			if changed {
				stats.Invalidated++
			}
			link(s.hasEvidence, subID, evID)
			for _, device := range models.Devices {
				for _, path := range ev.Locations[device] {
					locID, _ := s.upsert(s.locations, models.LabelPossibleLocation, path, "", "")
					if s.locatedOn[evID] == nil {
						s.locatedOn[evID] = make(map[models.Device]map[string]bool)
					}
					link(s.locatedOn[evID], device, locID)
					stats.Locations++
				}
			}
		}
	}
	return stats, nil
}

// Remove deletes nodes and their relationships.
func (s *MemoryStore) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		delete(s.nodes, id)
		delete(s.hasEvidence, id)
		delete(s.locatedOn, id)
		for _, byName := range []map[string]string{s.subtypes, s.evidence, s.locations} {
			if byName[n.node.Name] == id {
				delete(byName, n.node.Name)
			}
		}
		for _, evs := range s.hasEvidence {
			delete(evs, id)
		}
		for _, byDevice := range s.locatedOn {
			for _, locs := range byDevice {
				delete(locs, id)
			}
		}
	}
	s.vectors.Remove(ids...)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

// upsert finds or creates the node keyed by name in byName. It reports whether an
// existing description changed, in which case the embedding is cleared. Caller holds s.mu.
func (s *MemoryStore) upsert(byName map[string]string, label, name, description, significance string) (string, bool) {
	id, ok := byName[name]
	if !ok {
		id = uuid.NewString()
		byName[name] = id
		s.nodes[id] = &memNode{node: models.Node{
			ID:           id,
			Labels:       []string{label},
			Name:         name,
			Description:  description,
			Significance: significance,
		}}
		return id, false
	}
	n := s.nodes[id]
	changed := n.node.Description != "" && n.node.Description != description
	n.node.Description = description
	if label == models.LabelEvidenceItem {
		n.node.Significance = significance
	}
	if changed && n.embedding != nil {
		n.embedding = nil
		n.node.Embedded = false
		s.vectors.Remove(id)
	}
	return id, changed
}

// sortedIDs returns node IDs in a stable order. Caller holds s.mu.
func (s *MemoryStore) sortedIDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func link[K comparable](m map[K]map[string]bool, from K, to string) {
	if m[from] == nil {
		m[from] = make(map[string]bool)
	}
	m[from][to] = true
}

var _ Store = (*MemoryStore)(nil)
