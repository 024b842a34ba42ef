// Package store defines the knowledge store the QA pipeline reads and writes, with
// Neo4j, SQLite and in-memory backends.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/hyperjump/dcia/internal/models"
)

var (
	// ErrNoVectorIndex is returned by QueryNodes before the vector index exists.
	ErrNoVectorIndex = errors.New("vector index does not exist")

	// ErrDimensionMismatch is returned when a vector's length differs from the index dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// IndexSpec describes the vector index over node embeddings.
type IndexSpec struct {
	Name       string
	Dimensions int
	Similarity string
}

// Store is the graph-backed knowledge store.
type Store interface {
	// Candidates lists embeddable nodes with a description and no embedding.
	Candidates(ctx context.Context) ([]models.Candidate, error)
	// SetEmbedding stores vec on node id. It reports false if the node no longer exists.
	SetEmbedding(ctx context.Context, id string, vec []float32) (bool, error)

	VectorIndexExists(ctx context.Context) (bool, error)
	CreateVectorIndex(ctx context.Context) error
	// QueryNodes returns up to limit embedded nodes nearest to vec, highest score first.
	QueryNodes(ctx context.Context, vec []float32, limit int) ([]models.RetrievalResult, error)

	// CrimeSubtypes returns all subtype names sorted ascending.
	CrimeSubtypes(ctx context.Context) ([]string, error)
	// CountSubtypes counts subtypes whose name equals name exactly.
	CountSubtypes(ctx context.Context, name string) (int, error)
	// FindSubtypeFold returns the stored name of a subtype matching name case-insensitively.
	FindSubtypeFold(ctx context.Context, name string) (string, bool, error)
	// Evidence returns the evidence items of subtype with their locations on device.
	Evidence(ctx context.Context, subtype string, device models.Device) ([]models.EvidenceItem, error)

	Nodes(ctx context.Context) ([]models.Node, error)
	// Import upserts a catalog. Nodes whose description changes lose their embedding.
	Import(ctx context.Context, c *models.Catalog) (models.ImportStats, error)

	Ping(ctx context.Context) error
	Close() error
}

// categoryLabels orders labels so known categories come first and drops internal markers.
func categoryLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == searchableLabel || l == "" {
			continue
		}
		out = append(out, l)
	}
	rank := func(l string) int {
		switch l {
		case models.LabelEvidenceItem:
			return 0
		case models.LabelCrimeSubtype:
			return 1
		case models.LabelPossibleLocation:
			return 2
		}
		return 3
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}

// sortEvidence orders evidence by name and each item's locations by path.
func sortEvidence(items []models.EvidenceItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	for i := range items {
		if items[i].Locations == nil {
			items[i].Locations = []string{}
		}
		sort.Strings(items[i].Locations)
	}
}

func foldEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
