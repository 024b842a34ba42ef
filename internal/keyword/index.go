// Package keyword provides an in-memory Bleve index for name and text lookup over graph nodes.
package keyword

import (
	"errors"

	"github.com/hyperjump/dcia/internal/models"
)

// ErrEmptyQuery is returned when a search has no terms.
var ErrEmptyQuery = errors.New("keyword: empty query")

// SearchOptions tunes keyword ranking. Nil means defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution of name matches. Values <= 0 use 2.0.
	NameBoost float64
	// Fuzzy matches terms within Fuzziness edits (1 or 2, default 1).
	Fuzzy     bool
	Fuzziness int
}

// Hit is a single keyword search hit.
type Hit struct {
	Node  models.Node `json:"node"`
	Score float64     `json:"score"`
}

// Results is a search response. Suggestion holds a corrected query when the
// original matched nothing and the dictionary offered a close alternative.
type Results struct {
	Query      string `json:"query"`
	Hits       []Hit  `json:"hits"`
	Suggestion string `json:"suggestion,omitempty"`
}

// TermDictionary exposes indexed terms for spelling suggestions.
type TermDictionary interface {
	// Terms returns each indexed term with its document frequency.
	Terms() (map[string]int, error)
}
