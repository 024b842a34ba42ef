package keyword

import (
	"sort"
	"strings"
	"sync"
)

// Suggestion is a dictionary term close to a query term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
}

// SpellChecker suggests dictionary terms within a small edit distance.
type SpellChecker struct {
	dict        TermDictionary
	maxDistance int

	mu    sync.Mutex
	terms map[string]int
}

// SpellOption configures a SpellChecker.
type SpellOption func(*SpellChecker)

// WithMaxDistance sets the largest edit distance a suggestion may have.
func WithMaxDistance(d int) SpellOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// NewSpellChecker returns a checker that loads dict lazily.
func NewSpellChecker(dict TermDictionary, opts ...SpellOption) *SpellChecker {
	s := &SpellChecker{dict: dict, maxDistance: 2}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops the cached dictionary; the next lookup reloads it.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.terms = nil
	s.mu.Unlock()
}

func (s *SpellChecker) load() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terms == nil {
		terms, err := s.dict.Terms()
		if err != nil {
			return nil
		}
		s.terms = terms
	}
	return s.terms
}

// Suggest returns candidates for term, closest first and then most frequent.
// Known terms get no suggestions.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	terms := s.load()
	term = strings.ToLower(term)
	if _, ok := terms[term]; ok {
		return nil
	}
	var out []Suggestion
	n := len([]rune(term))
	for t, freq := range terms {
		if abs(len([]rune(t))-n) > s.maxDistance {
			continue
		}
		if d := LevenshteinDistance(term, t); d <= s.maxDistance {
			out = append(out, Suggestion{Term: t, Distance: d, Frequency: freq})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// SuggestQuery replaces each unknown term of query with its best suggestion.
// It returns query unchanged when nothing was corrected.
func (s *SpellChecker) SuggestQuery(query string) string {
	terms := tokenizeQuery(query)
	changed := false
	for i, t := range terms {
		if sugg := s.Suggest(t); len(sugg) > 0 {
			terms[i] = sugg[0].Term
			changed = true
		}
	}
	if !changed {
		return query
	}
	return strings.Join(terms, " ")
}

// LevenshteinDistance counts the single-rune insertions, deletions and substitutions
// needed to turn a into b.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
