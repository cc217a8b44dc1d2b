package catalog

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// TermSource provides the catalog's term dictionary.
type TermSource interface {
	Terms() (map[string]int, error)
}

// Suggestion is a replacement for a term that is not in the catalog.
type Suggestion struct {
	Term      string  `json:"term"`
	Distance  int     `json:"distance"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score"`
}

// Correction is the result of checking a query against the catalog.
type Correction struct {
	Query       string       `json:"query"`
	Corrected   string       `json:"corrected"`
	Changed     bool         `json:"changed"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggester proposes "did you mean" corrections from filename terms.
type Suggester struct {
	source      TermSource
	maxDistance int
	maxResults  int
}

// NewSuggester returns a Suggester allowing up to maxDistance edits.
func NewSuggester(source TermSource, maxDistance int) *Suggester {
	if maxDistance <= 0 {
		maxDistance = 2
	}
	return &Suggester{source: source, maxDistance: maxDistance, maxResults: 5}
}

// Check replaces every unknown query term with its best suggestion.
func (s *Suggester) Check(query string) (*Correction, error) {
	terms, err := s.source.Terms()
	if err != nil {
		return nil, err
	}
	out := &Correction{Query: query, Suggestions: []Suggestion{}}
	words := tokenize(query)
	corrected := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := terms[w]; ok {
			corrected = append(corrected, w)
			continue
		}
		sugg := s.suggest(w, terms)
		if len(sugg) == 0 {
			corrected = append(corrected, w)
			continue
		}
		out.Changed = true
		out.Suggestions = append(out.Suggestions, sugg...)
		corrected = append(corrected, sugg[0].Term)
	}
	out.Corrected = strings.Join(corrected, " ")
	return out, nil
}

func (s *Suggester) suggest(term string, terms map[string]int) []Suggestion {
	var out []Suggestion
	for t, freq := range terms {
		diff := len(t) - len(term)
		if diff < 0 {
			diff = -diff
		}
		if diff > s.maxDistance {
			continue
		}
		d := edlib.LevenshteinDistance(term, t)
		if d == 0 || d > s.maxDistance {
			continue
		}
		out = append(out, Suggestion{
			Term:      t,
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxResults {
		out = out[:s.maxResults]
	}
	return out
}
