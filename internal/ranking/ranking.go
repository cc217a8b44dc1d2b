// Package ranking re-scores track search hits by how well the query matches
// the file name.
package ranking

import (
	"path/filepath"
	"strings"

	"github.com/hyperjump/cratedig/pkg/utils"
)

// MatchType is how the query matched a file name.
type MatchType int

const (
	// MatchTypeNone means no query term is in the file name; the hit came
	// from the path, format or quality folder.
	MatchTypeNone MatchType = iota
	// MatchTypePartial means some query terms are in the file name.
	MatchTypePartial
	// MatchTypeAllWords means every term is in the file name, in any order.
	MatchTypeAllWords
	// MatchTypeInOrder means every term is in the file name, in query order.
	MatchTypeInOrder
	// MatchTypeExact means the file name without extension is the query.
	MatchTypeExact
)

// String returns a string representation of the match type.
func (m MatchType) String() string {
	switch m {
	case MatchTypeNone:
		return "none"
	case MatchTypePartial:
		return "partial"
	case MatchTypeAllWords:
		return "all_words"
	case MatchTypeInOrder:
		return "in_order"
	case MatchTypeExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Config holds the score multipliers per match type.
type Config struct {
	ExactMultiplier    float64 `yaml:"exact"`
	InOrderMultiplier  float64 `yaml:"in_order"`
	AllWordsMultiplier float64 `yaml:"all_words"`
	PartialMultiplier  float64 `yaml:"partial"`
	NoneMultiplier     float64 `yaml:"none"`
	// QualityWeight scales the bonus for analyzed tracks: a quality score of
	// 100 multiplies the result by 1+QualityWeight.
	QualityWeight float64 `yaml:"quality_weight"`
}

// DefaultConfig returns the default multipliers.
func DefaultConfig() Config {
	return Config{
		ExactMultiplier:    2.0,
		InOrderMultiplier:  1.6,
		AllWordsMultiplier: 1.4,
		PartialMultiplier:  1.0,
		NoneMultiplier:     0.8,
		QualityWeight:      0.1,
	}
}

// Ranker re-scores hits.
type Ranker struct {
	cfg Config
}

// New creates a Ranker. Zero multipliers and a zero QualityWeight fall back to
// the defaults; a negative QualityWeight disables the quality bonus.
func New(cfg Config) *Ranker {
	def := DefaultConfig()
	if cfg.ExactMultiplier <= 0 {
		cfg.ExactMultiplier = def.ExactMultiplier
	}
	if cfg.InOrderMultiplier <= 0 {
		cfg.InOrderMultiplier = def.InOrderMultiplier
	}
	if cfg.AllWordsMultiplier <= 0 {
		cfg.AllWordsMultiplier = def.AllWordsMultiplier
	}
	if cfg.PartialMultiplier <= 0 {
		cfg.PartialMultiplier = def.PartialMultiplier
	}
	if cfg.NoneMultiplier <= 0 {
		cfg.NoneMultiplier = def.NoneMultiplier
	}
	switch {
	case cfg.QualityWeight == 0:
		cfg.QualityWeight = def.QualityWeight
	case cfg.QualityWeight < 0:
		cfg.QualityWeight = 0
	}
	return &Ranker{cfg: cfg}
}

// Score returns base adjusted for the file name match and the track's
// quality score (0 when not analyzed).
func (r *Ranker) Score(query, filename string, base float64, quality int) float64 {
	score := base * r.multiplier(Classify(query, filename))
	if quality > 0 {
		score *= 1 + r.cfg.QualityWeight*float64(utils.ClampInt(quality, 0, 100))/100
	}
	return score
}

func (r *Ranker) multiplier(m MatchType) float64 {
	switch m {
	case MatchTypeExact:
		return r.cfg.ExactMultiplier
	case MatchTypeInOrder:
		return r.cfg.InOrderMultiplier
	case MatchTypeAllWords:
		return r.cfg.AllWordsMultiplier
	case MatchTypePartial:
		return r.cfg.PartialMultiplier
	default:
		return r.cfg.NoneMultiplier
	}
}

// Classify reports how query matches filename. Terms match as prefixes of
// file name words, so "kic" matches "kick_hard.wav".
func Classify(query, filename string) MatchType {
	terms := Terms(query)
	if len(terms) == 0 {
		return MatchTypeNone
	}
	name := NormalizeFilename(filename)
	if name == strings.Join(terms, " ") {
		return MatchTypeExact
	}
	words := strings.Fields(name)
	positions := make([]int, 0, len(terms))
	for _, t := range terms {
		if pos := prefixIndex(t, words); pos >= 0 {
			positions = append(positions, pos)
		}
	}
	switch {
	case len(positions) == 0:
		return MatchTypeNone
	case len(positions) < len(terms):
		return MatchTypePartial
	case inOrder(positions):
		return MatchTypeInOrder
	default:
		return MatchTypeAllWords
	}
}

// Terms splits a query into lower-case words, treating _ - . as spaces.
func Terms(query string) []string {
	return strings.Fields(strings.ToLower(utils.SpaceWords(query)))
}

// NormalizeFilename lower-cases the base name without extension and turns
// separators into single spaces: "Dark_Pad-02.wav" becomes "dark pad 02".
func NormalizeFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(utils.SpaceWords(base))
}

func prefixIndex(term string, words []string) int {
	for i, w := range words {
		if strings.HasPrefix(w, term) {
			return i
		}
	}
	return -1
}

func inOrder(positions []int) bool {
	for i := 1; i < len(positions); i++ {
		if positions[i] <= positions[i-1] {
			return false
		}
	}
	return true
}
