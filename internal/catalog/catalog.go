// Package catalog provides keyword search over the track library.
package catalog

import (
	"context"

	"github.com/hyperjump/cratedig/internal/models"
)

// SearchOptions tune keyword search. Nil means use defaults.
type SearchOptions struct {
	// FilenameBoost multiplies the score of filename matches. Values > 1 run
	// a separate filename query and merge scores additively.
	FilenameBoost float64
	// Fuzzy enables typo-tolerant matching.
	Fuzzy bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2).
	Fuzziness int
}

// Catalog defines track indexing and search.
type Catalog interface {
	Index(ctx context.Context, track *models.Track) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error)
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
