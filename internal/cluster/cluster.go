// Package cluster groups audio files into exact and near-duplicate sets by
// comparing their fingerprints.
package cluster

import (
	"context"
	"sort"

	"github.com/hyperjump/cratedig/internal/models"
)

// Progress phases.
const (
	PhaseExact    = "exact"
	PhaseNear     = "near"
	PhaseAssemble = "assemble"
)

// ProgressFunc observes clustering progress. label is a bucket prefix during
// the near phase and empty otherwise.
type ProgressFunc func(phase string, completed, total int, label string)

// FindDuplicates clusters fps (file id to hex fingerprint) into duplicate
// groups.
//
// Ids are processed in lexicographic order so the result is deterministic.
// Identical fingerprints form exact groups first; the remaining files are
// grouped by prefix bucket and similarity. Files with an empty fingerprint
// are reported as unique. The only errors are ErrInvalidConfig, returned
// before any work, and the context's error if it is cancelled.
func FindDuplicates(ctx context.Context, fps map[string]string, cfg Config, onProgress ProgressFunc) (*models.ClusteringResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := func(phase string, completed, total int) {
		if onProgress != nil {
			onProgress(phase, completed, total, "")
		}
	}

	ids := make([]string, 0, len(fps))
	for id := range fps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report(PhaseExact, 0, len(ids))
	exact, singles, unfingerprinted := GroupExact(ids, fps)

	near, err := GroupNear(ctx, singles, fps, cfg, onProgress)
	if err != nil {
		return nil, err
	}

	report(PhaseAssemble, 0, 1)
	return Assemble(ids, exact, near, unfingerprinted), nil
}
