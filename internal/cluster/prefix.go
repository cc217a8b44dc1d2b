package cluster

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/cratedig/internal/fingerprint"
	"github.com/hyperjump/cratedig/internal/models"
)

type bucket struct {
	prefix  string
	members []string
}

// GroupNear finds near-duplicate groups among singles.
//
// Fingerprints shorter than cfg.PrefixLen are skipped. The rest are bucketed
// by their first PrefixLen characters; only files sharing a bucket are
// compared. Within a bucket each ungrouped file, in order, anchors a group
// and collects every later ungrouped file scoring at least cfg.NearThreshold
// against it. Grouping is not transitive: two members of one group may score
// below the threshold against each other.
//
// Buckets are processed concurrently with at most cfg.Workers in flight.
// Cancellation is observed between buckets. onProgress, when non-nil, is
// called when the phase starts, even with no buckets, and then once per
// bucket, never concurrently.
func GroupNear(ctx context.Context, singles []string, fps map[string]string, cfg Config, onProgress ProgressFunc) ([]models.DuplicateGroup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buckets := bucketByPrefix(singles, fps, cfg.PrefixLen)
	if onProgress != nil {
		onProgress(PhaseNear, 0, len(buckets), "")
	}
	if len(buckets) == 0 {
		return nil, ctx.Err()
	}

	results := make([][]models.DuplicateGroup, len(buckets))
	var (
		mu        sync.Mutex
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for i, b := range buckets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = groupBucket(b.members, fps, cfg)
			if onProgress != nil {
				mu.Lock()
				completed++
				onProgress(PhaseNear, completed, len(buckets), b.prefix)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var groups []models.DuplicateGroup
	for _, r := range results {
		groups = append(groups, r...)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Representative < groups[j].Representative
	})
	return groups, nil
}

// bucketByPrefix keeps only buckets with two or more members, ordered by
// their first member.
func bucketByPrefix(ids []string, fps map[string]string, prefixLen int) []bucket {
	index := make(map[string]int)
	var all []bucket
	for _, id := range ids {
		fp := fingerprint.Normalize(fps[id])
		if len(fp) < prefixLen {
			continue
		}
		key := fp[:prefixLen]
		i, ok := index[key]
		if !ok {
			i = len(all)
			index[key] = i
			all = append(all, bucket{prefix: key})
		}
		all[i].members = append(all[i].members, id)
	}

	out := all[:0]
	for _, b := range all {
		if len(b.members) >= 2 {
			out = append(out, b)
		}
	}
	return out
}

// groupBucket runs anchor-based greedy grouping over one bucket.
func groupBucket(members []string, fps map[string]string, cfg Config) []models.DuplicateGroup {
	grouped := make([]bool, len(members))
	var groups []models.DuplicateGroup
	for i, anchor := range members {
		if grouped[i] {
			continue
		}
		anchorFP := fingerprint.Normalize(fps[anchor])
		group := []string{anchor}
		kind := models.GroupExact
		for j := i + 1; j < len(members); j++ {
			if grouped[j] {
				continue
			}
			sim := fingerprint.Similarity(anchorFP, fingerprint.Normalize(fps[members[j]]))
			if sim < cfg.NearThreshold {
				continue
			}
			if sim < cfg.ExactThreshold {
				kind = models.GroupNear
			}
			group = append(group, members[j])
			grouped[j] = true
		}
		if len(group) < 2 {
			continue
		}
		grouped[i] = true
		groups = append(groups, models.DuplicateGroup{
			Representative: anchor,
			Members:        group,
			Kind:           kind,
		})
	}
	return groups
}
