package cluster

import (
	"github.com/hyperjump/cratedig/internal/fingerprint"
	"github.com/hyperjump/cratedig/internal/models"
)

// GroupExact buckets ids by identical (case-normalized) fingerprint.
//
// ids must already be sorted; output preserves that order. Buckets of two or
// more become exact groups whose representative is the first member. Files
// in size-one buckets are returned as singles. Files with an empty
// fingerprint are returned separately as unfingerprinted.
func GroupExact(ids []string, fps map[string]string) (exact []models.DuplicateGroup, singles, unfingerprinted []string) {
	buckets := make(map[string][]string, len(ids))
	var order []string
	for _, id := range ids {
		fp := fingerprint.Normalize(fps[id])
		if fp == "" {
			unfingerprinted = append(unfingerprinted, id)
			continue
		}
		if _, ok := buckets[fp]; !ok {
			order = append(order, fp)
		}
		buckets[fp] = append(buckets[fp], id)
	}

	for _, fp := range order {
		members := buckets[fp]
		if len(members) < 2 {
			continue
		}
		exact = append(exact, models.DuplicateGroup{
			Representative: members[0],
			Members:        members,
			Kind:           models.GroupExact,
		})
	}
	// second pass keeps singles in input order
	for _, id := range ids {
		fp := fingerprint.Normalize(fps[id])
		if fp != "" && len(buckets[fp]) == 1 {
			singles = append(singles, id)
		}
	}
	return exact, singles, unfingerprinted
}
