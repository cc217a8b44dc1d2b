package cluster

import (
	"sort"

	"github.com/hyperjump/cratedig/internal/models"
)

// Assemble merges exact and near groups into a ClusteringResult. Every id
// in allIDs that is not a group member is reported as unique, including the
// unfingerprinted ones. Slices in the result are never nil.
func Assemble(allIDs []string, exact, near []models.DuplicateGroup, unfingerprinted []string) *models.ClusteringResult {
	groups := make([]models.DuplicateGroup, 0, len(exact)+len(near))
	groups = append(groups, exact...)
	groups = append(groups, near...)

	inGroup := make(map[string]struct{})
	duplicates := 0
	for _, g := range groups {
		for _, m := range g.Members {
			inGroup[m] = struct{}{}
		}
		duplicates += len(g.Members) - 1
	}

	unique := []string{}
	for _, id := range allIDs {
		if _, ok := inGroup[id]; !ok {
			unique = append(unique, id)
		}
	}
	sort.Strings(unique)

	unfp := make([]string, len(unfingerprinted))
	copy(unfp, unfingerprinted)
	sort.Strings(unfp)

	return &models.ClusteringResult{
		Groups:          groups,
		UniqueFiles:     unique,
		Unfingerprinted: unfp,
		TotalFiles:      len(allIDs),
		TotalDuplicates: duplicates,
		GroupCount:      len(groups),
		UniqueCount:     len(unique),
	}
}
