package models

// Group kinds.
const (
	GroupExact = "exact"
	GroupNear  = "near"
)

// DuplicateGroup names two or more files with identical or near-identical
// fingerprints. Representative is always Members[0].
type DuplicateGroup struct {
	Representative string   `json:"representative"`
	Members        []string `json:"members"`
	Kind           string   `json:"kind"`
}

// Size returns the number of members.
func (g DuplicateGroup) Size() int {
	return len(g.Members)
}

// ClusteringResult is the outcome of one duplicate-detection run.
// Groups are disjoint and, together with UniqueFiles, cover every input file
// exactly once. Unfingerprinted files are also listed in UniqueFiles.
type ClusteringResult struct {
	Groups          []DuplicateGroup `json:"groups"`
	UniqueFiles     []string         `json:"uniqueFiles"`
	Unfingerprinted []string         `json:"unfingerprinted"`
	TotalFiles      int              `json:"totalFiles"`
	TotalDuplicates int              `json:"totalDuplicates"`
	GroupCount      int              `json:"groupCount"`
	UniqueCount     int              `json:"uniqueCount"`
}

// Duplicates returns every non-representative group member, i.e. the files
// that could be removed while keeping one copy per group.
func (r *ClusteringResult) Duplicates() []string {
	var out []string
	for _, g := range r.Groups {
		out = append(out, g.Members[1:]...)
	}
	return out
}
