// Package organizer plans and performs moves that sort a sample library into
// duplicate, version and quality folders.
package organizer

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/hyperjump/cratedig/internal/models"
)

// FamilySimilarity is the Jaro-Winkler score above which two base names are
// treated as the same track.
const FamilySimilarity = 0.92

// maxSizeSpread is the largest (max-min)/mean size ratio a family may have.
const maxSizeSpread = 0.5

var versionSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`[\s_-]*\(v\d+\)$`),
	regexp.MustCompile(`[\s_-]*v\d+$`),
	regexp.MustCompile(`[\s_-]*\((remix|final)\)$`),
	regexp.MustCompile(`[\s_-]+final$`),
	regexp.MustCompile(`[\s_-]*\d+$`),
}

// Family is a set of files that look like versions of one track.
type Family struct {
	Base   string          `json:"base"`
	Tracks []*models.Track `json:"tracks"`
}

// BaseName lowercases the file stem and strips version markers such as
// "v2", "_v2", "(v2)", "(remix)", "(final)", "_final" and trailing numbers.
func BaseName(filename string) string {
	name := strings.ToLower(strings.TrimSuffix(filename, filepath.Ext(filename)))
	name = strings.TrimSpace(name)
	for {
		stripped := name
		for _, re := range versionSuffixes {
			stripped = re.ReplaceAllString(stripped, "")
		}
		stripped = strings.TrimSpace(stripped)
		if stripped == name || stripped == "" {
			break
		}
		name = stripped
	}
	return name
}

// Families groups tracks whose base names match, or score at least
// FamilySimilarity under Jaro-Winkler, and whose sizes are close enough to be
// versions of one recording. Only families with two or more tracks are
// returned, ordered by base name.
func Families(tracks []*models.Track) []Family {
	byBase := make(map[string][]*models.Track)
	for _, t := range tracks {
		base := BaseName(t.Filename)
		if base == "" {
			continue
		}
		byBase[base] = append(byBase[base], t)
	}
	bases := make([]string, 0, len(byBase))
	for b := range byBase {
		bases = append(bases, b)
	}
	sort.Strings(bases)

	// merge similar names into the first (alphabetical) base
	merged := make(map[string]bool)
	var families []Family
	for i, base := range bases {
		if merged[base] {
			continue
		}
		members := append([]*models.Track(nil), byBase[base]...)
		for _, other := range bases[i+1:] {
			if merged[other] || !similarNames(base, other) {
				continue
			}
			merged[other] = true
			members = append(members, byBase[other]...)
		}
		if len(members) < 2 || !sizesClose(members) {
			continue
		}
		sort.Slice(members, func(a, b int) bool { return members[a].Path < members[b].Path })
		families = append(families, Family{Base: base, Tracks: members})
	}
	return families
}

func similarNames(a, b string) bool {
	sim, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	return err == nil && sim >= FamilySimilarity
}

func sizesClose(tracks []*models.Track) bool {
	var sum, lo, hi int64
	for i, t := range tracks {
		sum += t.Size
		if i == 0 || t.Size < lo {
			lo = t.Size
		}
		if t.Size > hi {
			hi = t.Size
		}
	}
	mean := float64(sum) / float64(len(tracks))
	return mean > 0 && float64(hi-lo)/mean <= maxSizeSpread
}
