package organizer

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/quality"
)

// Move reasons.
const (
	ReasonDuplicate = "duplicate"
	ReasonVersion   = "version"
	ReasonQuality   = "quality"
	ReasonFormat    = "format"
)

// Folder names under the output directory.
const (
	DuplicatesDir = "Duplicates"
	VersionsDir   = "Versions"
)

// Move relocates one file into Dir under its original name.
type Move struct {
	Source string `json:"source"`
	Dir    string `json:"dir"`
	Reason string `json:"reason"`
	Keep   string `json:"keep,omitempty"`
}

// Plan is an ordered list of moves into OutDir.
type Plan struct {
	OutDir string `json:"out_dir"`
	Moves  []Move `json:"moves"`
}

// Count returns the number of moves per reason.
func (p *Plan) Count() map[string]int {
	counts := make(map[string]int)
	for _, m := range p.Moves {
		counts[m.Reason]++
	}
	return counts
}

// NewPlan decides where every track goes.
//
// In each duplicate group the copy with the best technical score is kept and
// organized like a unique file; the other members go to Duplicates/. Tracks in a
// version family go to Versions/<base>/. Everything else goes to its quality
// folder when it has been analyzed, or to a folder named after its format.
// result may be nil when duplicates were not computed.
func NewPlan(result *models.ClusteringResult, tracks []*models.Track, outDir string) *Plan {
	byPath := make(map[string]*models.Track, len(tracks))
	for _, t := range tracks {
		byPath[t.Path] = t
	}
	plan := &Plan{OutDir: outDir}
	placed := make(map[string]bool)

	if result != nil {
		for _, g := range result.Groups {
			keep := keeper(g, byPath)
			for _, member := range g.Members {
				if member == keep {
					continue
				}
				placed[member] = true
				plan.Moves = append(plan.Moves, Move{
					Source: member,
					Dir:    filepath.Join(outDir, DuplicatesDir),
					Reason: ReasonDuplicate,
					Keep:   keep,
				})
			}
		}
	}

	var rest []*models.Track
	for _, t := range tracks {
		if !placed[t.Path] {
			rest = append(rest, t)
		}
	}
	for _, f := range Families(rest) {
		dir := filepath.Join(outDir, VersionsDir, safeDirName(f.Base))
		for _, t := range f.Tracks {
			placed[t.Path] = true
			plan.Moves = append(plan.Moves, Move{Source: t.Path, Dir: dir, Reason: ReasonVersion})
		}
	}

	sorted := append([]*models.Track(nil), tracks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, t := range sorted {
		if placed[t.Path] {
			continue
		}
		if t.Metrics != nil {
			_, folder, _ := quality.SuggestFolder(t.Metrics)
			plan.Moves = append(plan.Moves, Move{
				Source: t.Path,
				Dir:    filepath.Join(outDir, filepath.FromSlash(folder)),
				Reason: ReasonQuality,
			})
			continue
		}
		plan.Moves = append(plan.Moves, Move{
			Source: t.Path,
			Dir:    filepath.Join(outDir, formatDir(t)),
			Reason: ReasonFormat,
		})
	}
	return plan
}

// keeper picks the member to leave in place: the best ranked copy.
func keeper(g models.DuplicateGroup, byPath map[string]*models.Track) string {
	candidates := make([]quality.Candidate, 0, len(g.Members))
	for _, member := range g.Members {
		c := quality.Candidate{Path: member, Format: strings.ToLower(filepath.Ext(member))}
		if t, ok := byPath[member]; ok {
			c.Size = t.Size
			if t.Format != "" {
				c.Format = t.Format
			}
			if t.Metrics != nil {
				c.SampleRate = t.Metrics.SampleRate
				c.BitRate = t.Metrics.BitRate
			}
		}
		candidates = append(candidates, c)
	}
	ranked := quality.RankDuplicates(candidates)
	if len(ranked) == 0 {
		return g.Representative
	}
	return ranked[0].Path
}

func formatDir(t *models.Track) string {
	ext := t.Format
	if ext == "" {
		ext = filepath.Ext(t.Path)
	}
	name := strings.ToUpper(strings.TrimPrefix(ext, "."))
	if name == "" {
		return "OTHER"
	}
	return name
}

func safeDirName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_")
	return r.Replace(name)
}
