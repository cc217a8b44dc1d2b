package quality

import (
	"sort"
	"strings"
)

// Candidate describes one copy of a duplicated recording.
type Candidate struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Size       int64  `json:"size"`
	SampleRate int    `json:"sample_rate,omitempty"`
	BitRate    int64  `json:"bit_rate,omitempty"`
}

// Ranked is a Candidate with its technical score.
type Ranked struct {
	Candidate
	Lossless       bool   `json:"lossless"`
	Score          int    `json:"technical_score"`
	Recommendation string `json:"recommendation"`
}

const mib = 1024 * 1024

var (
	losslessFormats = map[string]bool{".wav": true, ".flac": true, ".aiff": true, ".aif": true}
	lossyFormats    = map[string]bool{".mp3": true, ".m4a": true, ".ogg": true}
)

// TechnicalScore estimates how good a copy is from its container format,
// file size, sample rate and bit rate.
func TechnicalScore(c Candidate) int {
	score := 0
	format := strings.ToLower(c.Format)
	switch {
	case losslessFormats[format]:
		score += 30
	case lossyFormats[format]:
		score += 10
	}

	switch {
	case c.Size > 50*mib:
		score += 20
	case c.Size > 20*mib:
		score += 10
	}

	switch {
	case c.SampleRate >= 96000:
		score += 25
	case c.SampleRate >= 48000:
		score += 15
	case c.SampleRate >= 44100:
		score += 10
	}

	switch {
	case c.BitRate >= 320000:
		score += 20
	case c.BitRate >= 192000:
		score += 10
	}
	return score
}

func recommendation(score int) string {
	switch {
	case score >= 60:
		return "best"
	case score >= 40:
		return "good"
	case score >= 20:
		return "acceptable"
	default:
		return "poor"
	}
}

// RankDuplicates orders candidates best first. Ties go to the larger file,
// then to the lexicographically smaller path.
func RankDuplicates(candidates []Candidate) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		s := TechnicalScore(c)
		ranked[i] = Ranked{
			Candidate:      c,
			Lossless:       losslessFormats[strings.ToLower(c.Format)],
			Score:          s,
			Recommendation: recommendation(s),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.Path < b.Path
	})
	return ranked
}
