// Package quality scores mastering quality from loudness and format metrics
// and suggests where a track belongs in an organized library.
package quality

import (
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/pkg/utils"
)

// Classifications.
const (
	Clipped        = "CLIPPED"
	TooLoud        = "TOO_LOUD"
	TooQuiet       = "TOO_QUIET"
	StreamingReady = "STREAMING_READY"
	GoodQuality    = "GOOD_QUALITY"
	NeedsWork      = "NEEDS_WORK"
	MajorIssues    = "MAJOR_ISSUES"
)

// Loudness limits in LUFS and dBFS.
const (
	quietLUFS     = -23.0
	quietishLUFS  = -20.0
	loudLUFS      = -8.0
	loudishLUFS   = -12.0
	sweetSpotLow  = -16.0
	sweetSpotHigh = -12.0
	peakWarning   = -0.5
)

func lufsBelow(m *models.AudioMetrics, limit float64) bool {
	return m.LUFS != nil && *m.LUFS < limit
}

func lufsAbove(m *models.AudioMetrics, limit float64) bool {
	return m.LUFS != nil && *m.LUFS > limit
}

func nearClipping(m *models.AudioMetrics) bool {
	return m.TruePeak != nil && *m.TruePeak > peakWarning
}

// HasClipping reports whether the true peak exceeds 0 dBFS.
func HasClipping(m *models.AudioMetrics) bool {
	return m.TruePeak != nil && *m.TruePeak > 0
}

// Score rates m from 0 to 100. Clipping and loudness outside the streaming
// range cost points; a loudness sweet spot and high-resolution formats earn
// them.
func Score(m *models.AudioMetrics) int {
	score := 100
	switch {
	case m.HasClipping:
		score -= 40
	case nearClipping(m):
		score -= 20
	}

	if m.LUFS != nil {
		switch l := *m.LUFS; {
		case l < quietLUFS:
			score -= 20
		case l > loudLUFS:
			score -= 25
		case l >= sweetSpotLow && l <= sweetSpotHigh:
			score += 10
		}
	}

	if m.BitDepth >= 24 {
		score += 5
	}
	if m.SampleRate >= 48000 {
		score += 5
	}
	return utils.ClampInt(score, 0, 100)
}

// Classify labels m. QualityScore must already be set.
func Classify(m *models.AudioMetrics) string {
	switch {
	case m.HasClipping:
		return Clipped
	case lufsAbove(m, loudLUFS):
		return TooLoud
	case lufsBelow(m, quietLUFS):
		return TooQuiet
	case m.QualityScore >= 85:
		return StreamingReady
	case m.QualityScore >= 70:
		return GoodQuality
	case m.QualityScore >= 50:
		return NeedsWork
	default:
		return MajorIssues
	}
}

// Evaluate fills the derived fields of m: clipping flag, score and
// classification.
func Evaluate(m *models.AudioMetrics) {
	m.HasClipping = HasClipping(m)
	m.QualityScore = Score(m)
	m.Classification = Classify(m)
}
