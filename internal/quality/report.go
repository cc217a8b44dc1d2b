package quality

import "github.com/hyperjump/cratedig/internal/models"

// Report is a human-oriented assessment of one track.
type Report struct {
	Classification  string   `json:"classification"`
	Folder          string   `json:"suggested_folder"`
	Action          string   `json:"action"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	Score           int      `json:"quality_score"`
}

// Issues lists problems found in m with a matching recommendation for each.
func Issues(m *models.AudioMetrics) (issues, recommendations []string) {
	add := func(issue, rec string) {
		issues = append(issues, issue)
		recommendations = append(recommendations, rec)
	}

	switch {
	case lufsBelow(m, quietLUFS):
		add("TOO QUIET - Needs significant level boost", "Increase gain by +6dB minimum before mastering")
	case lufsBelow(m, quietishLUFS):
		add("Quiet - May need mastering", "Apply gentle compression and limiting")
	case lufsAbove(m, loudLUFS):
		add("TOO LOUD - Over-compressed", "Reduce limiting, increase dynamic range")
	case lufsAbove(m, loudishLUFS):
		add("Loud - May sound fatiguing", "Consider quieter master for streaming")
	}

	switch {
	case m.HasClipping:
		add("CLIPPING - Digital distortion present", "URGENT: Apply true peak limiting below -1dBTP")
	case nearClipping(m):
		add("Peak Warning - Close to clipping", "Apply stricter peak limiting for safety")
	}

	if m.BitDepth > 0 && m.BitDepth < 24 {
		add("Low bit depth - May have noise floor issues", "Use 24-bit for production, 16-bit only for final delivery")
	}
	if m.SampleRate > 0 && m.SampleRate < 44100 {
		add("Low sample rate - Frequency range limited", "Record/mix at 48kHz minimum")
	}
	return issues, recommendations
}

// SuggestFolder returns the library folder for m and the action it needs.
// Clipping outranks everything; a high score outranks loudness complaints.
func SuggestFolder(m *models.AudioMetrics) (classification, folder, action string) {
	switch {
	case m.HasClipping:
		return Clipped, "00_URGENT_CLIPPED", "Fix immediately - digital distortion present"
	case m.QualityScore >= 85:
		return StreamingReady, "01_MASTERS_StreamingReady", "Ready for release"
	case lufsBelow(m, quietLUFS):
		return TooQuiet, "03_NEEDS_Mastering/too_quiet", "Apply gain/compression to reach -16 LUFS"
	case lufsAbove(m, loudLUFS):
		return TooLoud, "04_NEEDS_Remaster/over_compressed", "Create quieter streaming master (-14 LUFS)"
	case m.QualityScore >= 50:
		return NeedsWork, "03_NEEDS_Mastering", "Apply mastering chain for consistency"
	default:
		return MajorIssues, "05_DAMAGED_Issues", "Requires attention before use"
	}
}

// Assess builds the full report for m.
func Assess(m *models.AudioMetrics) Report {
	issues, recs := Issues(m)
	if issues == nil {
		issues = []string{}
		recs = []string{}
	}
	classification, folder, action := SuggestFolder(m)
	return Report{
		Classification:  classification,
		Folder:          folder,
		Action:          action,
		Issues:          issues,
		Recommendations: recs,
		Score:           m.QualityScore,
	}
}
