// Package models defines core data structures for tracks, duplicate groups, and scan tasks.
package models

import "time"

// Track is an audio file known to the library.
type Track struct {
	ID          string        `json:"id" db:"id"`
	Path        string        `json:"path" db:"path"`
	Filename    string        `json:"filename" db:"filename"`
	Format      string        `json:"format" db:"format"`
	Size        int64         `json:"size" db:"size"`
	ModTime     time.Time     `json:"mod_time" db:"mod_time"`
	Fingerprint string        `json:"fingerprint,omitempty" db:"fingerprint"`
	Metrics     *AudioMetrics `json:"metrics,omitempty" db:"metrics"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// AudioMetrics holds technical and loudness measurements for a track.
// LUFS, TruePeak and LoudnessRange are nil when loudness could not be measured.
type AudioMetrics struct {
	Codec          string    `json:"codec,omitempty"`
	SampleRate     int       `json:"sample_rate,omitempty"`
	BitDepth       int       `json:"bit_depth,omitempty"`
	BitRate        int64     `json:"bit_rate,omitempty"`
	Duration       float64   `json:"duration_seconds,omitempty"`
	LUFS           *float64  `json:"lufs,omitempty"`
	TruePeak       *float64  `json:"true_peak,omitempty"`
	LoudnessRange  *float64  `json:"loudness_range,omitempty"`
	HasClipping    bool      `json:"has_clipping"`
	QualityScore   int       `json:"quality_score"`
	Classification string    `json:"classification,omitempty"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
}
