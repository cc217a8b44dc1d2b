// Package storage persists scanned tracks, their fingerprints, and analysis results.
package storage

import (
	"context"
	"errors"
	"os"

	"github.com/hyperjump/cratedig/internal/models"
)

// ErrNotFound is returned when a track does not exist.
var ErrNotFound = errors.New("track not found")

// Storage defines track persistence operations.
type Storage interface {
	UpsertTrack(ctx context.Context, track *models.Track) error
	GetTrack(ctx context.Context, id string) (*models.Track, error)
	GetTrackByPath(ctx context.Context, path string) (*models.Track, error)
	DeleteTrack(ctx context.Context, id string) error
	DeleteTrackByPath(ctx context.Context, path string) error
	ListTracks(ctx context.Context, offset, limit int) ([]*models.Track, error)

	// ListFingerprints maps path to fingerprint for every track under dir.
	// An empty dir selects all tracks. Tracks without a fingerprint map to "".
	ListFingerprints(ctx context.Context, dir string) (map[string]string, error)

	CountTracks(ctx context.Context) (int64, error)
	Stats(ctx context.Context, dir string) (*LibraryStats, error)

	Close() error
}

// LibraryStats aggregates the tracks under a directory.
type LibraryStats struct {
	Tracks               int64            `json:"tracks"`
	TotalSize            int64            `json:"total_size"`
	Fingerprinted        int64            `json:"fingerprinted"`
	DistinctFingerprints int64            `json:"distinct_fingerprints"`
	Analyzed             int64            `json:"analyzed"`
	Clipped              int64            `json:"clipped"`
	AvgLUFS              *float64         `json:"avg_lufs,omitempty"`
	AvgQualityScore      *float64         `json:"avg_quality_score,omitempty"`
	ByFormat             map[string]int64 `json:"by_format"`
}

// IsFresh reports whether a cached track still describes the file at info:
// same size and modification time.
func IsFresh(track *models.Track, info os.FileInfo) bool {
	if track == nil || info == nil {
		return false
	}
	return track.Size == info.Size() && track.ModTime.Equal(info.ModTime())
}
