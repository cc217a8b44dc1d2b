package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/cratedig/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		format TEXT,
		size INTEGER NOT NULL,
		mtime_ns INTEGER NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		metrics TEXT,
		lufs REAL,
		quality_score INTEGER,
		has_clipping INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_fingerprint ON tracks(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_tracks_updated_at ON tracks(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

const trackColumns = `id, path, filename, format, size, mtime_ns, fingerprint, metrics, created_at, updated_at`

// UpsertTrack inserts a track or replaces the row with the same path.
// CreatedAt is preserved across updates.
func (s *SQLiteStorage) UpsertTrack(ctx context.Context, track *models.Track) error {
	var (
		metricsJSON sql.NullString
		lufs        sql.NullFloat64
		score       sql.NullInt64
		clipped     bool
	)
	if m := track.Metrics; m != nil {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		metricsJSON = sql.NullString{String: string(b), Valid: true}
		if m.LUFS != nil {
			lufs = sql.NullFloat64{Float64: *m.LUFS, Valid: true}
		}
		score = sql.NullInt64{Int64: int64(m.QualityScore), Valid: true}
		clipped = m.HasClipping
	}

	now := time.Now()
	if track.CreatedAt.IsZero() {
		track.CreatedAt = now
	}
	track.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (id, path, filename, format, size, mtime_ns, fingerprint, metrics, lufs, quality_score, has_clipping, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			fingerprint = excluded.fingerprint,
			metrics = excluded.metrics,
			lufs = excluded.lufs,
			quality_score = excluded.quality_score,
			has_clipping = excluded.has_clipping,
			updated_at = excluded.updated_at`,
		track.ID, track.Path, track.Filename, track.Format, track.Size, track.ModTime.UnixNano(),
		track.Fingerprint, metricsJSON, lufs, score, clipped, track.CreatedAt, track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track %s: %w", track.Path, err)
	}
	return nil
}

// GetTrack returns a track by ID.
func (s *SQLiteStorage) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return track, err
}

// GetTrackByPath returns the track stored for path.
func (s *SQLiteStorage) GetTrackByPath(ctx context.Context, path string) (*models.Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE path = ?`, path)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return track, err
}

// DeleteTrack removes a track by ID. Deleting a missing track is not an error.
func (s *SQLiteStorage) DeleteTrack(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	return err
}

// DeleteTrackByPath removes the track stored for path.
func (s *SQLiteStorage) DeleteTrackByPath(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE path = ?`, path)
	return err
}

// ListTracks returns tracks ordered by path with offset and limit.
func (s *SQLiteStorage) ListTracks(ctx context.Context, offset, limit int) ([]*models.Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks ORDER BY path LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// ListFingerprints returns path to fingerprint for tracks under dir.
func (s *SQLiteStorage) ListFingerprints(ctx context.Context, dir string) (map[string]string, error) {
	where, args := underDir(dir)
	rows, err := s.db.QueryContext(ctx, `SELECT path, fingerprint FROM tracks`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fps := make(map[string]string)
	for rows.Next() {
		var path, fp string
		if err := rows.Scan(&path, &fp); err != nil {
			return nil, err
		}
		fps[path] = fp
	}
	return fps, rows.Err()
}

// CountTracks returns the total number of tracks.
func (s *SQLiteStorage) CountTracks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&count)
	return count, err
}

// Stats aggregates tracks under dir (all tracks when dir is empty).
func (s *SQLiteStorage) Stats(ctx context.Context, dir string) (*LibraryStats, error) {
	where, args := underDir(dir)
	var (
		stats    LibraryStats
		avgLUFS  sql.NullFloat64
		avgScore sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(size), 0),
			COALESCE(SUM(CASE WHEN fingerprint != '' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT NULLIF(fingerprint, '')),
			COALESCE(SUM(CASE WHEN metrics IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(has_clipping), 0),
			AVG(lufs),
			AVG(quality_score)
		 FROM tracks`+where, args...,
	).Scan(&stats.Tracks, &stats.TotalSize, &stats.Fingerprinted, &stats.DistinctFingerprints,
		&stats.Analyzed, &stats.Clipped, &avgLUFS, &avgScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tracks: %w", err)
	}
	if avgLUFS.Valid {
		stats.AvgLUFS = &avgLUFS.Float64
	}
	if avgScore.Valid {
		stats.AvgQualityScore = &avgScore.Float64
	}

	rows, err := s.db.QueryContext(ctx, `SELECT format, COUNT(*) FROM tracks`+where+` GROUP BY format`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats.ByFormat = make(map[string]int64)
	for rows.Next() {
		var format sql.NullString
		var n int64
		if err := rows.Scan(&format, &n); err != nil {
			return nil, err
		}
		stats.ByFormat[format.String] += n
	}
	return &stats, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*models.Track, error) {
	var (
		track       models.Track
		format      sql.NullString
		mtimeNS     int64
		metricsJSON sql.NullString
	)
	if err := row.Scan(&track.ID, &track.Path, &track.Filename, &format, &track.Size, &mtimeNS,
		&track.Fingerprint, &metricsJSON, &track.CreatedAt, &track.UpdatedAt); err != nil {
		return nil, err
	}
	track.Format = format.String
	track.ModTime = time.Unix(0, mtimeNS)
	if metricsJSON.Valid && metricsJSON.String != "" {
		var m models.AudioMetrics
		if err := json.Unmarshal([]byte(metricsJSON.String), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		track.Metrics = &m
	}
	return &track, nil
}

// underDir builds a WHERE clause selecting paths inside dir.
func underDir(dir string) (string, []any) {
	if dir == "" {
		return "", nil
	}
	dir = filepath.Clean(dir)
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return ` WHERE path = ? OR substr(path, 1, ?) = ?`, []any{dir, utf8.RuneCountInString(prefix), prefix}
}
