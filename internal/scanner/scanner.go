// Package scanner discovers audio files, fingerprints them, and keeps the
// track store and catalog in sync with the file system.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/cratedig/internal/catalog"
	"github.com/hyperjump/cratedig/internal/fileid"
	"github.com/hyperjump/cratedig/internal/fingerprint"
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/storage"
)

// Progress phases.
const (
	PhaseDiscovery      = "discovery"
	PhaseFingerprinting = "fingerprinting"
	PhaseAnalysis       = "analysis"
)

// DefaultExtensions are the audio file types scanned when none are configured.
var DefaultExtensions = []string{".wav", ".mp3", ".flac", ".aif", ".aiff", ".m4a", ".ogg"}

// ErrUnsupported is returned for files that are not scannable audio.
var ErrUnsupported = errors.New("unsupported file")

// ProgressFunc observes scan progress. Calls are never concurrent.
type ProgressFunc func(phase string, completed, total int, current string)

// Analyzer measures audio metrics for a file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*models.AudioMetrics, error)
}

// Report summarizes one directory scan.
type Report struct {
	Root          string `json:"root"`
	Files         int    `json:"files"`
	TotalSize     int64  `json:"total_size"`
	Fingerprinted int    `json:"fingerprinted"`
	Cached        int    `json:"cached"`
	Failed        int    `json:"failed"`
	Removed       int    `json:"removed"`
	// Fingerprints maps every discovered path to its fingerprint ("" when
	// extraction failed).
	Fingerprints map[string]string `json:"-"`
}

// Paths returns the discovered paths.
func (r *Report) Paths() []string {
	paths := make([]string, 0, len(r.Fingerprints))
	for p := range r.Fingerprints {
		paths = append(paths, p)
	}
	return paths
}

// Scanner fingerprints and analyzes audio files into storage.
type Scanner struct {
	storage    storage.Storage
	extractor  fingerprint.Extractor
	catalog    catalog.Catalog
	analyzer   Analyzer
	extensions []string
	workers    int
	logger     *zap.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets a logger for per-file events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithCatalog keeps cat in sync with stored tracks.
func WithCatalog(cat catalog.Catalog) Option {
	return func(s *Scanner) { s.catalog = cat }
}

// WithAnalyzer enables audio analysis.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Scanner) { s.analyzer = a }
}

// WithExtensions restricts scanning to the given extensions.
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		if len(exts) > 0 {
			s.extensions = exts
		}
	}
}

// WithWorkers bounds concurrent fingerprinting and analysis.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New creates a Scanner.
func New(store storage.Storage, extractor fingerprint.Extractor, opts ...Option) *Scanner {
	s := &Scanner{
		storage:    store,
		extractor:  extractor,
		extensions: DefaultExtensions,
		workers:    runtime.NumCPU(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanAnalyze reports whether an analyzer is configured.
func (s *Scanner) CanAnalyze() bool {
	return s.analyzer != nil
}

// Supported reports whether path has a scannable extension.
func (s *Scanner) Supported(path string) bool {
	return extensionAllowed(filepath.Ext(path), s.extensions)
}

func extensionAllowed(ext string, allowed []string) bool {
	norm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if norm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == norm {
			return true
		}
	}
	return false
}

type discovered struct {
	path string
	info os.FileInfo
}

// Scan walks root, fingerprints new and changed audio files, and drops
// stored tracks whose files are gone. Unchanged files (same size and mtime)
// reuse their stored fingerprint. A file that cannot be fingerprinted is
// stored with an empty fingerprint and counted as failed; only storage and
// context errors abort the scan.
func (s *Scanner) Scan(ctx context.Context, root string, onProgress ProgressFunc) (*Report, error) {
	progress := s.serialize(onProgress)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absRoot)
	}

	files, err := s.discover(ctx, absRoot, progress)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Root:         absRoot,
		Files:        len(files),
		Fingerprints: make(map[string]string, len(files)),
	}

	reindex := s.catalogEmpty()
	var pending []discovered
	for _, f := range files {
		report.TotalSize += f.info.Size()
		cached, err := s.storage.GetTrackByPath(ctx, f.path)
		if err == nil && storage.IsFresh(cached, f.info) {
			report.Cached++
			report.Fingerprints[f.path] = cached.Fingerprint
			if reindex {
				s.index(ctx, cached)
			}
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		pending = append(pending, f)
	}
	s.logger.Info("scan discovered files",
		zap.String("root", absRoot),
		zap.Int("files", len(files)),
		zap.Int("cached", report.Cached),
		zap.Int("pending", len(pending)),
	)

	var mu sync.Mutex
	completed := 0
	progress(PhaseFingerprinting, 0, len(pending), "")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, f := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			track, ok, err := s.fingerprintFile(gctx, f)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			report.Fingerprints[f.path] = track.Fingerprint
			if ok {
				report.Fingerprinted++
			} else {
				report.Failed++
			}
			completed++
			progress(PhaseFingerprinting, completed, len(pending), f.path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	removed, err := s.prune(ctx, absRoot, report.Fingerprints)
	if err != nil {
		return nil, err
	}
	report.Removed = removed
	s.logger.Info("scan finished",
		zap.String("root", absRoot),
		zap.Int("fingerprinted", report.Fingerprinted),
		zap.Int("failed", report.Failed),
		zap.Int("removed", removed),
	)
	return report, nil
}

func (s *Scanner) discover(ctx context.Context, root string, progress ProgressFunc) ([]discovered, error) {
	var files []discovered
	progress(PhaseDiscovery, 0, 0, root)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.logger.Warn("scan skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.Supported(path) {
			return nil
		}
		// follow symlinks, keep regular files only
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, discovered{path: path, info: info})
		if len(files)%100 == 0 {
			progress(PhaseDiscovery, len(files), 0, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	progress(PhaseDiscovery, len(files), len(files), "")
	return files, nil
}

// fingerprintFile extracts and stores the fingerprint for f. ok is false when
// extraction failed; the track is still stored.
func (s *Scanner) fingerprintFile(ctx context.Context, f discovered) (*models.Track, bool, error) {
	fp, err := s.extractor.Fingerprint(ctx, f.path)
	ok := err == nil
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.logger.Warn("fingerprint failed", zap.String("path", f.path), zap.Error(err))
		fp = ""
	}
	track := newTrack(f.path, f.info)
	track.Fingerprint = fingerprint.Normalize(fp)
	if err := s.storage.UpsertTrack(ctx, track); err != nil {
		return nil, false, err
	}
	s.index(ctx, track)
	s.logger.Debug("track fingerprinted", zap.String("path", f.path), zap.String("fingerprint", track.Fingerprint))
	return track, ok, nil
}

func newTrack(path string, info os.FileInfo) *models.Track {
	return &models.Track{
		ID:       fileid.TrackID(path),
		Path:     path,
		Filename: filepath.Base(path),
		Format:   strings.ToLower(filepath.Ext(path)),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}
}

// prune deletes stored tracks under root that were not discovered.
func (s *Scanner) prune(ctx context.Context, root string, seen map[string]string) (int, error) {
	stored, err := s.storage.ListFingerprints(ctx, root)
	if err != nil {
		return 0, err
	}
	removed := 0
	for path := range stored {
		if _, ok := seen[path]; ok {
			continue
		}
		if err := s.RemoveFile(ctx, path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ScanFile fingerprints a single file (and analyzes it when an analyzer is
// configured) unless its stored track is still fresh.
func (s *Scanner) ScanFile(ctx context.Context, path string) (*models.Track, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !s.Supported(absPath) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, absPath)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", ErrUnsupported, absPath)
	}
	if cached, err := s.storage.GetTrackByPath(ctx, absPath); err == nil && storage.IsFresh(cached, info) {
		s.logger.Debug("scan skipping unchanged file", zap.String("path", absPath))
		return cached, nil
	}
	track, _, err := s.fingerprintFile(ctx, discovered{path: absPath, info: info})
	if err != nil {
		return nil, err
	}
	if s.analyzer != nil {
		if err := s.analyzeTrack(ctx, track); err != nil {
			s.logger.Warn("analysis failed", zap.String("path", absPath), zap.Error(err))
		}
	}
	return track, nil
}

// RemoveFile drops path from storage and the catalog.
func (s *Scanner) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	if err := s.storage.DeleteTrackByPath(ctx, absPath); err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	if s.catalog != nil {
		if err := s.catalog.Delete(ctx, fileid.TrackID(absPath)); err != nil {
			return fmt.Errorf("failed to delete from catalog: %w", err)
		}
	}
	s.logger.Debug("track removed", zap.String("path", absPath))
	return nil
}

// Analyze measures every path that has no metrics yet. Per-file failures are
// logged and counted; the returned error is a storage or context error.
func (s *Scanner) Analyze(ctx context.Context, paths []string, onProgress ProgressFunc) (analyzed, failed int, err error) {
	if s.analyzer == nil {
		return 0, 0, errors.New("no analyzer configured")
	}
	progress := s.serialize(onProgress)
	var mu sync.Mutex
	completed := 0
	progress(PhaseAnalysis, 0, len(paths), "")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			track, err := s.storage.GetTrackByPath(gctx, p)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			aerr := err
			if track != nil && track.Metrics == nil {
				aerr = s.analyzeTrack(gctx, track)
				if aerr != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				if aerr != nil {
					s.logger.Warn("analysis failed", zap.String("path", p), zap.Error(aerr))
				}
			}
			mu.Lock()
			defer mu.Unlock()
			if aerr != nil {
				failed++
			} else {
				analyzed++
			}
			completed++
			progress(PhaseAnalysis, completed, len(paths), p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return analyzed, failed, err
	}
	return analyzed, failed, ctx.Err()
}

// AnalyzeFile scans path if needed and returns it with fresh metrics.
func (s *Scanner) AnalyzeFile(ctx context.Context, path string) (*models.Track, error) {
	if s.analyzer == nil {
		return nil, errors.New("no analyzer configured")
	}
	track, err := s.ScanFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if track.Metrics != nil {
		return track, nil
	}
	if err := s.analyzeTrack(ctx, track); err != nil {
		return nil, err
	}
	return track, nil
}

func (s *Scanner) analyzeTrack(ctx context.Context, track *models.Track) error {
	m, err := s.analyzer.Analyze(ctx, track.Path)
	if err != nil {
		return err
	}
	if m.AnalyzedAt.IsZero() {
		m.AnalyzedAt = time.Now()
	}
	track.Metrics = m
	if err := s.storage.UpsertTrack(ctx, track); err != nil {
		return err
	}
	s.index(ctx, track)
	return nil
}

func (s *Scanner) index(ctx context.Context, track *models.Track) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Index(ctx, track); err != nil {
		s.logger.Warn("catalog index failed", zap.String("path", track.Path), zap.Error(err))
	}
}

func (s *Scanner) catalogEmpty() bool {
	if s.catalog == nil {
		return false
	}
	n, err := s.catalog.DocCount()
	return err == nil && n == 0
}

// serialize wraps fn so that concurrent workers never call it in parallel.
func (s *Scanner) serialize(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(string, int, int, string) {}
	}
	var mu sync.Mutex
	return func(phase string, completed, total int, current string) {
		mu.Lock()
		defer mu.Unlock()
		fn(phase, completed, total, current)
	}
}
