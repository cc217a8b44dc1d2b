// Package library ties scanning, duplicate detection, analysis, search and
// organizing together behind the operations the CLI and HTTP API expose.
package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/catalog"
	"github.com/hyperjump/cratedig/internal/cluster"
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/organizer"
	"github.com/hyperjump/cratedig/internal/quality"
	"github.com/hyperjump/cratedig/internal/ranking"
	"github.com/hyperjump/cratedig/internal/scanner"
	"github.com/hyperjump/cratedig/internal/storage"
	"github.com/hyperjump/cratedig/internal/tasks"
)

// ErrNoCatalog is returned by Search when no catalog is configured.
var ErrNoCatalog = errors.New("catalog not configured")

// PhaseFunc observes progress; tasks.Reporter.Phase satisfies it.
type PhaseFunc func(phase string, completed, total int, current string)

// SearchConfig tunes Search.
type SearchConfig struct {
	DefaultLimit  int
	MaxLimit      int
	FilenameBoost float64
	Fuzziness     int
	MaxEdits      int
}

// Library is the application facade.
type Library struct {
	scanner   *scanner.Scanner
	storage   storage.Storage
	catalog   catalog.Catalog
	suggester *catalog.Suggester
	cluster   cluster.Config
	search    SearchConfig
	ranker    *ranking.Ranker
	organizer *organizer.Organizer
	logger    *zap.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) {
		if l != nil {
			lib.logger = l
		}
	}
}

// WithCatalog enables Search. When the catalog exposes its term dictionary,
// searches without hits also return a spelling correction.
func WithCatalog(cat catalog.Catalog) Option {
	return func(lib *Library) { lib.catalog = cat }
}

// WithSearchConfig overrides search defaults.
func WithSearchConfig(cfg SearchConfig) Option {
	return func(lib *Library) { lib.search = cfg }
}

// WithRanking sets the multipliers used to re-rank search hits.
func WithRanking(cfg ranking.Config) Option {
	return func(lib *Library) { lib.ranker = ranking.New(cfg) }
}

// New creates a Library. clusterCfg is the default duplicate detection
// configuration.
func New(sc *scanner.Scanner, store storage.Storage, clusterCfg cluster.Config, opts ...Option) *Library {
	lib := &Library{
		scanner: sc,
		storage: store,
		cluster: clusterCfg,
		search:  SearchConfig{DefaultLimit: 20, MaxLimit: 100, FilenameBoost: 3, Fuzziness: 1, MaxEdits: 2},
		ranker:  ranking.New(ranking.DefaultConfig()),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(lib)
	}
	if src, ok := lib.catalog.(catalog.TermSource); ok {
		lib.suggester = catalog.NewSuggester(src, lib.search.MaxEdits)
	}
	lib.organizer = organizer.New(organizer.WithLogger(lib.logger))
	return lib
}

// ClusterConfig returns the default duplicate detection configuration.
func (l *Library) ClusterConfig() cluster.Config {
	return l.cluster
}

// CanAnalyze reports whether audio analysis is available.
func (l *Library) CanAnalyze() bool {
	return l.scanner.CanAnalyze()
}

// ScanDirectory scans dir, finds duplicates among its files and, when
// analyze is set, measures files that have no metrics yet.
func (l *Library) ScanDirectory(ctx context.Context, dir string, analyze bool, progress PhaseFunc) (*models.ScanResult, error) {
	if progress == nil {
		progress = func(string, int, int, string) {}
	}
	report, err := l.scanner.Scan(ctx, dir, scanner.ProgressFunc(progress))
	if err != nil {
		return nil, err
	}

	dups, err := cluster.FindDuplicates(ctx, report.Fingerprints, l.cluster, func(phase string, completed, total int, label string) {
		switch phase {
		case cluster.PhaseExact:
			progress(tasks.PhaseDuplicates, 0, 1, "")
		case cluster.PhaseNear:
			progress(tasks.PhaseDuplicates, completed, total, label)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}
	progress(tasks.PhaseDuplicates, 1, 1, "")

	if analyze && l.scanner.CanAnalyze() {
		analyzed, failed, err := l.scanner.Analyze(ctx, report.Paths(), scanner.ProgressFunc(progress))
		if err != nil {
			return nil, err
		}
		l.logger.Info("analysis finished", zap.Int("analyzed", analyzed), zap.Int("failed", failed))
	}

	progress(tasks.PhaseFinalizing, 1, 1, "")
	return &models.ScanResult{
		Directory:     report.Root,
		TotalFiles:    report.Files,
		TotalSize:     report.TotalSize,
		Fingerprinted: report.Fingerprinted,
		Cached:        report.Cached,
		Failed:        report.Failed,
		Duplicates:    dups,
		CompletedAt:   time.Now(),
	}, nil
}

// FindDuplicates clusters caller-supplied fingerprints.
func (l *Library) FindDuplicates(ctx context.Context, fps map[string]string, cfg cluster.Config) (*models.ClusteringResult, error) {
	return cluster.FindDuplicates(ctx, fps, cfg, nil)
}

// StoredDuplicates clusters the stored fingerprints of tracks under dir
// without rescanning. An empty dir covers the whole library.
func (l *Library) StoredDuplicates(ctx context.Context, dir string) (*models.ClusteringResult, error) {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		dir = abs
	}
	fps, err := l.storage.ListFingerprints(ctx, dir)
	if err != nil {
		return nil, err
	}
	return cluster.FindDuplicates(ctx, fps, l.cluster, nil)
}

// Track returns a stored track by id.
func (l *Library) Track(ctx context.Context, id string) (*models.Track, error) {
	return l.storage.GetTrack(ctx, id)
}

// Stats summarizes stored tracks under dir ("" for all).
func (l *Library) Stats(ctx context.Context, dir string) (*storage.LibraryStats, error) {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		dir = abs
	}
	return l.storage.Stats(ctx, dir)
}

// Analysis is a track with its quality report.
type Analysis struct {
	Track  *models.Track  `json:"track"`
	Report quality.Report `json:"report"`
}

// Analyze measures a single file, scanning it first if needed.
func (l *Library) Analyze(ctx context.Context, path string) (*Analysis, error) {
	track, err := l.scanner.AnalyzeFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Analysis{Track: track, Report: quality.Assess(track.Metrics)}, nil
}

// TrackHit is a search hit resolved to its track.
type TrackHit struct {
	Track *models.Track `json:"track"`
	Score float64       `json:"score"`
}

// SearchResult is the answer to a track search.
type SearchResult struct {
	Query      string              `json:"query"`
	Hits       []TrackHit          `json:"hits"`
	Total      int                 `json:"total"`
	Correction *catalog.Correction `json:"correction,omitempty"`
	Took       time.Duration       `json:"took_ns"`
}

// Search finds tracks by name, path, format or quality folder. When nothing
// matches and a spelling correction exists, the corrected query is run and
// the correction is returned with its hits.
func (l *Library) Search(ctx context.Context, query string, limit int, fuzzy bool) (*SearchResult, error) {
	if l.catalog == nil {
		return nil, ErrNoCatalog
	}
	start := time.Now()
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = l.search.DefaultLimit
	}
	if l.search.MaxLimit > 0 && limit > l.search.MaxLimit {
		limit = l.search.MaxLimit
	}
	opts := &catalog.SearchOptions{
		FilenameBoost: l.search.FilenameBoost,
		Fuzzy:         fuzzy,
		Fuzziness:     l.search.Fuzziness,
	}

	res := &SearchResult{Query: query, Hits: []TrackHit{}}
	hits, err := l.resolve(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && l.suggester != nil && query != "" {
		corr, err := l.suggester.Check(query)
		if err != nil {
			l.logger.Warn("spelling suggestion failed", zap.Error(err))
		} else if corr.Changed {
			res.Correction = corr
			hits, err = l.resolve(ctx, corr.Corrected, limit, opts)
			if err != nil {
				return nil, err
			}
		}
	}
	res.Hits = append(res.Hits, hits...)
	res.Total = len(res.Hits)
	res.Took = time.Since(start)
	l.logger.Debug("track search", zap.String("query", query), zap.Int("hits", res.Total))
	return res, nil
}

func (l *Library) resolve(ctx context.Context, query string, limit int, opts *catalog.SearchOptions) ([]TrackHit, error) {
	if query == "" {
		return nil, nil
	}
	hits, err := l.catalog.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	out := make([]TrackHit, 0, len(hits))
	for _, h := range hits {
		track, err := l.storage.GetTrack(ctx, h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			// stale catalog entry
			continue
		}
		if err != nil {
			return nil, err
		}
		qs := 0
		if track.Metrics != nil {
			qs = track.Metrics.QualityScore
		}
		score := l.ranker.Score(query, track.Filename, h.Score, qs)
		out = append(out, TrackHit{Track: track, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Track.Path < out[j].Track.Path
	})
	return out, nil
}

// Organize scans dir, plans moves into outDir and applies them. After a real
// run storage follows the moved files.
func (l *Library) Organize(ctx context.Context, dir, outDir string, dryRun bool, progress PhaseFunc) (*organizer.Plan, *organizer.Outcome, error) {
	if outDir == "" {
		return nil, nil, errors.New("output directory is required")
	}
	result, err := l.ScanDirectory(ctx, dir, false, progress)
	if err != nil {
		return nil, nil, err
	}
	paths := append(append([]string(nil), result.Duplicates.UniqueFiles...), groupMembers(result.Duplicates)...)
	tracks := make([]*models.Track, 0, len(paths))
	for _, p := range paths {
		t, err := l.storage.GetTrackByPath(ctx, p)
		if err != nil {
			return nil, nil, err
		}
		tracks = append(tracks, t)
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return nil, nil, fmt.Errorf("absolute path: %w", err)
	}
	plan := organizer.NewPlan(result.Duplicates, tracks, absOut)
	outcome, err := l.organizer.Apply(ctx, plan, dryRun)
	if err != nil {
		return plan, outcome, err
	}
	if dryRun {
		return plan, outcome, nil
	}
	for _, m := range outcome.Moves {
		if err := l.scanner.RemoveFile(ctx, m.Source); err != nil {
			return plan, outcome, err
		}
		if _, err := l.scanner.ScanFile(ctx, m.Dest); err != nil {
			l.logger.Warn("rescan after move failed", zap.String("path", m.Dest), zap.Error(err))
		}
	}
	return plan, outcome, nil
}

func groupMembers(r *models.ClusteringResult) []string {
	var out []string
	for _, g := range r.Groups {
		out = append(out, g.Members...)
	}
	return out
}
