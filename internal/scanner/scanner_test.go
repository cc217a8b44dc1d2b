package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/cratedig/internal/catalog"
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/storage"
)

// contentExtractor fingerprints a file as its upper-cased contents, so tests
// control fingerprints by writing files. Files containing "broken" fail.
type contentExtractor struct {
	mu    sync.Mutex
	calls map[string]int
}

func (e *contentExtractor) Fingerprint(_ context.Context, path string) (string, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[path]++
	e.mu.Unlock()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(data))
	if s == "broken" {
		return "", errors.New("ffmpeg decode failed")
	}
	return strings.ToUpper(s), nil
}

func (e *contentExtractor) count(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[path]
}

type fakeAnalyzer struct {
	fail map[string]bool
}

func (a *fakeAnalyzer) Analyze(_ context.Context, path string) (*models.AudioMetrics, error) {
	if a.fail[filepath.Base(path)] {
		return nil, errors.New("ffprobe failed")
	}
	lufs := -14.0
	return &models.AudioMetrics{SampleRate: 48000, BitDepth: 24, LUFS: &lufs, QualityScore: 100, Classification: "STREAMING_READY"}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestScanner(t *testing.T, opts ...Option) (*Scanner, *storage.SQLiteStorage, *contentExtractor) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "tracks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ext := &contentExtractor{}
	return New(store, ext, append([]Option{WithWorkers(3)}, opts...)...), store, ext
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "kick.wav"), "abcd1234")
	writeFile(t, filepath.Join(root, "drums", "kick copy.WAV"), "ABCD1234")
	writeFile(t, filepath.Join(root, "drums", "snare.mp3"), "ffff0000")
	writeFile(t, filepath.Join(root, "drums", "bad.flac"), "broken")
	writeFile(t, filepath.Join(root, "notes.txt"), "not audio")
	writeFile(t, filepath.Join(root, ".cache", "hidden.wav"), "00000000")

	s, store, _ := newTestScanner(t)
	ctx := context.Background()

	var mu sync.Mutex
	phases := map[string]int{}
	report, err := s.Scan(ctx, root, func(phase string, completed, total int, current string) {
		mu.Lock()
		defer mu.Unlock()
		phases[phase]++
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Files != 4 || report.Fingerprinted != 3 || report.Failed != 1 || report.Cached != 0 {
		t.Errorf("report = %+v", report)
	}
	if got := report.Fingerprints[filepath.Join(root, "kick.wav")]; got != "ABCD1234" {
		t.Errorf("fingerprint = %q, want upper-cased ABCD1234", got)
	}
	if got, ok := report.Fingerprints[filepath.Join(root, "drums", "bad.flac")]; !ok || got != "" {
		t.Errorf("failed file should map to empty fingerprint, got %q (present %v)", got, ok)
	}
	if phases[PhaseDiscovery] == 0 || phases[PhaseFingerprinting] == 0 {
		t.Errorf("phases = %v", phases)
	}

	n, _ := store.CountTracks(ctx)
	if n != 4 {
		t.Errorf("stored %d tracks, want 4", n)
	}
	paths := report.Paths()
	sort.Strings(paths)
	if len(paths) != 4 {
		t.Errorf("Paths = %v", paths)
	}
}

func TestScanner_ScanSkipsUnchanged(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.wav")
	b := filepath.Join(root, "b.wav")
	writeFile(t, a, "aaaa")
	writeFile(t, b, "bbbb")

	s, _, ext := newTestScanner(t)
	ctx := context.Background()
	if _, err := s.Scan(ctx, root, nil); err != nil {
		t.Fatal(err)
	}

	writeFile(t, b, "bbbbcccc")
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(b, future, future); err != nil {
		t.Fatal(err)
	}
	report, err := s.Scan(ctx, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Cached != 1 || report.Fingerprinted != 1 {
		t.Errorf("report = %+v, want 1 cached and 1 fingerprinted", report)
	}
	if ext.count(a) != 1 || ext.count(b) != 2 {
		t.Errorf("extractor calls a=%d b=%d", ext.count(a), ext.count(b))
	}
	if report.Fingerprints[b] != "BBBBCCCC" {
		t.Errorf("changed file fingerprint = %q", report.Fingerprints[b])
	}
}

func TestScanner_ScanPrunesDeletedFiles(t *testing.T) {
	root := t.TempDir()
	gone := filepath.Join(root, "gone.wav")
	writeFile(t, gone, "aaaa")
	writeFile(t, filepath.Join(root, "stay.wav"), "bbbb")

	s, store, _ := newTestScanner(t)
	ctx := context.Background()
	if _, err := s.Scan(ctx, root, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	report, err := s.Scan(ctx, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Removed != 1 {
		t.Errorf("Removed = %d, want 1", report.Removed)
	}
	if _, err := store.GetTrackByPath(ctx, gone); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted file still stored: %v", err)
	}
}

func TestScanner_ScanErrors(t *testing.T) {
	s, _, _ := newTestScanner(t)
	if _, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for missing directory")
	}
	file := filepath.Join(t.TempDir(), "a.wav")
	writeFile(t, file, "aaaa")
	if _, err := s.Scan(context.Background(), file, nil); err == nil {
		t.Error("expected error when root is a file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Scan(ctx, filepath.Dir(file), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled scan error = %v", err)
	}
}

func TestScanner_ScanFileAndRemove(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "loop.ogg")
	writeFile(t, path, "1234")

	cat, err := catalog.NewBleveCatalog(filepath.Join(t.TempDir(), "catalog.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	s, store, ext := newTestScanner(t, WithCatalog(cat), WithAnalyzer(&fakeAnalyzer{}))
	ctx := context.Background()

	track, err := s.ScanFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if track.Fingerprint != "1234" || track.Format != ".ogg" {
		t.Errorf("track = %+v", track)
	}
	if track.Metrics == nil || track.Metrics.SampleRate != 48000 {
		t.Errorf("ScanFile with analyzer should store metrics: %+v", track.Metrics)
	}
	if _, err := s.ScanFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if ext.count(path) != 1 {
		t.Errorf("unchanged file fingerprinted %d times", ext.count(path))
	}
	hits, err := cat.Search(ctx, "loop", 10, nil)
	if err != nil || len(hits) != 1 {
		t.Errorf("catalog hits = %v, err = %v", hits, err)
	}

	if err := s.RemoveFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountTracks(ctx); n != 0 {
		t.Errorf("CountTracks = %d after remove", n)
	}
	if n, _ := cat.DocCount(); n != 0 {
		t.Errorf("catalog DocCount = %d after remove", n)
	}

	if _, err := s.ScanFile(ctx, filepath.Join(root, "readme.md")); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ScanFile(readme.md) error = %v, want ErrUnsupported", err)
	}
}

func TestScanner_Analyze(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good.wav"), "aaaa")
	writeFile(t, filepath.Join(root, "bad.wav"), "bbbb")

	s, store, _ := newTestScanner(t, WithAnalyzer(&fakeAnalyzer{fail: map[string]bool{"bad.wav": true}}))
	ctx := context.Background()
	report, err := s.Scan(ctx, root, nil)
	if err != nil {
		t.Fatal(err)
	}

	paths := append(report.Paths(), filepath.Join(root, "unknown.wav"))
	analyzed, failed, err := s.Analyze(ctx, paths, nil)
	if err != nil {
		t.Fatal(err)
	}
	if analyzed != 1 || failed != 2 {
		t.Errorf("analyzed = %d, failed = %d", analyzed, failed)
	}
	good, err := store.GetTrackByPath(ctx, filepath.Join(root, "good.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if good.Metrics == nil || good.Metrics.AnalyzedAt.IsZero() {
		t.Errorf("metrics not stored: %+v", good.Metrics)
	}
}

func TestScanner_AnalyzeWithoutAnalyzer(t *testing.T) {
	s, _, _ := newTestScanner(t)
	if s.CanAnalyze() {
		t.Error("CanAnalyze should be false")
	}
	if _, _, err := s.Analyze(context.Background(), nil, nil); err == nil {
		t.Error("expected error without analyzer")
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext  string
		want bool
	}{
		{".wav", true},
		{".WAV", true},
		{"aiff", true},
		{".txt", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, DefaultExtensions); got != tt.want {
			t.Errorf("extensionAllowed(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}
