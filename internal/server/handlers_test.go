package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/catalog"
	"github.com/hyperjump/cratedig/internal/cluster"
	"github.com/hyperjump/cratedig/internal/config"
	"github.com/hyperjump/cratedig/internal/fileid"
	"github.com/hyperjump/cratedig/internal/library"
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/scanner"
	"github.com/hyperjump/cratedig/internal/storage"
	"github.com/hyperjump/cratedig/internal/tasks"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

// contentExtractor uses a file's contents as its fingerprint.
type contentExtractor struct{}

func (contentExtractor) Fingerprint(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

type fixedAnalyzer struct{}

func (fixedAnalyzer) Analyze(_ context.Context, _ string) (*models.AudioMetrics, error) {
	lufs, peak := -30.0, -6.0
	return &models.AudioMetrics{SampleRate: 44100, BitDepth: 16, LUFS: &lufs, TruePeak: &peak, QualityScore: 80}, nil
}

type testEnv struct {
	srv   *Server
	h     http.Handler
	cfg   *config.Config
	tasks *tasks.Manager
	dir   string
}

func newTestServer(t *testing.T, watch WatchService, analyze bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{
		DatabasePath:     filepath.Join(dir, "tracks.db"),
		CatalogIndexPath: filepath.Join(dir, "catalog"),
	}}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	cat, err := catalog.NewBleveCatalog(cfg.Storage.CatalogIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	opts := []scanner.Option{scanner.WithCatalog(cat)}
	if analyze {
		opts = append(opts, scanner.WithAnalyzer(fixedAnalyzer{}))
	}
	sc := scanner.New(store, contentExtractor{}, opts...)
	lib := library.New(sc, store, cluster.DefaultConfig(), library.WithCatalog(cat))
	tm := tasks.NewManager()
	t.Cleanup(tm.Wait)

	srv := NewServer(lib, store, tm, cfg, zap.NewNop(), watch, "")
	return &testEnv{srv: srv, h: srv.Router(), cfg: cfg, tasks: tm, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, target, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func writeSamples(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"kick.wav":        "ABCDEF0123456789",
		"copy/kick.mp3":   "ABCDEF0123456789",
		"snare_tight.wav": "0000111122223333",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestHandleHealth(t *testing.T) {
	e := newTestServer(t, nil, false)
	w := e.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleScan_taskLifecycle(t *testing.T) {
	e := newTestServer(t, nil, false)
	root := writeSamples(t)

	w := e.do(t, http.MethodPost, "/api/v1/scan", map[string]string{"directory": root})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var started struct {
		TaskID string `json:"task_id"`
	}
	decode(t, w, &started)
	if started.TaskID == "" {
		t.Fatal("missing task_id")
	}

	var task models.Task
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = e.do(t, http.MethodGet, "/api/v1/tasks/"+started.TaskID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get task status: %d", w.Code)
		}
		decode(t, w, &task)
		if task.Status.Done() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task did not finish: %+v", task)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if task.Status != models.TaskCompleted {
		t.Fatalf("task = %+v", task)
	}
	if task.Result == nil || task.Result.TotalFiles != 3 || task.Result.Duplicates.GroupCount != 1 {
		t.Errorf("result = %+v", task.Result)
	}
	if task.Progress != 100 {
		t.Errorf("progress = %v", task.Progress)
	}

	w = e.do(t, http.MethodGet, "/api/v1/tasks", nil)
	var list struct {
		Tasks []models.Task `json:"tasks"`
	}
	decode(t, w, &list)
	if len(list.Tasks) != 1 {
		t.Errorf("tasks = %+v", list.Tasks)
	}

	// stored fingerprints are now searchable and clusterable
	w = e.do(t, http.MethodGet, "/api/v1/duplicates?directory="+url.QueryEscape(root), nil)
	var stored models.ClusteringResult
	decode(t, w, &stored)
	if stored.GroupCount != 1 {
		t.Errorf("stored duplicates = %+v", stored)
	}
}

func TestHandleScan_badRequests(t *testing.T) {
	e := newTestServer(t, nil, false)
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing directory", map[string]string{}, http.StatusBadRequest},
		{"nonexistent", map[string]string{"directory": filepath.Join(e.dir, "nope")}, http.StatusNotFound},
		{"file", map[string]string{"directory": e.cfg.Storage.DatabasePath}, http.StatusBadRequest},
		{"bad json", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/scan", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleTask_notFound(t *testing.T) {
	e := newTestServer(t, nil, false)
	if w := e.do(t, http.MethodGet, "/api/v1/tasks/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("get: got %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/tasks/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete: got %d", w.Code)
	}
}

func TestHandleCancelTask(t *testing.T) {
	e := newTestServer(t, nil, false)
	task := e.tasks.Start("scan", func(ctx context.Context, r *tasks.Reporter) (*models.ScanResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	w := e.do(t, http.MethodDelete, "/api/v1/tasks/"+task.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	e.tasks.Wait()
	got, err := e.tasks.Get(task.ID)
	if err != nil || got.Status != models.TaskCancelled {
		t.Errorf("task = %+v, %v", got, err)
	}
}

func TestHandleDuplicates(t *testing.T) {
	e := newTestServer(t, nil, false)
	body := map[string]interface{}{
		"fingerprints": map[string]string{
			"a.wav": "ABCDEF0123456789",
			"b.wav": "abcdef0123456789",
			"c.wav": "1111222233334444",
			"d.wav": "",
			"e.wav": "1111222233334445",
		},
		"near_threshold": 95,
	}
	w := e.do(t, http.MethodPost, "/api/v1/duplicates", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res models.ClusteringResult
	decode(t, w, &res)
	if res.TotalFiles != 5 || res.GroupCount != 2 || res.UniqueCount != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Unfingerprinted) != 1 || res.Unfingerprinted[0] != "d.wav" {
		t.Errorf("unfingerprinted = %v", res.Unfingerprinted)
	}

	w = e.do(t, http.MethodPost, "/api/v1/duplicates", map[string]interface{}{
		"fingerprints": map[string]string{"a.wav": "AB"},
		"prefix_len":   0,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid config: got %d", w.Code)
	}

	w = e.do(t, http.MethodPost, "/api/v1/duplicates", map[string]interface{}{})
	if w.Code != http.StatusOK {
		t.Errorf("empty input: got %d", w.Code)
	}
}

func TestHandleSearchAndGetTrack(t *testing.T) {
	e := newTestServer(t, nil, false)
	root := writeSamples(t)
	if _, err := e.srv.library.ScanDirectory(context.Background(), root, false, nil); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodGet, "/api/v1/tracks/search?q=snare", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var res library.SearchResult
	decode(t, w, &res)
	if res.Total != 1 || res.Hits[0].Track.Filename != "snare_tight.wav" {
		t.Fatalf("search = %+v", res)
	}

	id := fileid.TrackID(filepath.Join(root, "snare_tight.wav"))
	w = e.do(t, http.MethodGet, "/api/v1/tracks/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get track: got %d", w.Code)
	}
	var track models.Track
	decode(t, w, &track)
	if track.ID != id || track.Fingerprint != "0000111122223333" {
		t.Errorf("track = %+v", track)
	}

	if w := e.do(t, http.MethodGet, "/api/v1/tracks/trk_missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing track: got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/tracks/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q: got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/tracks/search?q=kick&limit=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}

func TestHandleAnalyze(t *testing.T) {
	e := newTestServer(t, nil, true)
	root := writeSamples(t)

	w := e.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"path": filepath.Join(root, "kick.wav")})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res library.Analysis
	decode(t, w, &res)
	if res.Report.Folder != "03_NEEDS_Mastering/too_quiet" {
		t.Errorf("report = %+v", res.Report)
	}
	if res.Track == nil || res.Track.Metrics == nil {
		t.Errorf("track = %+v", res.Track)
	}

	w = e.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"path": filepath.Join(root, "gone.wav")})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file: got %d", w.Code)
	}
	w = e.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"path": filepath.Join(root, "notes.txt")})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported file: got %d", w.Code)
	}
}

func TestHandleAnalyze_notAvailable(t *testing.T) {
	e := newTestServer(t, nil, false)
	w := e.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{"path": "/tmp/a.wav"})
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	e := newTestServer(t, &mockWatchService{dirs: []string{"/tmp/samples"}}, false)
	root := writeSamples(t)
	if _, err := e.srv.library.ScanDirectory(context.Background(), root, false, nil); err != nil {
		t.Fatal(err)
	}
	w := e.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Tracks           int64    `json:"tracks"`
		DiskUsageBytes   *int64   `json:"disk_usage_bytes"`
		WatchDirectories []string `json:"watch_directories"`
		Config           struct {
			PrefixLen int `json:"prefix_len"`
		} `json:"config"`
	}
	decode(t, w, &out)
	if out.Tracks != 3 {
		t.Errorf("tracks: got %d, want 3", out.Tracks)
	}
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes < 1 {
		t.Errorf("disk_usage_bytes: got %v", out.DiskUsageBytes)
	}
	if len(out.WatchDirectories) != 1 || out.Config.PrefixLen != 8 {
		t.Errorf("status = %+v", out)
	}

	w = e.do(t, http.MethodGet, "/api/v1/stats?directory="+url.QueryEscape(root), nil)
	var stats storage.LibraryStats
	decode(t, w, &stats)
	if stats.Tracks != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/samples"}}
	e := newTestServer(t, mock, false)
	w := e.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/samples" {
		t.Errorf("directories: got %v", out.Directories)
	}
}

func TestHandleWatchDirectoriesList_NotEnabled(t *testing.T) {
	e := newTestServer(t, nil, false)
	w := e.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd(t *testing.T) {
	mock := &mockWatchService{}
	e := newTestServer(t, mock, false)
	configPath := filepath.Join(e.dir, "config.yaml")
	e.srv.configPath = configPath

	w := e.do(t, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": e.dir})
	if w.Code != http.StatusCreated {
		t.Errorf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("expected 1 directory, got %v", mock.Directories())
	}
	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Watch.Directories) != 1 || saved.Watch.Directories[0] != e.dir {
		t.Errorf("persisted directories: got %v", saved.Watch.Directories)
	}
}

func TestHandleWatchDirectoriesAdd_InvalidPath(t *testing.T) {
	e := newTestServer(t, &mockWatchService{}, false)
	w := e.do(t, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": e.dir + "/nonexistent"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleWatchDirectoriesRemove(t *testing.T) {
	e := newTestServer(t, nil, false)
	mock := &mockWatchService{dirs: []string{e.dir}}
	e.srv.watch = mock
	w := e.do(t, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(e.dir), nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("expected 0 directories, got %v", mock.Directories())
	}
}
