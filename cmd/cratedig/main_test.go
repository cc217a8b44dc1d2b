package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/config"
	"github.com/hyperjump/cratedig/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after positional are moved first",
			args:     []string{"dark pad", "-limit", "5"},
			expected: []string{"-limit", "5", "dark pad"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "dark pad"},
			expected: []string{"-limit", "5", "dark pad"},
		},
		{
			name:     "positional only returns unchanged",
			args:     []string{"/samples"},
			expected: []string{"/samples"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"kick", "808", "--fuzzy"},
			expected: []string{"--fuzzy", "kick", "808"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"kick"}, "kick"},
		{"multiple words", []string{"dark", "pad"}, "dark pad"},
		{"single quoted phrase", []string{"dark pad"}, "dark pad"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestApplyDuplicateFlags(t *testing.T) {
	exact, near := 100.0, 95.0
	d := config.DuplicatesConfig{PrefixLen: 8, ExactThreshold: &exact, NearThreshold: &near}
	applyDuplicateFlags(&d, 0, -1, -1)
	if c := d.Cluster(); c.PrefixLen != 8 || c.ExactThreshold != 100 || c.NearThreshold != 95 {
		t.Errorf("unset flags changed config: %+v", c)
	}
	applyDuplicateFlags(&d, 4, 99, 90)
	if c := d.Cluster(); c.PrefixLen != 4 || c.ExactThreshold != 99 || c.NearThreshold != 90 {
		t.Errorf("flags not applied: %+v", c)
	}
	applyDuplicateFlags(&d, 0, -1, 0)
	if c := d.Cluster(); c.NearThreshold != 0 {
		t.Errorf("--threshold 0 not applied: %+v", c)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf}
	p.report("discovery", 0, 0, "")
	p.report("fingerprinting", 1, 2, "/a.wav")
	p.report("fingerprinting", 2, 2, "/b.wav")
	p.done()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2", lines)
	}
	if !strings.HasPrefix(lines[1], "fingerprinting") || !strings.HasSuffix(lines[1], "2/2") {
		t.Errorf("fingerprinting line = %q", lines[1])
	}
}

func TestWaitTask(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tasks/t-1" {
			http.NotFound(w, r)
			return
		}
		task := models.Task{ID: "t-1", Status: models.TaskRunning, Progress: 50}
		if calls.Add(1) >= 2 {
			task.Status = models.TaskCompleted
			task.Progress = 100
			task.Result = &models.ScanResult{Directory: "/samples", TotalFiles: 3}
		}
		_ = json.NewEncoder(w).Encode(task)
	}))
	defer srv.Close()

	var updates int
	task, err := waitTask(t.Context(), srv.URL, "t-1", func(models.Task) { updates++ })
	if err != nil {
		t.Fatalf("waitTask: %v", err)
	}
	if task.Status != models.TaskCompleted || task.Result == nil || task.Result.TotalFiles != 3 {
		t.Errorf("task = %+v", task)
	}
	if updates != 2 {
		t.Errorf("updates = %d, want 2", updates)
	}

	if _, err := waitTask(t.Context(), srv.URL, "missing", nil); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestCancelTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/api/v1/tasks/t-1" {
			_, _ = w.Write([]byte(`{"status":"cancelling"}`))
			return
		}
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	if err := cancelTask(srv.URL, "t-1"); err != nil {
		t.Errorf("cancelTask: %v", err)
	}
	err := cancelTask(srv.URL, "t-2")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("cancelTask(unknown) err = %v, want 404", err)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "dark pad" || q.Get("limit") != "5" || q.Get("fuzzy") != "true" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"query":"dark pad","hits":[{"track":{"id":"x","path":"/s/dark_pad.wav"},"score":2.5}],"total":1,"took_ns":1000}`))
	}))
	defer srv.Close()

	res, err := searchViaHTTP(srv.URL, "dark pad", 5, true)
	if err != nil {
		t.Fatalf("searchViaHTTP: %v", err)
	}
	if res.Total != 1 || len(res.Hits) != 1 || res.Hits[0].Track.Path != "/s/dark_pad.wav" {
		t.Errorf("result = %+v", res)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./tracks.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
duplicates:
  near_threshold: 90
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if c := cfg.Duplicates.Cluster(); c.NearThreshold != 90 {
		t.Errorf("near_threshold = %v, want 90", c.NearThreshold)
	}
}

func TestInitializeComponents(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/tracks.db"
  catalog_index_path: "./data/catalog"
scan:
  ffmpeg_path: "/nonexistent/ffmpeg"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0755); err != nil {
		t.Fatal(err)
	}
	c, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer c.Close()
	if c.Library.CanAnalyze() {
		t.Error("analysis should be disabled without ffmpeg")
	}
	stats, err := c.Library.Stats(t.Context(), "")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Tracks != 0 {
		t.Errorf("tracks = %d, want 0", stats.Tracks)
	}
}
