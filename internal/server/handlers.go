package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/cluster"
	"github.com/hyperjump/cratedig/internal/config"
	"github.com/hyperjump/cratedig/internal/library"
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/scanner"
	"github.com/hyperjump/cratedig/internal/storage"
	"github.com/hyperjump/cratedig/internal/tasks"
)

type scanRequest struct {
	Directory string `json:"directory"`
	Analyze   *bool  `json:"analyze,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Directory == "" {
		s.respondError(w, http.StatusBadRequest, "directory is required")
		return
	}
	dir, ok := s.existingDir(w, req.Directory)
	if !ok {
		return
	}
	analyze := s.config.Scan.Analyze
	if req.Analyze != nil {
		analyze = *req.Analyze
	}
	analyze = analyze && s.library.CanAnalyze()

	s.logger.Debug("scan request", zap.String("directory", dir), zap.Bool("analyze", analyze))
	task := s.tasks.Start("scan", func(ctx context.Context, rep *tasks.Reporter) (*models.ScanResult, error) {
		return s.library.ScanDirectory(ctx, dir, analyze, rep.Phase)
	})
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id":   task.ID,
		"status":    task.Status,
		"directory": dir,
	})
}

// existingDir resolves path and writes an error response unless it is a
// directory.
func (s *Server) existingDir(w http.ResponseWriter, path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return "", false
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return "", false
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return "", false
	}
	return abs, true
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": s.tasks.List()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.tasks.Cancel(id); err != nil {
		s.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	s.logger.Debug("task cancel request", zap.String("id", id))
	s.respondJSON(w, http.StatusOK, map[string]string{"task_id": id, "status": "cancelling"})
}

type duplicatesRequest struct {
	Fingerprints   map[string]string `json:"fingerprints"`
	PrefixLen      *int              `json:"prefix_len,omitempty"`
	ExactThreshold *float64          `json:"exact_threshold,omitempty"`
	NearThreshold  *float64          `json:"near_threshold,omitempty"`
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	var req duplicatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg := s.library.ClusterConfig()
	if req.PrefixLen != nil {
		cfg.PrefixLen = *req.PrefixLen
	}
	if req.ExactThreshold != nil {
		cfg.ExactThreshold = *req.ExactThreshold
	}
	if req.NearThreshold != nil {
		cfg.NearThreshold = *req.NearThreshold
	}
	if req.Fingerprints == nil {
		req.Fingerprints = map[string]string{}
	}
	s.logger.Debug("duplicates request", zap.Int("files", len(req.Fingerprints)), zap.Int("prefix_len", cfg.PrefixLen))
	result, err := s.library.FindDuplicates(r.Context(), req.Fingerprints, cfg)
	if err != nil {
		if errors.Is(err, cluster.ErrInvalidConfig) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("duplicate detection failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleStoredDuplicates(w http.ResponseWriter, r *http.Request) {
	result, err := s.library.StoredDuplicates(r.Context(), r.URL.Query().Get("directory"))
	if err != nil {
		s.logger.Error("duplicate detection failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	fuzzy := false
	if v := q.Get("fuzzy"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid fuzzy")
			return
		}
		fuzzy = b
	}
	s.logger.Debug("search request", zap.String("query", query), zap.Int("limit", limit))
	res, err := s.library.Search(r.Context(), query, limit, fuzzy)
	if err != nil {
		if errors.Is(err, library.ErrNoCatalog) {
			s.respondError(w, http.StatusNotImplemented, "search not enabled")
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	track, err := s.library.Track(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "track not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, track)
}

type analyzeRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.library.CanAnalyze() {
		s.respondError(w, http.StatusNotImplemented, "audio analysis not available")
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.logger.Debug("analyze request", zap.String("path", req.Path))
	res, err := s.library.Analyze(r.Context(), req.Path)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			s.respondError(w, http.StatusNotFound, "file not found")
		case errors.Is(err, scanner.ErrUnsupported):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("analysis failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.library.Stats(r.Context(), r.URL.Query().Get("directory"))
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trackCount, err := s.storage.CountTracks(ctx)
	if err != nil {
		s.logger.Error("status: count tracks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	running := 0
	for _, t := range s.tasks.List() {
		if !t.Status.Done() {
			running++
		}
	}
	resp := map[string]interface{}{
		"tracks":        trackCount,
		"running_tasks": running,
		"analysis":      s.library.CanAnalyze(),
	}

	cc := s.library.ClusterConfig()
	configInfo := map[string]interface{}{
		"prefix_len":      cc.PrefixLen,
		"exact_threshold": cc.ExactThreshold,
		"near_threshold":  cc.NearThreshold,
	}
	if s.config != nil {
		configInfo["database_path"] = s.config.Storage.DatabasePath
		configInfo["catalog_index_path"] = s.config.Storage.CatalogIndexPath
		configInfo["extensions"] = s.config.Scan.Extensions

		diskBytes, err := storage.DiskUsageBytes(
			s.config.Storage.DatabasePath,
			s.config.Storage.CatalogIndexPath,
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	dirs := s.watch.Directories()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, ok := s.existingDir(w, req.Path)
	if !ok {
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
