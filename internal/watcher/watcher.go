// Package watcher keeps the track database in step with watched directories
// using fsnotify, debouncing bursts of writes to the same file.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Handler applies file changes. scanner.Scanner implements it.
type Handler interface {
	Supported(path string) bool
	ScanFile(ctx context.Context, path string) (*models.Track, error)
	RemoveFile(ctx context.Context, path string) error
}

// Watcher watches root directories and forwards audio file changes to a
// Handler.
type Watcher struct {
	handler   Handler
	recursive bool
	debounce  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	roots     []string
	rootPaths map[string][]string // root -> directories added to fsnotify
	pending   map[string]*time.Timer
	watcher   *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	syncs     sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must be quiet before it is scanned.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for roots. Nothing is watched until Start.
func New(handler Handler, roots []string, recursive bool, opts ...Option) *Watcher {
	w := &Watcher{
		handler:   handler,
		recursive: recursive,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		rootPaths: make(map[string][]string),
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		w.roots = append(w.roots, r)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
// Every root must be an existing directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = fw
	w.ctx = ctx
	for i, root := range w.roots {
		abs, err := w.addRootLocked(root)
		if err != nil {
			_ = fw.Close()
			w.watcher = nil
			return err
		}
		w.roots[i] = abs
	}
	w.logger.Info("watcher started", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.handler.Supported(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// a rename reports the old name; the new name arrives as Create
		w.cancel(path)
		if w.handler.Supported(path) {
			if err := w.handler.RemoveFile(w.context(), path); err != nil {
				w.logger.Warn("watcher remove failed", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

// handleNewDirectory watches a directory that appeared under a root and
// scans the audio already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	if isHidden(dir) {
		return
	}
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	if w.recursive {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if path != dir && isHidden(path) {
				return filepath.SkipDir
			}
			if err := fw.Add(path); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}
	w.syncDirectory(dir)
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if !inDir(root, path) {
			continue
		}
		if w.recursive {
			return true
		}
		// non-recursive roots only see their direct children
		return filepath.Dir(path) == root || path == root
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.scan(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) scan(path string) {
	track, err := w.handler.ScanFile(w.context(), path)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("watcher scan failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	w.logger.Debug("watcher scanned file", zap.String("path", path), zap.String("id", track.ID))
}

// AddDirectory starts watching root and, with syncExisting, scans the audio
// already in it in the background. Adding a watched root is a no-op.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if r == abs {
			return nil
		}
	}
	if w.watcher != nil {
		if _, err := w.addRootLocked(abs); err != nil {
			return err
		}
	}
	w.roots = append(w.roots, abs)
	w.logger.Info("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting && w.watcher != nil {
		w.syncs.Add(1)
		go func() {
			defer w.syncs.Done()
			w.syncDirectory(abs)
		}()
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("watch %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("watch %s: not a directory", abs)
	}
	var paths []string
	if w.recursive {
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != abs && isHidden(path) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return "", err
		}
	} else {
		if err := w.watcher.Add(abs); err != nil {
			return "", err
		}
		paths = append(paths, abs)
	}
	w.rootPaths[abs] = paths
	return abs, nil
}

// syncDirectory scans every supported file under dir. Unchanged files are
// skipped by the handler.
func (w *Watcher) syncDirectory(dir string) {
	ctx := w.context()
	w.logger.Debug("watcher syncing directory", zap.String("root", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != dir && (isHidden(path) || !w.recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.handler.Supported(path) {
			w.scan(path)
		}
		return nil
	})
}

// RemoveDirectory stops watching root. Stored tracks are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := -1
	for i, r := range w.roots {
		if r == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if w.watcher != nil {
		for _, p := range w.rootPaths[abs] {
			_ = w.watcher.Remove(p)
		}
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	w.logger.Info("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns a copy of the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles scans the audio already present in every root. Call it
// after Start to catch up on changes made while nothing was watching.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.syncDirectory(root)
	}
}

// Stop stops watching and waits for background syncs.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.syncs.Wait()
	w.logger.Info("watcher stopped")
}
