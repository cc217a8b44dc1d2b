// Package tasks runs long operations in the background and tracks their
// progress so clients can poll them.
package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/pkg/utils"
)

// ErrNotFound is returned for unknown task ids.
var ErrNotFound = errors.New("task not found")

// Phases reported by a directory scan task.
const (
	PhaseDiscovery      = "discovery"
	PhaseFingerprinting = "fingerprinting"
	PhaseDuplicates     = "duplicates"
	PhaseAnalysis       = "analysis"
	PhaseFinalizing     = "finalizing"
)

// Band is the slice of the overall percentage a phase occupies.
type Band struct {
	Lo, Hi float64
}

// ScanBands splits a scan task's progress across its phases.
var ScanBands = map[string]Band{
	PhaseDiscovery:      {0, 12},
	PhaseFingerprinting: {12, 25},
	PhaseDuplicates:     {25, 40},
	PhaseAnalysis:       {40, 90},
	PhaseFinalizing:     {90, 100},
}

// Func is the body of a task. It must return promptly once ctx is done.
type Func func(ctx context.Context, r *Reporter) (*models.ScanResult, error)

const defaultRetain = 100

type entry struct {
	task   models.Task
	cancel context.CancelFunc
}

// Manager owns every task started in this process.
type Manager struct {
	mu     sync.RWMutex
	tasks  map[string]*entry
	retain int
	wg     sync.WaitGroup
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRetain bounds how many finished tasks are kept for polling.
func WithRetain(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.retain = n
		}
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		tasks:  make(map[string]*entry),
		retain: defaultRetain,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers a task of the given kind and runs fn in a goroutine.
// It returns a snapshot of the new task.
func (m *Manager) Start(kind string, fn Func) models.Task {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	e := &entry{
		task: models.Task{
			ID:        uuid.New().String(),
			Kind:      kind,
			Status:    models.TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.tasks[e.task.ID] = e
	m.evictLocked()
	snapshot := e.task
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, e, fn)
	return snapshot
}

func (m *Manager) run(ctx context.Context, e *entry, fn Func) {
	defer m.wg.Done()
	defer e.cancel()
	id := e.task.ID

	m.update(id, func(t *models.Task) { t.Status = models.TaskRunning })
	m.logger.Info("task started", zap.String("id", id), zap.String("kind", e.task.Kind))

	result, err := fn(ctx, &Reporter{m: m, id: id})

	m.update(id, func(t *models.Task) {
		switch {
		case err != nil && ctx.Err() != nil:
			t.Status = models.TaskCancelled
			t.Error = ctx.Err().Error()
		case err != nil:
			t.Status = models.TaskFailed
			t.Error = err.Error()
		default:
			t.Status = models.TaskCompleted
			t.Result = result
			t.Progress = 100
			t.Phase = PhaseFinalizing
			t.CurrentFile = ""
		}
	})
	if err != nil {
		m.logger.Warn("task ended with error", zap.String("id", id), zap.Error(err))
		return
	}
	m.logger.Info("task completed", zap.String("id", id))
}

func (m *Manager) update(id string, fn func(*models.Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok {
		return
	}
	fn(&e.task)
	e.task.UpdatedAt = time.Now()
}

// evictLocked drops the oldest finished tasks beyond the retain limit.
func (m *Manager) evictLocked() {
	if len(m.tasks) <= m.retain {
		return
	}
	var done []*entry
	for _, e := range m.tasks {
		if e.task.Status.Done() {
			done = append(done, e)
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].task.UpdatedAt.Before(done[j].task.UpdatedAt)
	})
	for _, e := range done {
		if len(m.tasks) <= m.retain {
			return
		}
		delete(m.tasks, e.task.ID)
	}
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return e.task, nil
}

// List returns snapshots of all tasks, newest first.
func (m *Manager) List() []models.Task {
	m.mu.RLock()
	out := make([]models.Task, 0, len(m.tasks))
	for _, e := range m.tasks {
		out = append(out, e.task)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cancel requests cancellation. Cancelling a finished task is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	e, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.cancel()
	return nil
}

// Wait blocks until every running task has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all tasks and waits for them, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, e := range m.tasks {
		e.cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reporter publishes progress for one task.
type Reporter struct {
	m  *Manager
	id string
}

// Progress records the current phase and overall percentage.
func (r *Reporter) Progress(phase string, percent float64, completed, total int, current string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.m.update(r.id, func(t *models.Task) {
		t.Phase = phase
		t.Progress = percent
		t.Completed = completed
		t.Total = total
		t.CurrentFile = current
	})
}

// Phase reports completed/total within the phase's band from ScanBands.
// Unknown phases keep the current percentage.
func (r *Reporter) Phase(phase string, completed, total int, current string) {
	band, ok := ScanBands[phase]
	if !ok {
		t, err := r.m.Get(r.id)
		if err != nil {
			return
		}
		r.Progress(phase, t.Progress, completed, total, current)
		return
	}
	r.Progress(phase, utils.BandPercent(band.Lo, band.Hi, completed, total), completed, total, current)
}
