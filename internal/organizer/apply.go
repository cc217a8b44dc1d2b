package organizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// Result records where a move went.
type Result struct {
	Move
	Dest string `json:"dest"`
}

// MoveError is a move that failed.
type MoveError struct {
	Source string `json:"source"`
	Err    string `json:"error"`
}

// Outcome summarizes Apply.
type Outcome struct {
	DryRun bool        `json:"dry_run"`
	Moved  int         `json:"moved"`
	Moves  []Result    `json:"moves"`
	Errors []MoveError `json:"errors,omitempty"`
}

// Organizer executes plans.
type Organizer struct {
	logger *zap.Logger
}

// Option configures an Organizer.
type Option func(*Organizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Organizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Organizer.
func New(opts ...Option) *Organizer {
	o := &Organizer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Apply performs the plan's moves. A name already taken in the target
// directory gets a "_dupN" suffix. With dryRun nothing on disk changes but
// the reported destinations are the ones a real run would use. Failed moves
// are collected and do not stop the rest; only ctx ends Apply early.
func (o *Organizer) Apply(ctx context.Context, plan *Plan, dryRun bool) (*Outcome, error) {
	out := &Outcome{DryRun: dryRun}
	taken := make(map[string]bool)
	for _, m := range plan.Moves {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		dest := freeName(m.Dir, filepath.Base(m.Source), taken)
		taken[dest] = true
		if dryRun {
			out.Moves = append(out.Moves, Result{Move: m, Dest: dest})
			continue
		}
		if err := moveFile(m.Source, dest); err != nil {
			o.logger.Warn("move failed", zap.String("source", m.Source), zap.String("dest", dest), zap.Error(err))
			out.Errors = append(out.Errors, MoveError{Source: m.Source, Err: err.Error()})
			continue
		}
		o.logger.Debug("file moved", zap.String("source", m.Source), zap.String("dest", dest), zap.String("reason", m.Reason))
		out.Moves = append(out.Moves, Result{Move: m, Dest: dest})
		out.Moved++
	}
	o.logger.Info("organize finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("moved", out.Moved),
		zap.Int("errors", len(out.Errors)),
	)
	return out, nil
}

// freeName returns dir/name, or dir/stem_dupN.ext for the smallest N that is
// neither on disk nor already claimed.
func freeName(dir, name string, taken map[string]bool) string {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; exists(candidate) || taken[candidate]; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_dup%d%s", stem, n, ext))
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
