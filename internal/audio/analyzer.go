package audio

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/quality"
)

// Analyzer measures format details and loudness of audio files and scores
// the result.
type Analyzer struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// WithBinaries overrides the ffmpeg and ffprobe executables. Empty values
// keep the defaults.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(a *Analyzer) {
		if ffmpeg != "" {
			a.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			a.ffprobe = ffprobe
		}
	}
}

// WithTimeout bounds each external tool invocation.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		a.timeout = d
	}
}

// NewAnalyzer returns an Analyzer that runs tools through runner. A nil
// runner uses ExecRunner.
func NewAnalyzer(runner Runner, opts ...Option) *Analyzer {
	if runner == nil {
		runner = ExecRunner{}
	}
	a := &Analyzer{
		runner:  runner,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Available checks that ffmpeg can be executed.
func (a *Analyzer) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, _, err := a.runner.Run(ctx, a.ffmpeg, "-version"); err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	return nil
}

// Analyze probes path, measures its loudness and scores it. A probe failure
// is an error; a loudness failure only leaves the loudness fields unset.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*models.AudioMetrics, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	info, err := a.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	m := &models.AudioMetrics{
		Codec:      info.Codec,
		SampleRate: info.SampleRate,
		BitDepth:   info.BitDepth,
		BitRate:    info.BitRate,
		Duration:   info.Duration,
		AnalyzedAt: time.Now(),
	}

	loud, err := a.Loudness(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("analyze %s: %w", path, ctx.Err())
		}
		a.logger.Warn("loudness measurement failed", zap.String("path", path), zap.Error(err))
	} else {
		m.LUFS = loud.Integrated
		m.TruePeak = loud.TruePeak
		m.LoudnessRange = loud.Range
	}

	quality.Evaluate(m)
	a.logger.Debug("analyzed track",
		zap.String("path", path),
		zap.Int("score", m.QualityScore),
		zap.String("classification", m.Classification),
	)
	return m, nil
}
