package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoAudio is returned when a file decodes to zero samples.
var ErrNoAudio = errors.New("no audio samples decoded")

// Default extraction settings.
const (
	DefaultSeconds    = 30
	DefaultSampleRate = 22050
)

// Runner executes an external program and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// Extractor computes a fingerprint for an audio file.
type Extractor interface {
	Fingerprint(ctx context.Context, path string) (string, error)
}

// FFmpegExtractor decodes audio with ffmpeg and hashes the PCM stream.
type FFmpegExtractor struct {
	runner  Runner
	binary  string
	seconds int
	timeout time.Duration
}

// Option configures an FFmpegExtractor.
type Option func(*FFmpegExtractor)

// WithBinary sets the ffmpeg executable (default "ffmpeg").
func WithBinary(path string) Option {
	return func(e *FFmpegExtractor) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithSeconds limits how much audio is decoded from the start of the file.
func WithSeconds(seconds int) Option {
	return func(e *FFmpegExtractor) {
		if seconds > 0 {
			e.seconds = seconds
		}
	}
}

// WithTimeout bounds each ffmpeg invocation.
func WithTimeout(d time.Duration) Option {
	return func(e *FFmpegExtractor) {
		e.timeout = d
	}
}

// NewFFmpegExtractor returns an extractor that runs ffmpeg through runner.
func NewFFmpegExtractor(runner Runner, opts ...Option) *FFmpegExtractor {
	e := &FFmpegExtractor{
		runner:  runner,
		binary:  "ffmpeg",
		seconds: DefaultSeconds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fingerprint decodes the first seconds of path to band-limited mono PCM and
// returns its perceptual hash.
func (e *FFmpegExtractor) Fingerprint(ctx context.Context, path string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	args := []string{
		"-v", "error", "-nostdin",
		"-i", path,
		"-af", "highpass=f=200,lowpass=f=4000",
		"-f", "s16le", "-ac", "1", "-ar", strconv.Itoa(DefaultSampleRate),
		"-t", strconv.Itoa(e.seconds),
		"pipe:1",
	}
	stdout, stderr, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("ffmpeg decode %s: %w", path, ctxErr)
		}
		return "", fmt.Errorf("ffmpeg decode %s: %w: %s", path, err, strings.TrimSpace(string(stderr)))
	}
	samples := SamplesFromPCM(stdout)
	if len(samples) == 0 {
		return "", fmt.Errorf("%s: %w", path, ErrNoAudio)
	}
	return PerceptualHash(samples), nil
}
