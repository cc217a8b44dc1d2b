package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNoLoudness is returned when the ebur128 summary cannot be found.
var ErrNoLoudness = errors.New("loudness summary not found")

// LoudnessInfo holds EBU R128 measurements. Fields are nil when ffmpeg did
// not report them.
type LoudnessInfo struct {
	Integrated *float64 `json:"integrated_lufs,omitempty"`
	Range      *float64 `json:"loudness_range,omitempty"`
	TruePeak   *float64 `json:"true_peak_dbfs,omitempty"`
}

// Loudness measures integrated loudness, loudness range and true peak of
// path with ffmpeg's ebur128 filter.
func (a *Analyzer) Loudness(ctx context.Context, path string) (*LoudnessInfo, error) {
	_, stderr, err := a.runner.Run(ctx, a.ffmpeg,
		"-hide_banner", "-nostats", "-nostdin",
		"-i", path,
		"-af", "ebur128=peak=true",
		"-f", "null", "-",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg ebur128 %s: %w", path, err)
	}
	info, err := parseLoudness(stderr)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg ebur128 %s: %w", path, err)
	}
	return info, nil
}

// parseLoudness reads the "Summary:" block that ebur128 logs at the end:
//
//	Integrated loudness:
//	  I:         -14.2 LUFS
//	Loudness range:
//	  LRA:         6.1 LU
//	True peak:
//	  Peak:       -0.8 dBFS
func parseLoudness(stderr []byte) (*LoudnessInfo, error) {
	idx := bytes.LastIndex(stderr, []byte("Summary:"))
	if idx < 0 {
		return nil, ErrNoLoudness
	}
	info := &LoudnessInfo{}
	sc := bufio.NewScanner(bytes.NewReader(stderr[idx:]))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case info.Integrated == nil && strings.HasPrefix(line, "I:"):
			info.Integrated = valueBefore(line, "I:", "LUFS")
		case info.Range == nil && strings.HasPrefix(line, "LRA:"):
			info.Range = valueBefore(line, "LRA:", "LU")
		case info.TruePeak == nil && strings.HasPrefix(line, "Peak:"):
			info.TruePeak = valueBefore(line, "Peak:", "dBFS")
		}
	}
	if info.Integrated == nil && info.TruePeak == nil {
		return nil, ErrNoLoudness
	}
	return info, nil
}

func valueBefore(line, label, unit string) *float64 {
	s := strings.TrimPrefix(line, label)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), unit))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
