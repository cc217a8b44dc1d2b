package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoAudioStream is returned when ffprobe finds no audio stream.
var ErrNoAudioStream = errors.New("no audio stream")

// ProbeInfo is the technical description of an audio file.
type ProbeInfo struct {
	Codec      string  `json:"codec"`
	SampleRate int     `json:"sample_rate"`
	BitDepth   int     `json:"bit_depth"`
	BitRate    int64   `json:"bit_rate"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"duration_seconds"`
}

type probeOutput struct {
	Streams []struct {
		CodecName        string `json:"codec_name"`
		CodecType        string `json:"codec_type"`
		SampleRate       string `json:"sample_rate"`
		Channels         int    `json:"channels"`
		BitsPerSample    int    `json:"bits_per_sample"`
		BitsPerRawSample string `json:"bits_per_raw_sample"`
		BitRate          string `json:"bit_rate"`
		Duration         string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe on path and returns the first audio stream's details.
func (a *Analyzer) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	stdout, stderr, err := a.runner.Run(ctx, a.ffprobe,
		"-v", "error", "-hide_banner",
		"-print_format", "json", "-show_format", "-show_streams",
		"--", path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(stderr)))
	}
	info, err := parseProbe(stdout)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return info, nil
}

func parseProbe(data []byte) (*ProbeInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}
	for _, s := range out.Streams {
		if !strings.EqualFold(s.CodecType, "audio") {
			continue
		}
		info := &ProbeInfo{
			Codec:      s.CodecName,
			SampleRate: int(parseInt(s.SampleRate)),
			BitDepth:   s.BitsPerSample,
			BitRate:    parseInt(s.BitRate),
			Channels:   s.Channels,
			Duration:   parseFloat(out.Format.Duration),
		}
		if info.BitDepth == 0 {
			info.BitDepth = int(parseInt(s.BitsPerRawSample))
		}
		if info.BitRate == 0 {
			info.BitRate = parseInt(out.Format.BitRate)
		}
		if info.Duration == 0 {
			info.Duration = parseFloat(s.Duration)
		}
		return info, nil
	}
	return nil, ErrNoAudioStream
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
