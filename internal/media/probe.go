package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Probe is the subset of ffprobe output the pipeline relies on.
type Probe struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// Format holds container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Probe runs ffprobe against path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Probe, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Probe{}, errors.New("ffprobe: empty path")
	}
	out, err := f.output(ctx, f.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Probe{}, fmt.Errorf("ffprobe: %w", err)
	}
	return ParseProbe(out)
}

// ParseProbe decodes ffprobe JSON.
func ParseProbe(data []byte) (Probe, error) {
	var p Probe
	if err := json.Unmarshal(data, &p); err != nil {
		return Probe{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return p, nil
}

// HasVideo reports whether the container carries a video stream.
func (p Probe) HasVideo() bool {
	return p.count("video") > 0
}

// HasAudio reports whether the container carries an audio stream.
func (p Probe) HasAudio() bool {
	return p.count("audio") > 0
}

// Dimensions returns the size of the first video stream, or zeros.
func (p Probe) Dimensions() (int, int) {
	for _, s := range p.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s.Width, s.Height
		}
	}
	return 0, 0
}

// DurationSeconds returns the container duration, falling back to the
// longest stream.
func (p Probe) DurationSeconds() float64 {
	if d, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64); err == nil && d > 0 {
		return d
	}
	var longest float64
	for _, s := range p.Streams {
		if d, err := strconv.ParseFloat(strings.TrimSpace(s.Duration), 64); err == nil && d > longest {
			longest = d
		}
	}
	return longest
}

func (p Probe) count(kind string) int {
	n := 0
	for _, s := range p.Streams {
		if strings.EqualFold(s.CodecType, kind) {
			n++
		}
	}
	return n
}
