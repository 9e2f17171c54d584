package framesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// MediaMetadata contains what ffprobe reports about a media file or URL.
type MediaMetadata struct {
	Width     int
	Height    int
	FPS       float64       // 0 when the container declares no rate
	FrameRate string        // "30/1", "30000/1001", ...
	Codec     string        // "h264", "vp9", ...
	HasAudio  bool
	Duration  time.Duration // 0 for live or unknown
	ProbedAt  time.Time
}

// ffprobeOutput mirrors the subset of `ffprobe -print_format json` we read.
type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// FFprobeBinary is the executable used by Probe.
var FFprobeBinary = "ffprobe"

// Probe runs ffprobe against input and returns the first video stream's
// geometry and rate, plus whether any audio stream exists.
func Probe(ctx context.Context, input string) (*MediaMetadata, error) {
	cmd := exec.CommandContext(ctx, FFprobeBinary,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		input,
	)

	slog.Debug("framesource: probing media", "input", input, "cmd", cmd.String())

	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("ffprobe %s: %w: %s", input, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe %s: %w", input, err)
	}

	md, err := parseProbeOutput(out)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", input, err)
	}

	slog.Info("framesource: media probed",
		"input", input,
		"resolution", fmt.Sprintf("%dx%d", md.Width, md.Height),
		"framerate", md.FrameRate,
		"codec", md.Codec,
		"has_audio", md.HasAudio,
		"duration", md.Duration,
	)
	return md, nil
}

func parseProbeOutput(data []byte) (*MediaMetadata, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe json: %w", err)
	}

	md := &MediaMetadata{ProbedAt: time.Now()}
	foundVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			md.Width = s.Width
			md.Height = s.Height
			md.Codec = s.CodecName
			md.FrameRate = s.RFrameRate
			md.FPS = ParseFrameRate(s.RFrameRate)
		case "audio":
			md.HasAudio = true
		}
	}
	if !foundVideo {
		return nil, fmt.Errorf("no video stream found")
	}

	if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && secs > 0 {
		md.Duration = time.Duration(secs * float64(time.Second))
	}
	return md, nil
}

// ParseFrameRate parses "num/den" or a plain number. Returns 0 for anything
// unparseable or non-positive ("0/0" is common for variable-rate streams).
func ParseFrameRate(s string) float64 {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d <= 0 || n <= 0 {
			return 0
		}
		return n / d
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return f
}

// FitWithin scales width x height down to at most maxWidth pixels wide,
// preserving aspect ratio and keeping both sides even (most raw video
// converters require it).
func FitWithin(width, height, maxWidth int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if maxWidth > 0 && width > maxWidth {
		height = height * maxWidth / width
		width = maxWidth
	}
	width &^= 1
	height &^= 1
	if width < 2 {
		width = 2
	}
	if height < 2 {
		height = 2
	}
	return width, height
}
