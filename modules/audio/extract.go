package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// FFmpegBinary is the executable used by ExtractTrack.
var FFmpegBinary = "ffmpeg"

// ExtractTrack copies the audio track of input into a temporary mp3 file
// and returns its path. The caller removes the file.
func ExtractTrack(ctx context.Context, input string) (string, error) {
	tmp, err := os.CreateTemp("", "tplay-*.mp3")
	if err != nil {
		return "", &AudioError{Op: "extract", Backend: "ffmpeg", Err: err}
	}
	path := tmp.Name()
	tmp.Close()

	cmd := exec.CommandContext(ctx, FFmpegBinary,
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-acodec", "mp3",
		"-y", path,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	slog.Debug("audio: extracting track", "input", input, "path", path)
	started := time.Now()

	if err := cmd.Run(); err != nil {
		os.Remove(path)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &AudioError{Op: "extract", Backend: "ffmpeg", Err: err}
	}

	slog.Info("audio: track extracted", "input", input, "path", path, "took", time.Since(started))
	return path, nil
}
