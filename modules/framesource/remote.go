package framesource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// YTDLPBinary is the executable used by Download.
var YTDLPBinary = "yt-dlp"

// Download fetches a remotely hosted video with yt-dlp into a temporary
// .webm file and returns its path. The caller removes the file.
func Download(ctx context.Context, url string) (string, error) {
	tmp, err := os.CreateTemp("", "tplay-*.webm")
	if err != nil {
		return "", Wrap(KindRemote, "download", err)
	}
	path := tmp.Name()

	cmd := exec.CommandContext(ctx, YTDLPBinary, url, "-o", "-")
	cmd.Stdout = tmp

	slog.Info("framesource: downloading remote video", "url", url, "path", path)
	started := time.Now()

	runErr := cmd.Run()
	closeErr := tmp.Close()
	if runErr != nil || closeErr != nil {
		os.Remove(path)
		if runErr == nil {
			runErr = closeErr
		}
		return "", Wrap(KindRemote, "download", fmt.Errorf("yt-dlp %s: %w", url, runErr))
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		os.Remove(path)
		return "", Wrap(KindRemote, "download", fmt.Errorf("yt-dlp %s produced no data", url))
	}

	slog.Info("framesource: remote video downloaded",
		"url", url,
		"bytes", info.Size(),
		"took", time.Since(started),
	)
	return path, nil
}
