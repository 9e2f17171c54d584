package framesource

import (
	"net/url"
	"path/filepath"
	"strings"
)

// CameraInput is the input name that selects the default camera device.
// "camera:<device>" selects a specific one.
const CameraInput = "camera"

var (
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
		".tif": true, ".tiff": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".webm": true, ".mkv": true,
		".mov": true, ".flv": true, ".ogg": true, ".ogv": true,
	}
	remoteHosts = []string{"youtube.com", "youtu.be"}
)

// DetectKind classifies an input string (path, URL or camera selector).
//
// Unknown file extensions classify as KindVideo: the GStreamer decoder is
// the most permissive one available.
func DetectKind(input string) Kind {
	if input == CameraInput || strings.HasPrefix(input, CameraInput+":") {
		return KindCamera
	}

	if u, err := url.Parse(input); err == nil && u.Scheme != "" && u.Host != "" {
		switch strings.ToLower(u.Scheme) {
		case "rtsp", "rtsps":
			return KindStream
		case "http", "https":
			host := strings.ToLower(u.Hostname())
			for _, h := range remoteHosts {
				if host == h || strings.HasSuffix(host, "."+h) {
					return KindRemote
				}
			}
			return KindVideo
		}
	}

	ext := strings.ToLower(filepath.Ext(input))
	switch {
	case ext == ".gif":
		return KindAnimation
	case imageExtensions[ext]:
		return KindImage
	case videoExtensions[ext]:
		return KindVideo
	default:
		return KindVideo
	}
}

// CameraDevice extracts the device from a "camera:<device>" input, or returns
// fallback for a bare "camera".
func CameraDevice(input, fallback string) string {
	if dev, ok := strings.CutPrefix(input, CameraInput+":"); ok && dev != "" {
		return dev
	}
	return fallback
}
