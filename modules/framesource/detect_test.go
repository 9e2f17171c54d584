package framesource

import (
	"testing"
	"time"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
	}{
		{"camera", KindCamera},
		{"camera:/dev/video2", KindCamera},
		{"rtsp://192.168.1.10:554/stream", KindStream},
		{"RTSPS://cam.local/live", KindStream},
		{"https://www.youtube.com/watch?v=abc", KindRemote},
		{"https://youtu.be/abc", KindRemote},
		{"https://m.youtube.com/watch?v=abc", KindRemote},
		{"https://example.com/clip.mp4", KindVideo},
		{"https://notyoutube.com/clip", KindVideo},
		{"cat.gif", KindAnimation},
		{"/tmp/CAT.GIF", KindAnimation},
		{"photo.jpg", KindImage},
		{"photo.JPEG", KindImage},
		{"scan.tiff", KindImage},
		{"still.webp", KindImage},
		{"movie.mkv", KindVideo},
		{"movie.mp4", KindVideo},
		{"mystery.bin", KindVideo},
		{"no_extension", KindVideo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DetectKind(tt.input); got != tt.want {
				t.Errorf("DetectKind(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestCameraDevice(t *testing.T) {
	if got := CameraDevice("camera", "/dev/video0"); got != "/dev/video0" {
		t.Errorf("bare camera: got %q", got)
	}
	if got := CameraDevice("camera:/dev/video3", "/dev/video0"); got != "/dev/video3" {
		t.Errorf("explicit device: got %q", got)
	}
	if got := CameraDevice("camera:", "/dev/video0"); got != "/dev/video0" {
		t.Errorf("empty device: got %q", got)
	}
}

func TestParseProbeOutput(t *testing.T) {
	t.Run("video with audio", func(t *testing.T) {
		data := []byte(`{
			"streams": [
				{"codec_type": "audio", "codec_name": "aac"},
				{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
				{"codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 240, "r_frame_rate": "90000/1"}
			],
			"format": {"duration": "12.500000"}
		}`)
		md, err := parseProbeOutput(data)
		if err != nil {
			t.Fatalf("parseProbeOutput: %v", err)
		}
		if md.Width != 1920 || md.Height != 1080 || md.Codec != "h264" {
			t.Errorf("took wrong video stream: %+v", md)
		}
		if md.FPS < 29.96 || md.FPS > 29.98 {
			t.Errorf("FPS = %f, want ~29.97", md.FPS)
		}
		if !md.HasAudio {
			t.Error("HasAudio = false")
		}
		if md.Duration != 12500*time.Millisecond {
			t.Errorf("Duration = %v", md.Duration)
		}
	})

	t.Run("audio only", func(t *testing.T) {
		_, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
		if err == nil {
			t.Error("expected error without a video stream")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := parseProbeOutput([]byte("not json")); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"25", 25},
		{"24000/1000", 24},
		{"0/0", 0},
		{"30/0", 0},
		{"-5", 0},
		{"", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := ParseFrameRate(tt.in); got != tt.want {
			t.Errorf("ParseFrameRate(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"already small", 320, 240, 640, 320, 240},
		{"downscale 1080p", 1920, 1080, 640, 640, 360},
		{"odd sides rounded down", 641, 481, 0, 640, 480},
		{"tiny", 1, 1, 640, 2, 2},
		{"no limit", 1920, 1080, 0, 1920, 1080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitWithin(tt.w, tt.h, tt.max)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitWithin(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}
