package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// The speaker is process-global; it is initialized once at the rate of the
// first track and later tracks are resampled to it.
var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

func initSpeaker(rate beep.SampleRate) (beep.SampleRate, error) {
	speakerOnce.Do(func() {
		speakerRate = rate
		speakerErr = speaker.Init(rate, rate.N(time.Second/10))
	})
	return speakerRate, speakerErr
}

// BeepBackend plays mp3 and wav files through the system speaker.
type BeepBackend struct {
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	out      beep.Streamer
}

// NewBeepBackend returns a backend for the default audio device.
func NewBeepBackend() *BeepBackend {
	return &BeepBackend{}
}

func (b *BeepBackend) Name() string { return "beep" }

func (b *BeepBackend) Open(ctx context.Context, path string) error {
	if b.streamer != nil {
		return fmt.Errorf("already open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}

	rate, err := initSpeaker(format.SampleRate)
	if err != nil {
		streamer.Close()
		return fmt.Errorf("init speaker: %w", err)
	}

	b.streamer = streamer
	b.format = format
	b.ctrl = &beep.Ctrl{Streamer: streamer, Paused: false}
	b.volume = &effects.Volume{Streamer: b.ctrl, Base: 2, Volume: 0, Silent: false}
	b.out = b.volume
	if format.SampleRate != rate {
		b.out = beep.Resample(4, format.SampleRate, rate, b.volume)
	}
	return nil
}

func (b *BeepBackend) Play() error {
	if b.out == nil {
		return fmt.Errorf("not open")
	}
	speaker.Play(b.out)
	return nil
}

func (b *BeepBackend) Pause(paused bool) error {
	if b.ctrl == nil {
		return fmt.Errorf("not open")
	}
	speaker.Lock()
	b.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

func (b *BeepBackend) SetMuted(muted bool) error {
	if b.volume == nil {
		return fmt.Errorf("not open")
	}
	speaker.Lock()
	b.volume.Silent = muted
	speaker.Unlock()
	return nil
}

func (b *BeepBackend) Elapsed() time.Duration {
	if b.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := b.streamer.Position()
	speaker.Unlock()
	return b.format.SampleRate.D(pos)
}

func (b *BeepBackend) Stop() error {
	if b.streamer == nil {
		return nil
	}
	speaker.Clear()
	err := b.streamer.Close()
	b.streamer, b.ctrl, b.volume, b.out = nil, nil, nil, nil
	return err
}
