package framesource

import "context"

// Source is the pull-based interface every decoder variant implements.
//
// Implementations:
//   - ImageSource: a single still picture (png, jpeg, bmp, tiff, webp)
//   - AnimationSource: a pre-decoded frame sequence (gif)
//   - gstsource.Source: GStreamer pipelines for video files, URIs, RTSP and cameras
//
// Thread-safety:
//   - Next, Reset and Close are called from one goroutine (the session pump)
//   - NativeRate and Stats are safe to call from any goroutine
//
// Blocking:
//   - Next may block on decode, device or network I/O. It returns promptly with
//     ctx.Err() once ctx is cancelled, even if the underlying decoder does not
//     support cancellation.
//
// Example:
//
//	src, err := framesource.NewImageSource("photo.png")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	for {
//	    frame, err := src.Next(ctx)
//	    if errors.Is(err, framesource.ErrEndOfStream) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    process(frame)
//	}
type Source interface {
	// Next returns the next decoded frame in decode order.
	//
	// Returns:
	//   - ErrEndOfStream once the media is exhausted
	//   - *SourceError on decode/device/network failure (fatal for the session)
	//   - ctx.Err() if ctx is cancelled while waiting
	Next(ctx context.Context) (RawFrame, error)

	// Reset rewinds the source to its first frame so looping playback can
	// continue. Returns ErrNotResettable for live sources.
	Reset(ctx context.Context) error

	// NativeRate returns the media's own frame rate in frames per second, and
	// false while it is unknown. Sources that measure their rate (cameras,
	// live streams) start returning true once the measurement is stable.
	NativeRate() (fps float64, ok bool)

	// Kind reports which media family the source decodes.
	Kind() Kind

	// Stats returns current counters.
	Stats() SourceStats

	// Close releases decoder resources. Safe to call more than once, and from a
	// goroutine other than the one blocked in Next: Next then returns ErrClosed
	// (or ctx.Err()).
	Close() error
}
