// Package controlbus fans playback control events out to the components that
// react to them (audio, telemetry) without ever blocking the publisher.
//
// Events published to the bus are delivered to every registered subscriber
// channel. If a subscriber's channel is full the event is dropped for that
// subscriber and counted, so a stalled consumer can never stall the input
// handler that publishes.
//
// # Basic Usage
//
//	bus := controlbus.New()
//	defer bus.Close()
//
//	audioCh := make(chan controlbus.Event, 8)
//	bus.Subscribe("audio", audioCh)
//
//	bus.Publish(controlbus.Event{Kind: controlbus.KindMute, Muted: true})
//
//	stats := bus.Stats()
//	fmt.Printf("Published: %d, Sent: %d, Dropped: %d\n",
//	    stats.TotalPublished, stats.TotalSent, stats.TotalDropped)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Subscribe and Unsubscribe may be
// called while publishing.
package controlbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Bus distributes control events to multiple subscribers.
type Bus interface {
	// Subscribe registers a channel to receive events.
	// Returns error if id already exists or if bus is closed.
	Subscribe(id string, ch chan<- Event) error

	// Unsubscribe removes a subscriber by id.
	Unsubscribe(id string) error

	// Publish sends ev to all subscribers without blocking. Events published
	// after Close are discarded.
	Publish(ev Event)

	// Stats returns current bus statistics snapshot.
	Stats() BusStats

	// Close stops the bus. Subscriber channels are not closed.
	Close() error
}

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("controlbus: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("controlbus: subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("controlbus: bus is closed")

	// ErrNilChannel is returned when Subscribe is called with a nil channel.
	ErrNilChannel = errors.New("controlbus: subscriber channel cannot be nil")
)

// Kind identifies a control event.
type Kind int

const (
	KindCharMap Kind = iota + 1
	KindPause
	KindGrayscale
	KindMute
	KindQuit
	KindLoopRestart
	KindResize
)

func (k Kind) String() string {
	switch k {
	case KindCharMap:
		return "char_map"
	case KindPause:
		return "pause"
	case KindGrayscale:
		return "gray"
	case KindMute:
		return "mute"
	case KindQuit:
		return "quit"
	case KindLoopRestart:
		return "loop_restart"
	case KindResize:
		return "resize"
	default:
		return "unknown"
	}
}

// Event is one applied playback change. The state fields carry the values
// after the change.
type Event struct {
	Kind      Kind
	Seq       uint64
	Timestamp time.Time

	CharMapIndex int
	Paused       bool
	Grayscale    bool
	Muted        bool

	// Origin names the producer ("keyboard", "remote", "session")
	Origin string

	// Metadata contains optional key-value pairs
	Metadata map[string]string
}

// BusStats contains global and per-subscriber metrics.
type BusStats struct {
	// TotalPublished is the number of Publish() calls
	TotalPublished uint64

	// TotalSent is the sum of events sent to all subscribers
	TotalSent uint64

	// TotalDropped is the sum of events dropped across all subscribers
	TotalDropped uint64

	// Subscribers contains per-subscriber breakdown
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks metrics for a single subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriberStats struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

type bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- Event
	stats       map[string]*subscriberStats
	closed      bool

	totalPublished atomic.Uint64
	seq            atomic.Uint64
}

// New creates a new control bus.
func New() Bus {
	return &bus{
		subscribers: make(map[string]chan<- Event),
		stats:       make(map[string]*subscriberStats),
	}
}

func (b *bus) Subscribe(id string, ch chan<- Event) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = ch
	b.stats[id] = &subscriberStats{}
	return nil
}

func (b *bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	delete(b.stats, id)
	return nil
}

// Publish stamps ev with the next sequence number (and the current time if
// unset) and offers it to every subscriber.
func (b *bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.totalPublished.Add(1)
	ev.Seq = b.seq.Add(1)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
			b.stats[id].sent.Add(1)
		default:
			b.stats[id].dropped.Add(1)
		}
	}
}

func (b *bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := BusStats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.stats)),
	}
	for id, st := range b.stats {
		sent, dropped := st.sent.Load(), st.dropped.Load()
		result.TotalSent += sent
		result.TotalDropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}
	return result
}

// Close is idempotent. Stats keeps working afterwards.
func (b *bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// DropRate returns the fraction of deliveries dropped (0.0 to 1.0).
func DropRate(stats BusStats) float64 {
	total := stats.TotalSent + stats.TotalDropped
	if total == 0 {
		return 0.0
	}
	return float64(stats.TotalDropped) / float64(total)
}
