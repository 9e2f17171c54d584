// Package telemetry publishes session stats and control events to an MQTT
// broker and turns commands received on the control topic into key presses.
//
// Payloads on the stats and events topics are msgpack; commands and their
// acknowledgements are JSON.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/tplay/modules/control"
	"github.com/e7canasta/tplay/modules/controlbus"
	"github.com/e7canasta/tplay/modules/session"
)

// Config contains broker settings
type Config struct {
	Broker       string // host:port
	InstanceID   string
	QoS          byte
	StatsTopic   string
	EventsTopic  string
	ControlTopic string
}

// Report is the stats payload.
type Report struct {
	InstanceID   string  `msgpack:"instance_id"`
	SessionID    string  `msgpack:"session_id"`
	Timestamp    int64   `msgpack:"ts_ms"`
	UptimeS      float64 `msgpack:"uptime_s"`
	Pulled       uint64  `msgpack:"pulled"`
	Converted    uint64  `msgpack:"converted"`
	Rendered     uint64  `msgpack:"rendered"`
	Dropped      uint64  `msgpack:"dropped"`
	PausedDrops  uint64  `msgpack:"paused_discards"`
	LateRenders  uint64  `msgpack:"late_renders"`
	SkippedDraws uint64  `msgpack:"skipped_draws"`
	BytesWritten uint64  `msgpack:"bytes_written"`
	LoopRestarts uint64  `msgpack:"loop_restarts"`
	Reconnects   uint32  `msgpack:"reconnects"`
	IntervalMS   float64 `msgpack:"interval_ms"`
	KeysApplied  uint64  `msgpack:"keys_applied"`
	BusDropped   uint64  `msgpack:"bus_dropped"`
}

// NewReport flattens session stats into a Report.
func NewReport(instanceID, sessionID string, st session.Stats) Report {
	return Report{
		InstanceID:   instanceID,
		SessionID:    sessionID,
		Timestamp:    time.Now().UnixMilli(),
		UptimeS:      st.Uptime.Seconds(),
		Pulled:       st.Pulled,
		Converted:    st.Converted,
		Rendered:     st.Scheduler.Rendered,
		Dropped:      st.Scheduler.Dropped,
		PausedDrops:  st.Scheduler.DiscardedPaused,
		LateRenders:  st.Scheduler.LateRenders,
		SkippedDraws: st.Renderer.Skipped,
		BytesWritten: st.Renderer.Bytes,
		LoopRestarts: st.LoopRestarts,
		Reconnects:   st.Source.Reconnects,
		IntervalMS:   float64(st.Scheduler.Interval) / float64(time.Millisecond),
		KeysApplied:  st.Input.Applied,
		BusDropped:   st.Bus.TotalDropped,
	}
}

// eventPayload is the events topic payload.
type eventPayload struct {
	InstanceID   string            `msgpack:"instance_id"`
	SessionID    string            `msgpack:"session_id"`
	Kind         string            `msgpack:"kind"`
	Seq          uint64            `msgpack:"seq"`
	Timestamp    int64             `msgpack:"ts_ms"`
	Origin       string            `msgpack:"origin"`
	CharMapIndex int               `msgpack:"char_map"`
	Paused       bool              `msgpack:"paused"`
	Grayscale    bool              `msgpack:"gray"`
	Muted        bool              `msgpack:"muted"`
	Metadata     map[string]string `msgpack:"metadata,omitempty"`
}

// Emitter publishes to an MQTT broker.
type Emitter struct {
	cfg       Config
	sessionID string
	client    mqtt.Client
	commands  chan control.Key

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// NewEmitter creates an emitter. Nothing is connected until Connect.
func NewEmitter(cfg Config) *Emitter {
	return &Emitter{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		commands:  make(chan control.Key, 10),
		published: make(map[string]uint64),
	}
}

// SessionID identifies this run in every payload.
func (e *Emitter) SessionID() string { return e.sessionID }

// Connect establishes the broker connection and subscribes to the control
// topic.
func (e *Emitter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clientID := fmt.Sprintf("%s-%s", e.cfg.InstanceID, e.sessionID[:8])

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("telemetry: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", clientID,
		)
		if e.cfg.ControlTopic != "" {
			// resubscribe after automatic reconnects
			c.Subscribe(e.cfg.ControlTopic, e.cfg.QoS, e.onControl)
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("telemetry: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// PublishStats publishes one stats report.
func (e *Emitter) PublishStats(r Report) error {
	return e.publish(e.cfg.StatsTopic, r)
}

// PublishEvent publishes one control event.
func (e *Emitter) PublishEvent(ev controlbus.Event) error {
	return e.publish(e.cfg.EventsTopic, eventPayload{
		InstanceID:   e.cfg.InstanceID,
		SessionID:    e.sessionID,
		Kind:         ev.Kind.String(),
		Seq:          ev.Seq,
		Timestamp:    ev.Timestamp.UnixMilli(),
		Origin:       ev.Origin,
		CharMapIndex: ev.CharMapIndex,
		Paused:       ev.Paused,
		Grayscale:    ev.Grayscale,
		Muted:        ev.Muted,
		Metadata:     ev.Metadata,
	})
}

func (e *Emitter) publish(topic string, v any) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("telemetry: mqtt not connected")
	}

	payload, err := msgpack.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("telemetry: failed to marshal payload: %w", err)
	}

	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("telemetry: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("telemetry: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("telemetry: published", "topic", topic, "size", len(payload))
	return nil
}

// Run publishes a stats report every interval and every event received,
// until ctx is done.
func (e *Emitter) Run(ctx context.Context, interval time.Duration, stats func() session.Stats, events <-chan controlbus.Event) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.PublishStats(NewReport(e.cfg.InstanceID, e.sessionID, stats())); err != nil {
				slog.Debug("telemetry: stats not published", "error", err)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := e.PublishEvent(ev); err != nil {
				slog.Debug("telemetry: event not published", "kind", ev.Kind.String(), "error", err)
			}
		}
	}
}

// Disconnect closes the MQTT connection
func (e *Emitter) Disconnect() error {
	if e.client != nil && e.client.IsConnected() {
		if e.cfg.ControlTopic != "" {
			e.client.Unsubscribe(e.cfg.ControlTopic).WaitTimeout(time.Second)
		}
		e.client.Disconnect(250)
		slog.Info("telemetry: mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats returns emitter statistics
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *Emitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
