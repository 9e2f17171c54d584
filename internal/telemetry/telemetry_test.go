package telemetry

import (
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/tplay/modules/control"
	"github.com/e7canasta/tplay/modules/controlbus"
	"github.com/e7canasta/tplay/modules/playback"
	"github.com/e7canasta/tplay/modules/session"
)

// fakeMessage implements mqtt.Message.
type fakeMessage struct {
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "tplay/control/test" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    control.Key
		wantErr bool
	}{
		{"pause", `{"command":"pause"}`, control.Key{Action: control.ActionPause}, false},
		{"gray", `{"command":"gray"}`, control.Key{Action: control.ActionGrayscale}, false},
		{"mute", `{"command":"mute"}`, control.Key{Action: control.ActionMute}, false},
		{"quit", `{"command":"quit"}`, control.Key{Action: control.ActionQuit}, false},
		{"char map", `{"command":"char_map","index":3}`, control.Key{Action: control.ActionCharMap, Digit: 3}, false},
		{"char map without index", `{"command":"char_map"}`, control.Key{}, true},
		{"negative index", `{"command":"char_map","index":-1}`, control.Key{}, true},
		{"unknown command", `{"command":"rewind"}`, control.Key{}, true},
		{"not json", `pause`, control.Key{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, key, err := ParseCommand([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%s) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
			if key != tt.want {
				t.Errorf("key = %v, want %v", key, tt.want)
			}
		})
	}
}

func TestOnControl_QueuesKeys(t *testing.T) {
	e := NewEmitter(Config{InstanceID: "test", ControlTopic: "tplay/control/test"})

	e.onControl(nil, fakeMessage{payload: []byte(`{"command":"mute"}`)})
	e.onControl(nil, fakeMessage{payload: []byte(`{"command":"bogus"}`)})

	select {
	case k := <-e.Commands():
		if k.Action != control.ActionMute {
			t.Errorf("key = %v", k)
		}
	default:
		t.Fatal("no key queued")
	}
	select {
	case k := <-e.Commands():
		t.Errorf("rejected command queued %v", k)
	default:
	}
}

func TestOnControl_DropsWhenFull(t *testing.T) {
	e := NewEmitter(Config{InstanceID: "test"})
	for i := 0; i < cap(e.commands)+5; i++ {
		e.onControl(nil, fakeMessage{payload: []byte(`{"command":"pause"}`)})
	}
	if got := len(e.Commands()); got != cap(e.commands) {
		t.Errorf("queued %d commands, want %d", got, cap(e.commands))
	}
}

func TestPublish_NotConnected(t *testing.T) {
	e := NewEmitter(Config{InstanceID: "test", StatsTopic: "s", EventsTopic: "e"})

	if err := e.PublishStats(Report{}); err == nil {
		t.Error("PublishStats succeeded without a connection")
	}
	if err := e.PublishEvent(controlbus.Event{Kind: controlbus.KindPause}); err == nil {
		t.Error("PublishEvent succeeded without a connection")
	}
	if st := e.Stats(); st.Errors != 2 || st.Connected {
		t.Errorf("stats = %+v", st)
	}
	if err := e.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
}

func TestNewReport(t *testing.T) {
	st := session.Stats{
		Pulled:       120,
		Converted:    118,
		LoopRestarts: 2,
		Uptime:       4 * time.Second,
		Scheduler: playback.SchedulerStats{
			Rendered: 100,
			Dropped:  18,
			Interval: 40 * time.Millisecond,
		},
	}
	r := NewReport("living-room", "abc", st)
	if r.Rendered != 100 || r.Dropped != 18 || r.IntervalMS != 40 || r.UptimeS != 4 {
		t.Errorf("report = %+v", r)
	}

	data, err := msgpack.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]any
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"instance_id", "session_id", "rendered", "dropped", "loop_restarts", "interval_ms"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("payload has no %q field", key)
		}
	}
}

func TestSessionIDIsUnique(t *testing.T) {
	a, b := NewEmitter(Config{}), NewEmitter(Config{})
	if a.SessionID() == b.SessionID() || len(a.SessionID()) != 36 {
		t.Errorf("session ids %q, %q", a.SessionID(), b.SessionID())
	}
}
