package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/tplay/modules/control"
)

// Command is a remote control request:
//
//	{"command": "pause"}
//	{"command": "char_map", "index": 3}
type Command struct {
	Command string `json:"command"`
	Index   *int   `json:"index,omitempty"`
}

// Response acknowledges a command on <control topic>/ack.
type Response struct {
	CommandAck string `json:"command_ack"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ParseCommand decodes a JSON command into the key it stands for.
func ParseCommand(payload []byte) (Command, control.Key, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, control.Key{}, fmt.Errorf("invalid JSON: %w", err)
	}

	action, err := control.ParseAction(cmd.Command)
	if err != nil {
		return cmd, control.Key{}, err
	}

	key := control.Key{Action: action}
	if action == control.ActionCharMap {
		if cmd.Index == nil || *cmd.Index < 0 {
			return cmd, control.Key{}, fmt.Errorf("char_map needs a non-negative 'index'")
		}
		key.Digit = *cmd.Index
	}
	return cmd, key, nil
}

// Commands delivers keys decoded from the control topic. The channel is
// never closed.
func (e *Emitter) Commands() <-chan control.Key {
	return e.commands
}

// onControl is called by the MQTT client for each control message.
func (e *Emitter) onControl(client mqtt.Client, msg mqtt.Message) {
	cmd, key, err := ParseCommand(msg.Payload())
	if err != nil {
		slog.Warn("telemetry: rejected control command", "error", err)
		e.respond(Response{CommandAck: cmd.Command, Status: "error", Error: err.Error()})
		return
	}

	slog.Info("telemetry: control command received", "command", cmd.Command)

	select {
	case e.commands <- key:
		e.respond(Response{CommandAck: cmd.Command, Status: "success"})
	default:
		slog.Warn("telemetry: command queue full, dropping command", "command", cmd.Command)
		e.respond(Response{CommandAck: cmd.Command, Status: "error", Error: "command queue full"})
	}
}

func (e *Emitter) respond(resp Response) {
	if e.client == nil || !e.isConnected() {
		return
	}
	if resp.CommandAck == "" {
		resp.CommandAck = "unknown"
	}
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("telemetry: failed to marshal response", "error", err)
		return
	}
	e.client.Publish(e.cfg.ControlTopic+"/ack", e.cfg.QoS, false, payload)
}
