package control

import (
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Key
	}{
		{"digits", "07", []Key{{Action: ActionCharMap, Digit: 0}, {Action: ActionCharMap, Digit: 7}}},
		{"toggles", " gm", []Key{{Action: ActionPause}, {Action: ActionGrayscale}, {Action: ActionMute}}},
		{"quit keys", "qQ\x03", []Key{{Action: ActionQuit}, {Action: ActionQuit}, {Action: ActionQuit}}},
		{"lone esc", "\x1b", []Key{{Action: ActionQuit}}},
		{"arrow key", "\x1b[A", nil},
		{"csi with params", "\x1b[1;5Cg", []Key{{Action: ActionGrayscale}}},
		{"ss3 function key", "\x1bOPm", []Key{{Action: ActionMute}}},
		{"alt+q is not quit", "\x1bq", nil},
		{"unknown bytes", "xyzG", nil},
		{"mixed", "a1 \x1b[Bq", []Key{{Action: ActionCharMap, Digit: 1}, {Action: ActionPause}, {Action: ActionQuit}}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode([]byte(tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	for name, want := range map[string]Action{
		"pause":    ActionPause,
		"gray":     ActionGrayscale,
		"char_map": ActionCharMap,
		"mute":     ActionMute,
		"quit":     ActionQuit,
	} {
		got, err := ParseAction(name)
		if err != nil || got != want {
			t.Errorf("ParseAction(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseAction("rewind"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestKeyString(t *testing.T) {
	if s := (Key{Action: ActionCharMap, Digit: 3}).String(); s != "char_map(3)" {
		t.Errorf("got %q", s)
	}
	if s := (Key{Action: ActionQuit}).String(); s != "quit" {
		t.Errorf("got %q", s)
	}
}
