// Package control turns key presses into playback state changes.
//
// The Handler is the only writer of the user-controlled fields of
// playback.State. Every recognized key becomes exactly one atomic Update
// followed by a non-blocking controlbus publish, so a slow subscriber can
// never delay input handling.
//
// Recognized keys:
//
//	0-9            select character map (digit modulo map count)
//	space          toggle pause
//	g              toggle grayscale
//	m              toggle mute
//	q, Q, Esc, ^C  quit
package control

import "fmt"

// Action is what a key asks the player to do.
type Action int

const (
	ActionCharMap Action = iota + 1
	ActionPause
	ActionGrayscale
	ActionMute
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionCharMap:
		return "char_map"
	case ActionPause:
		return "pause"
	case ActionGrayscale:
		return "gray"
	case ActionMute:
		return "mute"
	case ActionQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Key is one decoded key press.
type Key struct {
	Action Action
	// Digit is the pressed digit for ActionCharMap
	Digit int
}

func (k Key) String() string {
	if k.Action == ActionCharMap {
		return fmt.Sprintf("%s(%d)", k.Action, k.Digit)
	}
	return k.Action.String()
}

const (
	keyCtrlC = 0x03
	keyEsc   = 0x1b
)

// Decode extracts the recognized keys from one read of raw terminal input,
// in order. Unrecognized bytes are ignored. An Esc byte that starts an
// escape sequence (arrow keys, function keys, Alt+key) is skipped with its
// sequence; only a lone Esc at the end of the read counts as quit.
func Decode(buf []byte) []Key {
	var keys []Key
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		switch {
		case b >= '0' && b <= '9':
			keys = append(keys, Key{Action: ActionCharMap, Digit: int(b - '0')})
		case b == ' ':
			keys = append(keys, Key{Action: ActionPause})
		case b == 'g':
			keys = append(keys, Key{Action: ActionGrayscale})
		case b == 'm':
			keys = append(keys, Key{Action: ActionMute})
		case b == 'q' || b == 'Q' || b == keyCtrlC:
			keys = append(keys, Key{Action: ActionQuit})
		case b == keyEsc:
			if i == len(buf)-1 {
				keys = append(keys, Key{Action: ActionQuit})
				continue
			}
			i = skipEscape(buf, i)
		}
	}
	return keys
}

// skipEscape returns the index of the last byte of the escape sequence
// starting at buf[i] == Esc.
func skipEscape(buf []byte, i int) int {
	switch buf[i+1] {
	case '[':
		// CSI: parameter and intermediate bytes, then one final byte 0x40-0x7e
		for j := i + 2; j < len(buf); j++ {
			if buf[j] >= 0x40 && buf[j] <= 0x7e {
				return j
			}
		}
		return len(buf) - 1
	case 'O':
		// SS3: exactly one more byte
		if i+2 < len(buf) {
			return i + 2
		}
		return len(buf) - 1
	default:
		// Alt+key
		return i + 1
	}
}

// ParseAction maps a command name ("pause", "gray", ...) to its Action.
func ParseAction(name string) (Action, error) {
	switch name {
	case "char_map", "charmap":
		return ActionCharMap, nil
	case "pause":
		return ActionPause, nil
	case "gray", "grayscale":
		return ActionGrayscale, nil
	case "mute":
		return ActionMute, nil
	case "quit":
		return ActionQuit, nil
	default:
		return 0, fmt.Errorf("control: unknown command %q", name)
	}
}
