package display

import (
	"github.com/go-vgo/robotgo"

	"github.com/rfbengine/server/pkg/internal/log"
)

// keysymNames maps the X11 keysyms RFB KeyEvent messages carry (RFC 6143
// §7.5.4) to the key names robotgo expects. Only the keys a remote
// desktop session actually needs are covered; injectKey passes printable
// ASCII keysyms (0x20-0x7e) through as their characters, and anything else
// is logged and dropped rather than guessed at.
var keysymNames = map[uint32]string{
	0xff08: "backspace",
	0xff09: "tab",
	0xff0d: "enter",
	0xff1b: "esc",
	0xff50: "home",
	0xff51: "left",
	0xff52: "up",
	0xff53: "right",
	0xff54: "down",
	0xff55: "pageup",
	0xff56: "pagedown",
	0xff57: "end",
	0xff63: "insert",
	0xffe1: "shift",
	0xffe2: "shift_right",
	0xffe3: "ctrl",
	0xffe4: "ctrl_right",
	0xffe9: "alt",
	0xffea: "alt_right",
	0xffe7: "cmd",
	0xffff: "delete",
	0x0020: "space",
}

// injectKey translates an X11 keysym to a robotgo key name and toggles it,
// per the reference embedder's role as the thing that actually moves the
// local keyboard/mouse in response to client input.
func injectKey(keysym uint32, down bool) {
	name, ok := keysymNames[keysym]
	if !ok {
		if keysym >= 0x20 && keysym <= 0x7e {
			name = string(rune(keysym))
		} else {
			log.Warningf("no key mapping for keysym 0x%x, ignoring", keysym)
			return
		}
	}
	state := "up"
	if down {
		state = "down"
	}
	if err := robotgo.KeyToggle(name, state); err != nil {
		log.Warningf("key toggle %s %s failed: %v", name, state, err)
	}
}
