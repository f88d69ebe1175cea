package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Listen registers a system-wide hotkey combination such as "Ctrl+D" and
// invokes cb each time the full combination is pressed. The callback runs on
// the hook goroutine; it must only hand off (e.g. post into a channel), never
// touch UI state directly.
//
// An unparseable combination is reported synchronously so the caller can warn
// once and keep running with in-window buttons only. Hook startup failures
// after that are logged and leave the hotkey disabled, nothing else.
func Listen(combo string, cb func()) error {
	keys, err := parseCombo(combo)
	if err != nil {
		return err
	}

	states := make([]keyState, 0, len(keys))
	for _, name := range keys {
		raw := rawcodesFor(name)
		if len(raw) == 0 {
			return fmt.Errorf("hotkey: unknown key %q in combination %q", name, combo)
		}
		states = append(states, keyState{name: name, rawcodes: raw})
	}

	go run(combo, states, cb)
	return nil
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

func run(combo string, states []keyState, cb func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hotkey: panic in hook goroutine: %v", r)
		}
	}()

	evChan := gohook.Start()
	if evChan == nil {
		log.Printf("hotkey: hook start failed, %q disabled", combo)
		return
	}
	defer gohook.End()
	log.Printf("hotkey: listening for %s", combo)

	var mu sync.Mutex
	for ev := range evChan {
		switch ev.Kind {
		case gohook.KeyDown, gohook.KeyHold:
			mu.Lock()
			markPressed(states, ev.Rawcode, true)
			fire := allPressed(states)
			if fire {
				// Require a fresh press of every key for the next trigger.
				for i := range states {
					states[i].pressed = false
				}
			}
			mu.Unlock()
			if fire {
				log.Printf("hotkey: %s activated", combo)
				cb()
			}
		case gohook.KeyUp:
			mu.Lock()
			markPressed(states, ev.Rawcode, false)
			mu.Unlock()
		}
	}
	log.Printf("hotkey: event channel closed")
}

func markPressed(states []keyState, rawcode uint16, down bool) {
	for i := range states {
		for _, rc := range states[i].rawcodes {
			if rc == rawcode {
				states[i].pressed = down
				return
			}
		}
	}
}

func allPressed(states []keyState) bool {
	for i := range states {
		if !states[i].pressed {
			return false
		}
	}
	return true
}

// parseCombo splits a "Ctrl+Alt+Q"-style string into normalized key names.
func parseCombo(combo string) ([]string, error) {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(combo), "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch part {
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("hotkey: empty combination %q", combo)
	}
	return keys, nil
}

// rawcodesFor maps a normalized key name to its virtual key rawcodes.
// Modifiers yield both left and right variants.
func rawcodesFor(name string) []uint16 {
	switch name {
	case "ctrl":
		return []uint16{162, 163} // VK_LCONTROL, VK_RCONTROL
	case "alt":
		return []uint16{164, 165} // VK_LMENU, VK_RMENU
	case "shift":
		return []uint16{160, 161} // VK_LSHIFT, VK_RSHIFT
	case "cmd":
		return []uint16{91, 92} // VK_LWIN, VK_RWIN
	case "space":
		return []uint16{32}
	case "enter", "return":
		return []uint16{13}
	case "esc", "escape":
		return []uint16{27}
	case "tab":
		return []uint16{9}
	case "left":
		return []uint16{37}
	case "up":
		return []uint16{38}
	case "right":
		return []uint16{39}
	case "down":
		return []uint16{40}
	}

	// Letters a-z map onto VK 0x41-0x5A, digits 0-9 onto 0x30-0x39.
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c - 'a' + 0x41)}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}

	// Function keys f1-f24 map onto VK 0x70 onward.
	if strings.HasPrefix(name, "f") {
		var n int
		if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 {
			return []uint16{uint16(0x70 + n - 1)}
		}
	}

	return nil
}
