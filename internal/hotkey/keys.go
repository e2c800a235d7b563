package hotkey

import (
	"fmt"
	"strings"

	"github.com/yok-tottii/muze-audio/internal/config"
	"golang.design/x/hotkey"
)

var letterKeys = []hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
	hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
	hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
	hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
	hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = []hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}

// namedKeys maps config spellings to keys; the first spelling is the display name
var namedKeys = []struct {
	names []string
	key   hotkey.Key
}{
	{[]string{"Space"}, hotkey.KeySpace},
	{[]string{"Return", "Enter"}, hotkey.KeyReturn},
	{[]string{"Esc", "Escape"}, hotkey.KeyEscape},
	{[]string{"Tab"}, hotkey.KeyTab},
	{[]string{"Delete"}, hotkey.KeyDelete},
	{[]string{"Left"}, hotkey.KeyLeft},
	{[]string{"Right"}, hotkey.KeyRight},
	{[]string{"Up"}, hotkey.KeyUp},
	{[]string{"Down"}, hotkey.KeyDown},
	{[]string{"F1"}, hotkey.KeyF1},
	{[]string{"F2"}, hotkey.KeyF2},
	{[]string{"F3"}, hotkey.KeyF3},
	{[]string{"F4"}, hotkey.KeyF4},
	{[]string{"F5"}, hotkey.KeyF5},
	{[]string{"F6"}, hotkey.KeyF6},
	{[]string{"F7"}, hotkey.KeyF7},
	{[]string{"F8"}, hotkey.KeyF8},
	{[]string{"F9"}, hotkey.KeyF9},
	{[]string{"F10"}, hotkey.KeyF10},
	{[]string{"F11"}, hotkey.KeyF11},
	{[]string{"F12"}, hotkey.KeyF12},
}

// ParseKey converts a config key name such as "Space", "R" or "F5"
func ParseKey(name string) (hotkey.Key, error) {
	// Some IMEs report the space bar as a no-break space
	if name == "\u00a0" {
		return hotkey.KeySpace, nil
	}
	name = strings.TrimSpace(name)

	if len(name) == 1 {
		c := strings.ToUpper(name)[0]
		switch {
		case c >= 'A' && c <= 'Z':
			return letterKeys[c-'A'], nil
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], nil
		}
	}

	for _, nk := range namedKeys {
		for _, n := range nk.names {
			if strings.EqualFold(n, name) {
				return nk.key, nil
			}
		}
	}

	return 0, fmt.Errorf("unsupported key %q", name)
}

// keyToString converts a hotkey.Key to a display string
func keyToString(key hotkey.Key) string {
	for _, nk := range namedKeys {
		if nk.key == key {
			return nk.names[0]
		}
	}
	for i, k := range letterKeys {
		if k == key {
			return string(rune('A' + i))
		}
	}
	for i, k := range digitKeys {
		if k == key {
			return string(rune('0' + i))
		}
	}
	return "Unknown"
}

// FromConfig builds the binding for one configured combination
func FromConfig(action Action, c config.HotkeyConfig) (Binding, error) {
	key, err := ParseKey(c.Key)
	if err != nil {
		return Binding{}, fmt.Errorf("%s: %w", action, err)
	}

	var mods []hotkey.Modifier
	if c.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if c.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if c.Alt {
		mods = append(mods, modAlt)
	}
	if c.Cmd {
		mods = append(mods, modCmd)
	}

	return Binding{Action: action, Modifiers: mods, Key: key}, nil
}

// BindingsFromConfig builds the three transport bindings
func BindingsFromConfig(c config.HotkeysConfig) ([]Binding, error) {
	sources := []struct {
		action Action
		hk     config.HotkeyConfig
	}{
		{TogglePlay, c.TogglePlay},
		{StopTransport, c.Stop},
		{ToggleRecord, c.Record},
	}

	bindings := make([]Binding, 0, len(sources))
	for _, s := range sources {
		b, err := FromConfig(s.action, s.hk)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}

	if err := checkDuplicates(bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}
