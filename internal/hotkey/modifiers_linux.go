package hotkey

import "golang.design/x/hotkey"

// X11 maps Alt to Mod1 and Super to Mod4 on common layouts
const (
	modAlt = hotkey.Mod1
	modCmd = hotkey.Mod4
)

func modifierSymbol(mod hotkey.Modifier) string {
	switch mod {
	case hotkey.ModCtrl:
		return "Ctrl+"
	case hotkey.ModShift:
		return "Shift+"
	case hotkey.Mod1:
		return "Alt+"
	case hotkey.Mod4:
		return "Super+"
	default:
		return ""
	}
}

// knownConflicts lists desktop shortcuts that are commonly taken
var knownConflicts = []ConflictInfo{
	{
		Name:        "Activities",
		Description: "Desktop overview or launcher",
		Modifiers:   []hotkey.Modifier{hotkey.Mod4},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Terminal",
		Description: "Open a terminal (common default)",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl, hotkey.Mod1},
		Key:         hotkey.KeyT,
	},
	{
		Name:        "Lock Screen",
		Description: "Lock the session",
		Modifiers:   []hotkey.Modifier{hotkey.Mod4},
		Key:         hotkey.KeyL,
	},
}
