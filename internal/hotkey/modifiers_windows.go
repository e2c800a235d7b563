package hotkey

import "golang.design/x/hotkey"

const (
	modAlt = hotkey.ModAlt
	modCmd = hotkey.ModWin
)

func modifierSymbol(mod hotkey.Modifier) string {
	switch mod {
	case hotkey.ModCtrl:
		return "Ctrl+"
	case hotkey.ModShift:
		return "Shift+"
	case hotkey.ModAlt:
		return "Alt+"
	case hotkey.ModWin:
		return "Win+"
	default:
		return ""
	}
}

// knownConflicts lists Windows shortcuts that are commonly taken
var knownConflicts = []ConflictInfo{
	{
		Name:        "Search",
		Description: "Windows search",
		Modifiers:   []hotkey.Modifier{hotkey.ModWin},
		Key:         hotkey.KeyS,
	},
	{
		Name:        "Lock Screen",
		Description: "Lock the session",
		Modifiers:   []hotkey.Modifier{hotkey.ModWin},
		Key:         hotkey.KeyL,
	},
	{
		Name:        "Input Language",
		Description: "Switch keyboard layout",
		Modifiers:   []hotkey.Modifier{hotkey.ModWin},
		Key:         hotkey.KeySpace,
	},
}
