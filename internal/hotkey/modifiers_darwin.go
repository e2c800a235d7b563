package hotkey

import "golang.design/x/hotkey"

const (
	modAlt = hotkey.ModOption
	modCmd = hotkey.ModCmd
)

func modifierSymbol(mod hotkey.Modifier) string {
	switch mod {
	case hotkey.ModCtrl:
		return "⌃"
	case hotkey.ModShift:
		return "⇧"
	case hotkey.ModOption:
		return "⌥"
	case hotkey.ModCmd:
		return "⌘"
	default:
		return ""
	}
}

// knownConflicts lists macOS shortcuts that are commonly taken
var knownConflicts = []ConflictInfo{
	{
		Name:        "Spotlight",
		Description: "macOS Spotlight search",
		Modifiers:   []hotkey.Modifier{hotkey.ModCmd},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Input Source",
		Description: "Switch to the previous input source",
		Modifiers:   []hotkey.Modifier{hotkey.ModCtrl},
		Key:         hotkey.KeySpace,
	},
	{
		Name:        "Force Quit",
		Description: "macOS Force Quit",
		Modifiers:   []hotkey.Modifier{hotkey.ModCmd, hotkey.ModOption},
		Key:         hotkey.KeyEscape,
	},
	{
		Name:        "Quit",
		Description: "Quit the frontmost application",
		Modifiers:   []hotkey.Modifier{hotkey.ModCmd},
		Key:         hotkey.KeyQ,
	},
}
