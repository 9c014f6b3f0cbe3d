//go:build linux

package platform

import (
	"golang.design/x/hotkey"

	"markestedt/membrain/config"
)

// X11 maps Alt to Mod1 and Super to Mod4
var modifierMap = map[config.Modifier]hotkey.Modifier{
	config.ModCtrl:  hotkey.ModCtrl,
	config.ModShift: hotkey.ModShift,
	config.ModAlt:   hotkey.Mod1,
	config.ModWin:   hotkey.Mod4,
}
