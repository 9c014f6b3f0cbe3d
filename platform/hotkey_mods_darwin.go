//go:build darwin

package platform

import (
	"golang.design/x/hotkey"

	"markestedt/membrain/config"
)

var modifierMap = map[config.Modifier]hotkey.Modifier{
	config.ModCtrl:  hotkey.ModCtrl,
	config.ModShift: hotkey.ModShift,
	config.ModAlt:   hotkey.ModOption,
	config.ModWin:   hotkey.ModCmd,
}
