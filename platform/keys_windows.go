//go:build windows

package platform

import (
	"fmt"

	"markestedt/membrain/config"
)

var vkKeys = map[uint32]config.Key{
	0x08: "Back", 0x09: config.KeyTab, 0x0D: config.KeyEnter, 0x1B: config.KeyEscape,
	0x20: config.KeySpace, 0x21: "PageUp", 0x22: "PageDown", 0x23: "End", 0x24: "Home",
	0x25: config.KeyLeft, 0x26: config.KeyUp, 0x27: config.KeyRight, 0x28: config.KeyDown,
	0x2D: "Insert", 0x2E: "Delete",
}

func init() {
	for vk := uint32(0x41); vk <= 0x5A; vk++ {
		vkKeys[vk] = config.Key(rune(vk))
	}
	for vk := uint32(0x30); vk <= 0x39; vk++ {
		vkKeys[vk] = config.Key("D" + string(rune(vk)))
	}
	for i := uint32(0); i < 24; i++ {
		vkKeys[0x70+i] = config.Key(fmt.Sprintf("F%d", i+1))
	}
}

func keyForVK(vk uint32) config.Key {
	return vkKeys[vk]
}
