package overlay

import (
	"fmt"

	"markestedt/membrain/config"
)

// Hints returns the shortcut legend shown on the strip.
func Hints(b config.Bindings) []string {
	return []string{
		b.OpenSettings.Label() + " Settings",
		b.Select.Label() + " Select",
		b.Hide.Label() + " Hide",
		fmt.Sprintf("%s/%s Scroll", b.ScrollUp.Label(), b.ScrollDown.Label()),
	}
}

// SettingsHints returns the button captions of the settings panel.
func SettingsHints(b config.Bindings) []string {
	return []string{
		fmt.Sprintf("Save (%s)", b.SettingsSave.Label()),
		fmt.Sprintf("Update (%s)", b.SettingsUpdate.Label()),
		fmt.Sprintf("Back (%s)", b.SettingsBack.Label()),
	}
}
