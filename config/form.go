package config

import (
	"fmt"
	"strconv"
	"strings"
)

// SettingsForm holds settings exactly as the user typed them.
type SettingsForm struct {
	ActivationHotkey   string `json:"activationHotkey"`
	ScreenSide         string `json:"screenSide"`
	ScrollUpKey        string `json:"scrollUpKey"`
	ScrollDownKey      string `json:"scrollDownKey"`
	SelectKey          string `json:"selectKey"`
	OpenSettingsKey    string `json:"openSettingsKey"`
	HideStripKey       string `json:"hideStripKey"`
	SettingsSaveKey    string `json:"settingsSaveKey"`
	SettingsUpdateKey  string `json:"settingsUpdateKey"`
	SettingsBackKey    string `json:"settingsBackKey"`
	RetainedItemsLimit string `json:"retainedItemsLimit"`
	AutoHideSeconds    string `json:"autoHideSeconds"`
}

// FormFromSettings fills a form with the current values.
func FormFromSettings(s Settings) SettingsForm {
	return SettingsForm{
		ActivationHotkey:   s.ActivationHotkey,
		ScreenSide:         s.ScreenSide.String(),
		ScrollUpKey:        s.ScrollUpKey,
		ScrollDownKey:      s.ScrollDownKey,
		SelectKey:          s.SelectKey,
		OpenSettingsKey:    s.OpenSettingsKey,
		HideStripKey:       s.HideStripKey,
		SettingsSaveKey:    s.SettingsSaveKey,
		SettingsUpdateKey:  s.SettingsUpdateKey,
		SettingsBackKey:    s.SettingsBackKey,
		RetainedItemsLimit: strconv.Itoa(s.RetainedItemsLimit),
		AutoHideSeconds:    strconv.Itoa(s.AutoHideSeconds),
	}
}

// FieldError names the first form field that failed validation.
type FieldError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *FieldError) Error() string {
	return e.Message
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Validate parses every field. On success it returns normalised, clamped
// settings; on failure it returns the first *FieldError and no settings, so
// nothing is committed.
func (f SettingsForm) Validate() (Settings, error) {
	var s Settings

	hk, err := ParseHotkey(f.ActivationHotkey)
	if err != nil {
		return Settings{}, &FieldError{
			Field:   "activationHotkey",
			Value:   f.ActivationHotkey,
			Message: "Invalid activation hotkey. Example: CapsLock+D",
			Err:     err,
		}
	}
	s.ActivationHotkey = hk.String()

	keys := []struct {
		field string
		label string
		value string
		dst   *string
	}{
		{"scrollUpKey", "scroll up", f.ScrollUpKey, &s.ScrollUpKey},
		{"scrollDownKey", "scroll down", f.ScrollDownKey, &s.ScrollDownKey},
		{"selectKey", "select", f.SelectKey, &s.SelectKey},
		{"openSettingsKey", "open settings", f.OpenSettingsKey, &s.OpenSettingsKey},
		{"hideStripKey", "hide strip", f.HideStripKey, &s.HideStripKey},
		{"settingsSaveKey", "settings save", f.SettingsSaveKey, &s.SettingsSaveKey},
		{"settingsUpdateKey", "settings update", f.SettingsUpdateKey, &s.SettingsUpdateKey},
		{"settingsBackKey", "settings back", f.SettingsBackKey, &s.SettingsBackKey},
	}
	for _, k := range keys {
		key, err := ParseKey(k.value)
		if err != nil {
			return Settings{}, &FieldError{
				Field:   k.field,
				Value:   k.value,
				Message: fmt.Sprintf("Invalid %s key.", k.label),
				Err:     err,
			}
		}
		*k.dst = string(key)
	}

	retained, err := strconv.Atoi(strings.TrimSpace(f.RetainedItemsLimit))
	if err != nil {
		return Settings{}, &FieldError{
			Field:   "retainedItemsLimit",
			Value:   f.RetainedItemsLimit,
			Message: "Retained items must be a number.",
			Err:     err,
		}
	}
	s.RetainedItemsLimit = retained

	autoHide, err := strconv.Atoi(strings.TrimSpace(f.AutoHideSeconds))
	if err != nil {
		return Settings{}, &FieldError{
			Field:   "autoHideSeconds",
			Value:   f.AutoHideSeconds,
			Message: "Auto-hide seconds must be a number.",
			Err:     err,
		}
	}
	s.AutoHideSeconds = autoHide

	side, err := ParseScreenSide(f.ScreenSide)
	if err != nil {
		return Settings{}, &FieldError{
			Field:   "screenSide",
			Value:   f.ScreenSide,
			Message: "Screen side must be Left or Right.",
			Err:     err,
		}
	}
	s.ScreenSide = side

	return s.Clamped(), nil
}
