package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"markestedt/membrain/fileutil"
)

const (
	MinAutoHideSeconds = 1
	MaxAutoHideSeconds = 3600
	MinRetainedItems   = 1
	MaxRetainedItems   = 500
)

// ScreenSide is the screen edge the overlay docks to.
type ScreenSide int

const (
	SideLeft ScreenSide = iota
	SideRight
)

func (s ScreenSide) String() string {
	if s == SideRight {
		return "Right"
	}
	return "Left"
}

// ParseScreenSide accepts "Left" or "Right" in any case. Empty means Left.
func ParseScreenSide(v string) (ScreenSide, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	}
	return SideLeft, fmt.Errorf("unknown screen side %q", v)
}

func (s ScreenSide) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the side name or its numeric value. Unknown names
// load as Left.
func (s *ScreenSide) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		side, _ := ParseScreenSide(name)
		*s = side
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid screen side: %s", data)
	}
	if n == int(SideRight) {
		*s = SideRight
	} else {
		*s = SideLeft
	}
	return nil
}

// Settings are the user-editable overlay settings stored in settings.json.
type Settings struct {
	ActivationHotkey   string     `json:"activationHotkey"`
	ScreenSide         ScreenSide `json:"screenSide"`
	ScrollUpKey        string     `json:"scrollUpKey"`
	ScrollDownKey      string     `json:"scrollDownKey"`
	SelectKey          string     `json:"selectKey"`
	OpenSettingsKey    string     `json:"openSettingsKey"`
	HideStripKey       string     `json:"hideStripKey"`
	SettingsSaveKey    string     `json:"settingsSaveKey"`
	SettingsUpdateKey  string     `json:"settingsUpdateKey"`
	SettingsBackKey    string     `json:"settingsBackKey"`
	RetainedItemsLimit int        `json:"retainedItemsLimit"`
	AutoHideSeconds    int        `json:"autoHideSeconds"`
}

// DefaultSettings returns the settings used when none are stored.
func DefaultSettings() Settings {
	return Settings{
		ActivationHotkey:   "CapsLock+D",
		ScreenSide:         SideLeft,
		ScrollUpKey:        "Up",
		ScrollDownKey:      "Down",
		SelectKey:          "S",
		OpenSettingsKey:    "A",
		HideStripKey:       "D",
		SettingsSaveKey:    "A",
		SettingsUpdateKey:  "S",
		SettingsBackKey:    "D",
		RetainedItemsLimit: 15,
		AutoHideSeconds:    6,
	}
}

// Clamped returns s with numeric fields forced into range.
func (s Settings) Clamped() Settings {
	s.RetainedItemsLimit = clamp(s.RetainedItemsLimit, MinRetainedItems, MaxRetainedItems)
	s.AutoHideSeconds = clamp(s.AutoHideSeconds, MinAutoHideSeconds, MaxAutoHideSeconds)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Bindings are the parsed keys the overlay reacts to.
type Bindings struct {
	Activation     Hotkey
	ScrollUp       Key
	ScrollDown     Key
	Select         Key
	OpenSettings   Key
	Hide           Key
	SettingsSave   Key
	SettingsUpdate Key
	SettingsBack   Key
}

// Bindings parses the stored key names, substituting defaults for any that
// no longer parse.
func (s Settings) Bindings() Bindings {
	activation, err := ParseHotkey(s.ActivationHotkey)
	if err != nil {
		slog.Warn("Stored activation hotkey is invalid, using default", "value", s.ActivationHotkey, "default", DefaultActivationHotkey.String())
		activation = DefaultActivationHotkey
	}
	return Bindings{
		Activation:     activation,
		ScrollUp:       keyOr(s.ScrollUpKey, KeyUp),
		ScrollDown:     keyOr(s.ScrollDownKey, KeyDown),
		Select:         keyOr(s.SelectKey, "S"),
		OpenSettings:   keyOr(s.OpenSettingsKey, "A"),
		Hide:           keyOr(s.HideStripKey, "D"),
		SettingsSave:   keyOr(s.SettingsSaveKey, "A"),
		SettingsUpdate: keyOr(s.SettingsUpdateKey, "S"),
		SettingsBack:   keyOr(s.SettingsBackKey, "D"),
	}
}

func keyOr(v string, fallback Key) Key {
	if k, err := ParseKey(v); err == nil {
		return k
	}
	return fallback
}

// LoadSettings reads settings.json. A missing or unreadable file yields
// defaults; fields absent from the file keep their defaults.
func LoadSettings(path string) Settings {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read settings, using defaults", "path", path, "error", err)
		}
		return s
	}

	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("Settings file is corrupt, using defaults", "path", path, "error", err)
		return DefaultSettings()
	}
	return s.Clamped()
}

// SaveSettings clamps and writes settings.json atomically.
func SaveSettings(path string, s Settings) error {
	data, err := json.MarshalIndent(s.Clamped(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
