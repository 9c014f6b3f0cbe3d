package config

import (
	"fmt"
	"strings"
)

// Modifier is a set of modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModWin
	ModCapsLock
)

// Has reports whether all of m's bits are set in set.
func (set Modifier) Has(m Modifier) bool {
	return set&m == m
}

// Hotkey is a modifier set plus one key.
type Hotkey struct {
	Modifiers Modifier
	Key       Key
}

// DefaultActivationHotkey is used when the stored hotkey cannot be parsed.
var DefaultActivationHotkey = Hotkey{Modifiers: ModCapsLock, Key: "D"}

// String formats the hotkey in canonical form, e.g. "Ctrl+Shift+V".
func (h Hotkey) String() string {
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{
		{ModCtrl, "Ctrl"},
		{ModAlt, "Alt"},
		{ModShift, "Shift"},
		{ModWin, "Win"},
		{ModCapsLock, "CapsLock"},
	} {
		if h.Modifiers.Has(m.mod) {
			parts = append(parts, m.name)
		}
	}
	parts = append(parts, string(h.Key))
	return strings.Join(parts, "+")
}

// UsesCapsLock reports whether the hotkey must be matched by the keyboard
// hook rather than registered with the OS.
func (h Hotkey) UsesCapsLock() bool {
	return h.Modifiers.Has(ModCapsLock)
}

// Matches reports whether key pressed while held is down triggers the hotkey.
// Extra modifiers do not prevent a match.
func (h Hotkey) Matches(key Key, held Modifier) bool {
	return key == h.Key && held.Has(h.Modifiers)
}

// ParseHotkey parses a combo like "CapsLock+D" or "ctrl + shift + v". Every
// token but the last must be a modifier and at least one is required.
func ParseHotkey(combo string) (Hotkey, error) {
	var tokens []string
	for _, t := range strings.Split(combo, "+") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}

	if len(tokens) == 0 {
		return Hotkey{}, fmt.Errorf("%w: empty", ErrInvalidHotkey)
	}

	var hk Hotkey
	for _, t := range tokens[:len(tokens)-1] {
		switch strings.ToLower(t) {
		case "ctrl", "control":
			hk.Modifiers |= ModCtrl
		case "alt":
			hk.Modifiers |= ModAlt
		case "shift":
			hk.Modifiers |= ModShift
		case "win", "windows", "meta":
			hk.Modifiers |= ModWin
		case "capslock", "caps":
			hk.Modifiers |= ModCapsLock
		default:
			return Hotkey{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidHotkey, t)
		}
	}

	key, err := ParseKey(tokens[len(tokens)-1])
	if err != nil {
		return Hotkey{}, fmt.Errorf("%w: %w", ErrInvalidHotkey, err)
	}
	hk.Key = key

	if hk.Modifiers == 0 {
		return Hotkey{}, fmt.Errorf("%w: at least one modifier is required", ErrInvalidHotkey)
	}

	return hk, nil
}
