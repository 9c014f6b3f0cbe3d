package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrInvalidKey    = errors.New("invalid key")
	ErrInvalidHotkey = errors.New("invalid hotkey")
)

// Key is a canonical key name such as "A", "D5", "F2", "Up" or "Escape".
type Key string

const (
	KeyNone   Key = ""
	KeyUp     Key = "Up"
	KeyDown   Key = "Down"
	KeyLeft   Key = "Left"
	KeyRight  Key = "Right"
	KeyEscape Key = "Escape"
	KeyEnter  Key = "Enter"
	KeySpace  Key = "Space"
	KeyTab    Key = "Tab"
)

// Label is the key as shown in shortcut hints.
func (k Key) Label() string {
	if k == KeyNone {
		return "?"
	}
	return strings.ToUpper(string(k))
}

// keyAliases maps lowercase spellings to canonical keys.
var keyAliases = map[string]Key{
	"up": KeyUp, "down": KeyDown, "left": KeyLeft, "right": KeyRight,
	"escape": KeyEscape, "esc": KeyEscape,
	"enter": KeyEnter, "return": KeyEnter,
	"space": KeySpace, "tab": KeyTab,
	"back": "Back", "backspace": "Back",
	"delete": "Delete", "del": "Delete",
	"insert": "Insert", "ins": "Insert",
	"home": "Home", "end": "End",
	"pageup": "PageUp", "prior": "PageUp", "pgup": "PageUp",
	"pagedown": "PageDown", "next": "PageDown", "pgdn": "PageDown",
}

func init() {
	for c := 'A'; c <= 'Z'; c++ {
		keyAliases[strings.ToLower(string(c))] = Key(string(c))
	}
	for c := '0'; c <= '9'; c++ {
		k := Key("D" + string(c))
		keyAliases[string(c)] = k
		keyAliases["d"+string(c)] = k
	}
	for i := 1; i <= 24; i++ {
		k := Key(fmt.Sprintf("F%d", i))
		keyAliases[strings.ToLower(string(k))] = k
	}
}

// ParseKey parses a single key name. Matching is case-insensitive and a bare
// digit maps to its D-prefixed name.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return KeyNone, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if k, ok := keyAliases[strings.ToLower(s)]; ok {
		return k, nil
	}
	return KeyNone, fmt.Errorf("%w: %q", ErrInvalidKey, s)
}

// KnownKeys returns every canonical key name.
func KnownKeys() []Key {
	seen := make(map[Key]bool)
	var keys []Key
	for _, k := range keyAliases {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
