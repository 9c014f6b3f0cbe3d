//go:build windows || linux || darwin

package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"

	"markestedt/membrain/config"
)

var hotkeyKeys = map[config.Key]hotkey.Key{
	"A": hotkey.KeyA, "B": hotkey.KeyB, "C": hotkey.KeyC, "D": hotkey.KeyD, "E": hotkey.KeyE,
	"F": hotkey.KeyF, "G": hotkey.KeyG, "H": hotkey.KeyH, "I": hotkey.KeyI, "J": hotkey.KeyJ,
	"K": hotkey.KeyK, "L": hotkey.KeyL, "M": hotkey.KeyM, "N": hotkey.KeyN, "O": hotkey.KeyO,
	"P": hotkey.KeyP, "Q": hotkey.KeyQ, "R": hotkey.KeyR, "S": hotkey.KeyS, "T": hotkey.KeyT,
	"U": hotkey.KeyU, "V": hotkey.KeyV, "W": hotkey.KeyW, "X": hotkey.KeyX, "Y": hotkey.KeyY,
	"Z": hotkey.KeyZ,
	"D0": hotkey.Key0, "D1": hotkey.Key1, "D2": hotkey.Key2, "D3": hotkey.Key3, "D4": hotkey.Key4,
	"D5": hotkey.Key5, "D6": hotkey.Key6, "D7": hotkey.Key7, "D8": hotkey.Key8, "D9": hotkey.Key9,
	"F1": hotkey.KeyF1, "F2": hotkey.KeyF2, "F3": hotkey.KeyF3, "F4": hotkey.KeyF4,
	"F5": hotkey.KeyF5, "F6": hotkey.KeyF6, "F7": hotkey.KeyF7, "F8": hotkey.KeyF8,
	"F9": hotkey.KeyF9, "F10": hotkey.KeyF10, "F11": hotkey.KeyF11, "F12": hotkey.KeyF12,
	config.KeySpace: hotkey.KeySpace, config.KeyEnter: hotkey.KeyReturn,
	config.KeyEscape: hotkey.KeyEscape, config.KeyTab: hotkey.KeyTab, "Delete": hotkey.KeyDelete,
	config.KeyLeft: hotkey.KeyLeft, config.KeyRight: hotkey.KeyRight,
	config.KeyUp: hotkey.KeyUp, config.KeyDown: hotkey.KeyDown,
}

// OSHotkey registers one global hotkey at a time through golang.design/x/hotkey.
type OSHotkey struct {
	mu      sync.Mutex
	def     config.Hotkey
	current *hotkey.Hotkey
	stop    chan struct{}
	pressed chan struct{}
}

// NewHotkey creates an unregistered global hotkey.
func NewHotkey() Hotkey {
	return &OSHotkey{pressed: make(chan struct{}, 1)}
}

// Register replaces any previous registration with hk. CapsLock cannot be
// registered with the OS and is rejected. If the OS refuses hk, the previous
// hotkey is registered again.
func (h *OSHotkey) Register(hk config.Hotkey) error {
	if hk.UsesCapsLock() {
		return fmt.Errorf("%s needs the keyboard hook: %w", hk, ErrUnsupported)
	}

	key, ok := hotkeyKeys[hk.Key]
	if !ok {
		return fmt.Errorf("key %s cannot be registered as a global hotkey: %w", hk.Key, ErrUnsupported)
	}
	mods, err := osModifiers(hk.Modifiers)
	if err != nil {
		return err
	}

	h.mu.Lock()
	prev, hadPrev := h.def, h.current != nil
	h.mu.Unlock()

	if err := h.Unregister(); err != nil {
		slog.Warn("Failed to unregister previous hotkey", "error", err)
	}

	next := hotkey.New(mods, key)
	if err := next.Register(); err != nil {
		if hadPrev && prev != hk {
			if rerr := h.Register(prev); rerr != nil {
				slog.Warn("Failed to restore previous hotkey", "hotkey", prev.String(), "error", rerr)
			}
		}
		return fmt.Errorf("failed to register %s: %w", hk, err)
	}

	stop := make(chan struct{})
	h.mu.Lock()
	h.def = hk
	h.current = next
	h.stop = stop
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case _, ok := <-next.Keydown():
				if !ok {
					return
				}
				select {
				case h.pressed <- struct{}{}:
				default:
				}
			}
		}
	}()

	return nil
}

// Unregister releases the current hotkey, if any.
func (h *OSHotkey) Unregister() error {
	h.mu.Lock()
	current, stop := h.current, h.stop
	h.current, h.stop = nil, nil
	h.mu.Unlock()

	if current == nil {
		return nil
	}
	close(stop)
	if err := current.Unregister(); err != nil {
		return fmt.Errorf("failed to unregister hotkey: %w", err)
	}
	return nil
}

// Pressed signals each time the registered hotkey fires.
func (h *OSHotkey) Pressed() <-chan struct{} {
	return h.pressed
}

func osModifiers(set config.Modifier) ([]hotkey.Modifier, error) {
	var mods []hotkey.Modifier
	for _, m := range []config.Modifier{config.ModCtrl, config.ModAlt, config.ModShift, config.ModWin} {
		if !set.Has(m) {
			continue
		}
		mod, ok := modifierMap[m]
		if !ok {
			return nil, fmt.Errorf("modifier not available on this platform: %w", ErrUnsupported)
		}
		mods = append(mods, mod)
	}
	return mods, nil
}
