//go:build !windows && !linux && !darwin

package platform

import "markestedt/membrain/config"

type noHotkey struct {
	pressed chan struct{}
}

// NewHotkey returns a hotkey that can never be registered.
func NewHotkey() Hotkey {
	return &noHotkey{pressed: make(chan struct{})}
}

func (h *noHotkey) Register(config.Hotkey) error { return ErrUnsupported }
func (h *noHotkey) Unregister() error            { return nil }
func (h *noHotkey) Pressed() <-chan struct{}     { return h.pressed }
