//go:build !windows

package platform

import "context"

type noHook struct{}

// NewKeyboardHook returns a hook that cannot be started; only Windows
// exposes a low-level keyboard hook.
func NewKeyboardHook() KeyboardHook {
	return noHook{}
}

func (noHook) Start(ctx context.Context) (<-chan KeyDown, error) {
	return nil, ErrUnsupported
}

func (noHook) SetGrab(bool) {}

func (noHook) Stop() error { return nil }
