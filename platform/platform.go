package platform

import (
	"context"
	"errors"

	"markestedt/membrain/config"
)

// ErrUnsupported is returned by facilities the current OS does not provide.
var ErrUnsupported = errors.New("not supported on this platform")

// Clipboard provides clipboard access by format. Reads of an absent format
// return a zero value and no error.
type Clipboard interface {
	ReadImage() ([]byte, error)
	ReadFiles() ([]string, error)
	ReadText() (string, error)
	WriteText(text string) error
	WriteImage(png []byte) error
	// Watch signals on every clipboard change until ctx is done.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// KeyDown is one key press seen by the keyboard hook. Keys without a name
// arrive as config.KeyNone. The receiver must answer on Consumed; without
// an answer in time the hook falls back to its grab setting.
type KeyDown struct {
	Key       config.Key
	Modifiers config.Modifier
	Consumed  chan<- bool
}

// KeyboardHook observes key presses system-wide.
type KeyboardHook interface {
	Start(ctx context.Context) (<-chan KeyDown, error)
	// SetGrab sets the verdict for keys the receiver cannot answer in
	// time: swallowed while grabbing, passed through otherwise.
	SetGrab(on bool)
	// Stop removes the hook and waits for it to be gone.
	Stop() error
}

// Hotkey registers a global hotkey with the OS.
type Hotkey interface {
	Register(hk config.Hotkey) error
	Unregister() error
	// Pressed signals each time the registered hotkey fires.
	Pressed() <-chan struct{}
}

// Autostart controls whether the app launches at login.
type Autostart interface {
	Enabled() (bool, error)
	SetEnabled(enabled bool) error
}
