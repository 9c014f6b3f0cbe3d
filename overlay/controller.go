// Package overlay implements the activation state machine behind the
// hotkey-summoned history strip: visibility, the selection cursor, the
// settings panel and auto-hide.
//
// A Controller is driven from one goroutine. Every method takes the current
// time explicitly so callers (and tests) own the clock.
package overlay

import (
	"time"

	"markestedt/membrain/config"
)

// ToggleDebounce is the minimum spacing between two effective toggles.
const ToggleDebounce = 350 * time.Millisecond

// State is the overlay visibility state.
type State int

const (
	Hidden State = iota
	Visible
	VisibleWithSettingsOpen
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case VisibleWithSettingsOpen:
		return "settings"
	default:
		return "hidden"
	}
}

// Host performs the side effects the controller decides on.
type Host interface {
	// Show and Hide are called after the state has changed.
	Show()
	Hide()
	// CopySelected writes the item at index back to the clipboard and
	// reports whether it succeeded.
	CopySelected(index int) bool
	SaveSettings()
	CheckForUpdates()
}

// List reports how many history items are selectable.
type List interface {
	Len() int
}

// KeyEvent is a key-down observed by the keyboard hook, with the modifiers
// held at the time.
type KeyEvent struct {
	Key       config.Key
	Modifiers config.Modifier
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State           State     `json:"-"`
	StateName       string    `json:"state"`
	Selected        int       `json:"selected"`
	LastInteraction time.Time `json:"lastInteraction"`
	AutoHideSeconds int       `json:"autoHideSeconds"`
}

// Controller owns the overlay state.
type Controller struct {
	host     Host
	list     List
	bindings config.Bindings
	autoHide time.Duration

	state           State
	selected        int
	lastInteraction time.Time
	lastToggle      time.Time
	shuttingDown    bool
}

// NewController creates a hidden controller.
func NewController(host Host, list List, bindings config.Bindings, autoHideSeconds int) *Controller {
	c := &Controller{
		host:     host,
		list:     list,
		bindings: bindings,
		selected: -1,
	}
	c.SetAutoHide(autoHideSeconds)
	return c
}

// SetBindings replaces the active key bindings.
func (c *Controller) SetBindings(b config.Bindings) {
	c.bindings = b
}

// Bindings returns the active key bindings.
func (c *Controller) Bindings() config.Bindings {
	return c.bindings
}

// SetAutoHide sets the inactivity timeout, clamped to [1, 3600] seconds.
func (c *Controller) SetAutoHide(seconds int) {
	if seconds < config.MinAutoHideSeconds {
		seconds = config.MinAutoHideSeconds
	}
	if seconds > config.MaxAutoHideSeconds {
		seconds = config.MaxAutoHideSeconds
	}
	c.autoHide = time.Duration(seconds) * time.Second
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Visible reports whether the overlay is shown, with or without settings.
func (c *Controller) Visible() bool { return c.state != Hidden }

// Selected returns the selection cursor, or -1 when nothing is selected.
func (c *Controller) Selected() int { return c.selected }

// Snapshot returns the current state for display.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		State:           c.state,
		StateName:       c.state.String(),
		Selected:        c.selected,
		LastInteraction: c.lastInteraction,
		AutoHideSeconds: int(c.autoHide / time.Second),
	}
}

// Toggle flips between hidden and visible. Toggles closer than
// ToggleDebounce to the last effective one are ignored. It reports whether
// the toggle took effect.
func (c *Controller) Toggle(now time.Time) bool {
	if !c.lastToggle.IsZero() && now.Sub(c.lastToggle) < ToggleDebounce {
		return false
	}
	c.lastToggle = now

	if c.Visible() {
		c.hide()
	} else {
		c.show(now)
	}
	return true
}

// HandleKey processes a hook key-down and reports whether the key was
// consumed (and so must not reach other applications).
func (c *Controller) HandleKey(ev KeyEvent, now time.Time) bool {
	act := c.bindings.Activation
	if act.UsesCapsLock() && act.Matches(ev.Key, ev.Modifiers) {
		c.Toggle(now)
		return true
	}

	switch c.state {
	case Hidden:
		return false

	case VisibleWithSettingsOpen:
		c.Interact(now)
		switch ev.Key {
		case c.bindings.SettingsSave:
			c.host.SaveSettings()
		case c.bindings.SettingsUpdate:
			c.host.CheckForUpdates()
		case c.bindings.SettingsBack, config.KeyEscape:
			c.CloseSettings(now)
		}
		// Everything else is swallowed while the panel owns the keyboard
		return true
	}

	c.Interact(now)
	switch ev.Key {
	case c.bindings.ScrollUp:
		c.MoveUp(now)
	case c.bindings.ScrollDown:
		c.MoveDown(now)
	case c.bindings.Select:
		c.SelectCurrent(now)
	case c.bindings.OpenSettings:
		c.OpenSettings(now)
	case c.bindings.Hide, config.KeyEscape:
		c.hide()
	}
	return true
}

// Interact records user activity for auto-hide.
func (c *Controller) Interact(now time.Time) {
	c.lastInteraction = now
}

// MoveUp moves the cursor towards the newest item without wrapping.
func (c *Controller) MoveUp(now time.Time) {
	n := c.list.Len()
	if n == 0 {
		return
	}
	if c.selected <= 0 {
		c.selected = 0
	} else {
		c.selected--
	}
	c.clampSelection()
	c.Interact(now)
}

// MoveDown moves the cursor towards the oldest item without wrapping.
func (c *Controller) MoveDown(now time.Time) {
	n := c.list.Len()
	if n == 0 {
		return
	}
	if c.selected < 0 {
		c.selected = 0
	} else if c.selected < n-1 {
		c.selected++
	}
	c.clampSelection()
	c.Interact(now)
}

// SetSelected moves the cursor to index, clamped to the list. A negative
// index clears the selection.
func (c *Controller) SetSelected(index int) {
	if index < 0 {
		c.selected = -1
		return
	}
	c.selected = index
	c.clampSelection()
}

// SelectIndex selects index and copies it back, as a click on a row does.
func (c *Controller) SelectIndex(index int, now time.Time) bool {
	if index < 0 || index >= c.list.Len() {
		return false
	}
	c.selected = index
	c.Interact(now)
	return c.SelectCurrent(now)
}

// SelectCurrent copies the selected item back to the clipboard and hides
// the overlay. If the copy fails the overlay stays up.
func (c *Controller) SelectCurrent(now time.Time) bool {
	if c.selected < 0 || c.selected >= c.list.Len() {
		return false
	}
	if !c.host.CopySelected(c.selected) {
		return false
	}
	// The copied item is promoted to the front
	c.selected = 0
	c.hide()
	return true
}

// OpenSettings shows the settings panel.
func (c *Controller) OpenSettings(now time.Time) {
	if c.state == Hidden {
		return
	}
	c.state = VisibleWithSettingsOpen
	c.Interact(now)
}

// CloseSettings returns from the settings panel to the list.
func (c *Controller) CloseSettings(now time.Time) {
	if c.state != VisibleWithSettingsOpen {
		return
	}
	c.state = Visible
	c.Interact(now)
	if c.selected < 0 && c.list.Len() > 0 {
		c.selected = 0
	}
}

// Tick hides the overlay once it has been idle for the auto-hide timeout.
// It never hides while the settings panel is open. It reports whether the
// overlay was hidden.
func (c *Controller) Tick(now time.Time) bool {
	if c.state != Visible {
		return false
	}
	if now.Sub(c.lastInteraction) < c.autoHide {
		return false
	}
	c.hide()
	return true
}

// Hide hides the overlay if it is visible.
func (c *Controller) Hide() {
	if c.Visible() {
		c.hide()
	}
}

// BeginShutdown marks the controller as terminating, so a later close
// request is honoured instead of turned into a hide.
func (c *Controller) BeginShutdown() {
	c.shuttingDown = true
}

// CloseRequested handles a window close. Outside shutdown it hides the
// overlay and reports false (do not terminate).
func (c *Controller) CloseRequested() bool {
	if c.shuttingDown {
		return true
	}
	c.Hide()
	return false
}

// HistoryChanged keeps the cursor inside the list after it shrinks.
func (c *Controller) HistoryChanged() {
	c.clampSelection()
}

func (c *Controller) show(now time.Time) {
	c.state = Visible
	c.Interact(now)
	if c.list.Len() > 0 {
		c.selected = 0
	}
	c.host.Show()
}

func (c *Controller) hide() {
	was := c.state
	c.state = Hidden
	if was != Hidden {
		c.host.Hide()
	}
}

func (c *Controller) clampSelection() {
	n := c.list.Len()
	if n == 0 {
		c.selected = -1
		return
	}
	if c.selected >= n {
		c.selected = n - 1
	}
}
