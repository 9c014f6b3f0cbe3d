package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/membrain/config"
	"markestedt/membrain/history"
	"markestedt/membrain/overlay"
	"markestedt/membrain/platform"
	"markestedt/membrain/storage"
	"markestedt/membrain/web"
)

type fakeClipboard struct {
	mu      sync.Mutex
	text    string
	image   []byte
	writes  []string
	images  [][]byte
	failing bool
	changes chan struct{}
}

func newFakeClipboard() *fakeClipboard {
	return &fakeClipboard{changes: make(chan struct{}, 8)}
}

func (c *fakeClipboard) ReadImage() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image, nil
}

func (c *fakeClipboard) ReadFiles() ([]string, error) { return nil, nil }

func (c *fakeClipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *fakeClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("clipboard locked")
	}
	c.text, c.image = text, nil
	c.writes = append(c.writes, text)
	return nil
}

func (c *fakeClipboard) WriteImage(png []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("clipboard locked")
	}
	c.image = png
	c.images = append(c.images, png)
	return nil
}

func (c *fakeClipboard) Watch(ctx context.Context) (<-chan struct{}, error) {
	return c.changes, nil
}

func (c *fakeClipboard) set(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text, c.image = text, nil
}

type fakeHotkey struct {
	mu           sync.Mutex
	registered   []config.Hotkey
	unregistered int
	refuse       map[string]bool
	pressed      chan struct{}
}

func newFakeHotkey() *fakeHotkey {
	return &fakeHotkey{refuse: map[string]bool{}, pressed: make(chan struct{})}
}

func (h *fakeHotkey) Register(hk config.Hotkey) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refuse[hk.String()] {
		return errors.New("hotkey already registered")
	}
	h.registered = append(h.registered, hk)
	return nil
}

func (h *fakeHotkey) Unregister() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregistered++
	return nil
}

func (h *fakeHotkey) Pressed() <-chan struct{} { return h.pressed }

type fakeHook struct {
	mu      sync.Mutex
	keys    chan platform.KeyDown
	grabs   []bool
	stops   int
	stopErr error
}

func newFakeHook() *fakeHook {
	return &fakeHook{keys: make(chan platform.KeyDown)}
}

func (h *fakeHook) Start(ctx context.Context) (<-chan platform.KeyDown, error) {
	return h.keys, nil
}

func (h *fakeHook) SetGrab(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.grabs = append(h.grabs, on)
}

func (h *fakeHook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	return h.stopErr
}

type testAgent struct {
	*Agent
	clip   *fakeClipboard
	hotkey *fakeHotkey
	hook   *fakeHook
	paths  config.Paths
	clock  time.Time
}

// advance moves the agent clock past the toggle debounce.
func (t *testAgent) advance(d time.Duration) {
	t.clock = t.clock.Add(d)
}

func (t *testAgent) capture(text string) {
	t.clip.set(text)
	t.advance(time.Second)
	t.handleClipboardChange()
}

func (t *testAgent) texts() []string {
	var out []string
	for _, it := range t.store.Items() {
		out = append(out, it.Text)
	}
	return out
}

func newTestAgent(t *testing.T, settings *config.Settings, db *storage.DB) *testAgent {
	t.Helper()

	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	cfg.Web.Enabled = false
	cfg.Tray.Enabled = false
	paths := config.PathsFor(cfg.Data.Dir)

	if settings != nil {
		require.NoError(t, config.SaveSettings(paths.Settings, *settings))
	}

	ta := &testAgent{
		clip:   newFakeClipboard(),
		hotkey: newFakeHotkey(),
		hook:   newFakeHook(),
		paths:  paths,
		clock:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	a, err := NewAgent(cfg, paths, Deps{Clipboard: ta.clip, Hotkey: ta.hotkey, Hook: ta.hook, DB: db})
	require.NoError(t, err)
	a.now = func() time.Time { return ta.clock }
	ta.Agent = a
	return ta
}

func mustKey(t *testing.T, s string) config.Key {
	t.Helper()
	k, err := config.ParseKey(s)
	require.NoError(t, err)
	return k
}

func (t *testAgent) press(k config.Key) bool {
	t.advance(10 * time.Millisecond)
	return t.ctrl.HandleKey(overlay.KeyEvent{Key: k}, t.clock)
}

func TestCaptureSameTextTwice(t *testing.T) {
	a := newTestAgent(t, nil, nil)

	a.capture("hello")
	first, _ := a.store.At(0)

	a.capture("hello\r")
	require.Equal(t, 1, a.store.Len())
	second, _ := a.store.At(0)
	assert.Equal(t, "hello", second.Text)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.True(t, second.CapturedAt.After(first.CapturedAt))

	// Persisted
	reloaded := history.NewStore(a.paths.History, a.paths.Images).Load(10)
	require.Len(t, reloaded, 1)
	assert.Equal(t, first.ContentHash, reloaded[0].ContentHash)
}

func TestBlankTextNotCaptured(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.capture("   \n\t")
	assert.Equal(t, 0, a.store.Len())
}

func TestRetentionLimit(t *testing.T) {
	s := config.DefaultSettings()
	s.RetainedItemsLimit = 2
	a := newTestAgent(t, &s, nil)

	a.capture("a")
	a.capture("b")
	a.capture("c")

	assert.Equal(t, []string{"c", "b"}, a.texts())
	reloaded := history.NewStore(a.paths.History, a.paths.Images).Load(500)
	assert.Len(t, reloaded, 2)
}

func TestSelectDoesNotDuplicate(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.capture("a")
	a.capture("b")
	a.capture("c")
	require.Equal(t, []string{"c", "b", "a"}, a.texts())

	b := a.ctrl.Bindings()
	a.advance(time.Second)
	require.True(t, a.ctrl.Toggle(a.clock))
	assert.Equal(t, 0, a.ctrl.Selected())

	assert.True(t, a.press(b.ScrollDown))
	assert.Equal(t, 1, a.ctrl.Selected())
	assert.True(t, a.press(b.Select))

	assert.Equal(t, []string{"b"}, a.clip.writes)
	assert.Equal(t, overlay.Hidden, a.ctrl.State())
	assert.Equal(t, "Copied selected entry.", a.status)
	armed, ok := a.gate.Armed()
	require.True(t, ok)
	assert.Equal(t, history.HashText("b"), armed)
	assert.Equal(t, []string{"b", "c", "a"}, a.texts())

	// The clipboard notification caused by our own write is swallowed
	a.advance(time.Second)
	a.handleClipboardChange()
	assert.Equal(t, []string{"b", "c", "a"}, a.texts())
	_, ok = a.gate.Armed()
	assert.False(t, ok)
}

func TestCopyFailureKeepsOverlay(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.capture("a")
	a.clip.failing = true

	a.advance(time.Second)
	a.ctrl.Toggle(a.clock)
	assert.True(t, a.press(a.ctrl.Bindings().Select))

	assert.Equal(t, overlay.Visible, a.ctrl.State())
	assert.Equal(t, "Selected item is unavailable.", a.status)
	_, armed := a.gate.Armed()
	assert.False(t, armed)
}

func TestCopyMissingImage(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.capture("text")

	path := filepath.Join(a.paths.Images, "image_gone.png")
	a.store.PromoteOrInsert(history.NewImageItem("image:gone", history.ImageRef{Path: path, Width: 1, Height: 1}, a.clock))

	assert.False(t, a.CopySelected(0))
	assert.Equal(t, "Selected item is unavailable.", a.status)
	assert.Empty(t, a.clip.images)
}

func TestCopyImage(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	png := []byte("\x89PNG fake")
	path, err := a.store.WriteBlob("image:abc", png)
	require.NoError(t, err)
	a.store.PromoteOrInsert(history.NewImageItem("image:abc", history.ImageRef{Path: path, Width: 2, Height: 2}, a.clock))
	a.capture("newer")

	require.True(t, a.CopySelected(1))
	assert.Equal(t, [][]byte{png}, a.clip.images)
	assert.Equal(t, "Copied selected image.", a.status)
	first, _ := a.store.At(0)
	assert.Equal(t, "image:abc", first.ContentHash)
}

func TestSelectionFollowsItemAcrossCapture(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.capture("a")
	a.capture("b")

	a.advance(time.Second)
	a.ctrl.Toggle(a.clock)
	a.press(a.ctrl.Bindings().ScrollDown)
	require.Equal(t, 1, a.ctrl.Selected())

	a.capture("c")
	assert.Equal(t, 2, a.ctrl.Selected())
	it, _ := a.store.At(a.ctrl.Selected())
	assert.Equal(t, "a", it.Text)
}

func TestInvalidHotkeyKeepsPrior(t *testing.T) {
	a := newTestAgent(t, nil, nil)

	form := config.FormFromSettings(config.DefaultSettings())
	form.ActivationHotkey = "Ctrl+Alt+V"
	require.NoError(t, a.applySettings(web.SettingsRequest{SettingsForm: form}))
	require.Len(t, a.hotkey.registered, 1)
	assert.Equal(t, "Ctrl+Alt+V", a.hotkey.registered[0].String())

	form.ActivationHotkey = "Q"
	form.RetainedItemsLimit = "3"
	err := a.applySettings(web.SettingsRequest{SettingsForm: form})
	var fe *config.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Invalid activation hotkey. Example: CapsLock+D", a.status)

	// Nothing committed, nothing re-registered
	assert.Len(t, a.hotkey.registered, 1)
	assert.Equal(t, "Ctrl+Alt+V", a.ctrl.Bindings().Activation.String())
	assert.Equal(t, 15, a.settings.RetainedItemsLimit)
	assert.Equal(t, "Ctrl+Alt+V", config.LoadSettings(a.paths.Settings).ActivationHotkey)
}

func TestSaveSettingsAppliesEverything(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	for _, s := range []string{"a", "b", "c", "d"} {
		a.capture(s)
	}

	form := config.FormFromSettings(config.DefaultSettings())
	form.RetainedItemsLimit = "2"
	form.AutoHideSeconds = "9"
	form.SelectKey = "Enter"
	require.NoError(t, a.applySettings(web.SettingsRequest{SettingsForm: form}))

	assert.Equal(t, "Saved settings. Retaining 2 items. Auto-hide: 9s.", a.status)
	assert.Equal(t, []string{"d", "c"}, a.texts())
	assert.Equal(t, config.KeyEnter, a.ctrl.Bindings().Select)
	assert.Equal(t, 9, a.ctrl.Snapshot().AutoHideSeconds)
	assert.Equal(t, 2, config.LoadSettings(a.paths.Settings).RetainedItemsLimit)
}

func TestHotkeyUnavailable(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.hotkey.refuse["Ctrl+Alt+V"] = true

	form := config.FormFromSettings(config.DefaultSettings())
	form.ActivationHotkey = "Ctrl+Alt+V"
	a.registerHotkey(config.Hotkey{Modifiers: config.ModCtrl | config.ModAlt, Key: mustKey(t, "V")})
	assert.Equal(t, "Hotkey unavailable. Pick another combination.", a.status)

	// Saving still succeeds; the status is then replaced by the save summary
	require.NoError(t, a.applySettings(web.SettingsRequest{SettingsForm: form}))
	assert.Empty(t, a.hotkey.registered)
}

func TestCapsLockHotkeyUsesHook(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.registerHotkey(config.DefaultActivationHotkey)
	assert.Empty(t, a.hotkey.registered)
	assert.Equal(t, 1, a.hotkey.unregistered)

	// The hook path toggles
	a.advance(time.Second)
	consumed := a.ctrl.HandleKey(overlay.KeyEvent{Key: mustKey(t, "D"), Modifiers: config.ModCapsLock}, a.clock)
	assert.True(t, consumed)
	assert.True(t, a.ctrl.Visible())
}

func TestSettingsSaveKeyCommitsDraft(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	b := a.ctrl.Bindings()

	form := config.FormFromSettings(config.DefaultSettings())
	form.AutoHideSeconds = "30"
	a.draft = &web.SettingsRequest{SettingsForm: form}

	a.advance(time.Second)
	a.ctrl.Toggle(a.clock)
	a.press(b.OpenSettings)
	require.Equal(t, overlay.VisibleWithSettingsOpen, a.ctrl.State())

	assert.True(t, a.press(b.SettingsSave))
	assert.Equal(t, 30, a.settings.AutoHideSeconds)
	assert.Nil(t, a.draft)

	assert.True(t, a.press(config.KeyEscape))
	assert.Equal(t, overlay.Visible, a.ctrl.State())
}

func TestUpdateKeyWithoutUpdater(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.CheckForUpdates()
	assert.Equal(t, "Updates are not configured.", a.updateStatus)
}

func TestActivityRecorded(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "membrain.db"))
	require.NoError(t, err)
	defer db.Close()

	a := newTestAgent(t, nil, db)
	a.capture("a")
	a.capture("b")
	a.capture("a")
	require.True(t, a.CopySelected(1))
	a.handleClipboardChange()

	stats, err := db.GetOverallStats(1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Captures)
	assert.Equal(t, 1, stats.Promotes)
	assert.Equal(t, 1, stats.Copies)
	assert.Equal(t, 1, stats.Suppressed)
}

func TestRunServesBackend(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	a.clip.set("from run loop")
	a.clip.changes <- struct{}{}

	require.Eventually(t, func() bool { return len(a.History()) == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.True(t, a.Toggle())
	assert.Equal(t, "visible", a.State().StateName)
	assert.ErrorIs(t, a.Select(5), web.ErrIndexOutOfRange)
	require.NoError(t, a.Select(0))
	assert.Equal(t, []string{"from run loop"}, a.clip.writes)

	cancel()
	require.NoError(t, <-done)

	// Shutdown released the hotkey and the hook, and backend calls no
	// longer block
	assert.GreaterOrEqual(t, a.hotkey.unregistered, 1)
	assert.Equal(t, 1, a.hook.stops)
	assert.Nil(t, a.History())
	_, err := os.Stat(a.paths.History)
	assert.NoError(t, err)
}

func TestHookGrabFollowsVisibility(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.capture("a")

	a.advance(time.Second)
	a.toggle()
	b := a.ctrl.Bindings()
	a.press(b.OpenSettings)
	a.press(b.SettingsBack)
	a.press(b.Hide)
	assert.Equal(t, []bool{true, false}, a.hook.grabs)

	// Unnamed keys are swallowed only while the overlay is up
	assert.False(t, a.press(config.KeyNone))
	a.advance(time.Second)
	a.toggle()
	assert.True(t, a.press(config.KeyNone))
	a.press(b.OpenSettings)
	assert.True(t, a.press(config.KeyNone))
}

func TestHookKeysAnsweredByRunLoop(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.now = time.Now
	a.hook.stopErr = errors.New("unhook failed")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	send := func(k config.Key, mods config.Modifier) bool {
		reply := make(chan bool, 1)
		a.hook.keys <- platform.KeyDown{Key: k, Modifiers: mods, Consumed: reply}
		return <-reply
	}

	assert.False(t, send(config.KeyNone, 0))
	assert.True(t, send(mustKey(t, "D"), config.ModCapsLock))
	assert.Equal(t, "visible", a.State().StateName)
	assert.True(t, send(config.KeyNone, config.ModShift))

	cancel()
	// A failing unhook is reported, not fatal
	require.NoError(t, <-done)
	assert.Equal(t, 1, a.hook.stops)
}

func TestRestartRelaunchesAfterRun(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.now = time.Now

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	require.Eventually(t, func() bool { return a.State().StateName == "hidden" }, 2*time.Second, 10*time.Millisecond)

	launched := 0
	a.onRestart(func() error { launched++; return nil })
	a.onRestart(func() error { launched += 10; return nil })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop for the update")
	}

	// Resources were released before the new binary may start
	assert.GreaterOrEqual(t, a.hotkey.unregistered, 1)
	assert.Equal(t, 1, a.hook.stops)
	assert.Equal(t, 0, launched)

	relaunch := a.PendingRelaunch()
	require.NotNil(t, relaunch)
	require.NoError(t, relaunch())
	assert.Equal(t, 1, launched)
}

func TestCloseHidesOverlay(t *testing.T) {
	a := newTestAgent(t, nil, nil)
	a.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.True(t, a.Toggle())
	require.Equal(t, "visible", a.State().StateName)
	a.Close()
	assert.Equal(t, "hidden", a.State().StateName)

	cancel()
	require.NoError(t, <-done)
}
