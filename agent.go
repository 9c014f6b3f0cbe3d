package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"markestedt/membrain/capture"
	"markestedt/membrain/config"
	"markestedt/membrain/history"
	"markestedt/membrain/overlay"
	"markestedt/membrain/platform"
	"markestedt/membrain/storage"
	"markestedt/membrain/systray"
	"markestedt/membrain/update"
	"markestedt/membrain/web"
)

// tickInterval drives the auto-hide check
const tickInterval = 350 * time.Millisecond

var errCopyFailed = errors.New("selected item is unavailable")

// Deps are the collaborators of an Agent. Nil members disable the feature
// they back, except Clipboard which is required.
type Deps struct {
	Clipboard platform.Clipboard
	Hook      platform.KeyboardHook
	Hotkey    platform.Hotkey
	DB        *storage.DB
	Tray      *systray.Manager

	// UpdateStore and UpdateFactory enable the update service.
	UpdateStore   *update.SettingsStore
	UpdateFactory update.Factory
	Getenv        func(string) string
}

// Agent owns the history, the overlay controller and the clipboard. All
// state is touched only from the Run goroutine; other goroutines post
// closures onto it.
type Agent struct {
	cfg   *config.Config
	paths config.Paths

	clipboard platform.Clipboard
	hook      platform.KeyboardHook
	hotkey    platform.Hotkey
	updates   *update.Service
	tray      *systray.Manager
	web       *web.Server

	store    *history.Store
	activity *activity
	gate     *capture.Gate
	watcher  *capture.Watcher
	ctrl     *overlay.Controller
	settings config.Settings
	draft    *web.SettingsRequest

	status       string
	updateStatus string
	relaunch     func() error

	now   func() time.Time
	ctx   context.Context
	posts chan func()
	quit  chan struct{}
	done  chan struct{}

	doneOnce sync.Once
}

// NewAgent loads settings and history and wires the collaborators. Nothing
// is started until Run.
func NewAgent(cfg *config.Config, paths config.Paths, deps Deps) (*Agent, error) {
	if deps.Clipboard == nil {
		return nil, fmt.Errorf("clipboard is required")
	}
	if err := paths.Ensure(); err != nil {
		return nil, err
	}

	settings := config.LoadSettings(paths.Settings)
	store := history.NewStore(paths.History, paths.Images)
	store.Load(settings.RetainedItemsLimit)

	a := &Agent{
		cfg:       cfg,
		paths:     paths,
		clipboard: deps.Clipboard,
		hook:      deps.Hook,
		hotkey:    deps.Hotkey,
		tray:      deps.Tray,
		store:     store,
		gate:      &capture.Gate{},
		settings:  settings,
		now:       time.Now,
		ctx:       context.Background(),
		posts:     make(chan func(), 16),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	a.activity = newActivity(store, deps.DB)
	a.watcher = capture.NewWatcher(deps.Clipboard, a.activity, a.gate)
	a.watcher.SetClock(func() time.Time { return a.now() })
	a.ctrl = overlay.NewController(a, store, settings.Bindings(), settings.AutoHideSeconds)

	if deps.UpdateStore != nil && deps.UpdateFactory != nil {
		a.updates = update.NewService(update.ServiceConfig{
			Store:     deps.UpdateStore,
			Factory:   deps.UpdateFactory,
			Getenv:    deps.Getenv,
			OnStatus:  a.onUpdateStatus,
			OnRestart: a.onRestart,
		})
	}

	if cfg.Web.Enabled {
		a.web = web.NewServer(a, deps.DB, cfg.Web.Addr)
	}

	slog.Info("History loaded", "items", store.Len(), "path", paths.History)
	return a, nil
}

// WebURL returns the dashboard URL, or "" when the web server is disabled.
func (a *Agent) WebURL() string {
	if a.web == nil {
		return ""
	}
	return a.web.URL()
}

// Run starts the event loop and blocks until ctx is done or the user exits.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx
	defer a.closeDone()

	changes, err := a.clipboard.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch clipboard: %w", err)
	}

	var keys <-chan platform.KeyDown
	if a.hook != nil {
		keys, err = a.hook.Start(ctx)
		if errors.Is(err, platform.ErrUnsupported) {
			slog.Info("Keyboard hook unavailable; overlay keys only work through the dashboard")
		} else if err != nil {
			slog.Warn("Failed to start keyboard hook", "error", err)
		}
	}

	var pressed <-chan struct{}
	if a.hotkey != nil {
		pressed = a.hotkey.Pressed()
	}
	a.registerHotkey(a.ctrl.Bindings().Activation)

	var intents <-chan systray.Intent
	if a.tray != nil {
		intents = a.tray.Intents()
	}

	var workers sync.WaitGroup
	if a.web != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := a.web.Run(ctx); err != nil {
				slog.Error("Web server stopped", "error", err)
			}
		}()
	}

	if a.updates != nil {
		interval := time.Duration(a.cfg.Update.IntervalHours) * time.Hour
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.updates.Run(ctx, interval, a.cfg.Update.CheckOnStartup)
		}()
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// The web listener and the OS registrations are released before Run
	// returns.
	defer func() {
		a.shutdown()
		a.closeDone()
		cancel()
		workers.Wait()
	}()

	slog.Info("Membrain started",
		"hotkey", a.ctrl.Bindings().Activation.String(),
		"items", a.store.Len(),
		"web", a.WebURL(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-a.quit:
			return nil

		case _, ok := <-changes:
			if !ok {
				return fmt.Errorf("clipboard watch ended")
			}
			a.handleClipboardChange()

		case <-pressed:
			a.toggle()

		case kd, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			consumed := a.ctrl.HandleKey(overlay.KeyEvent{Key: kd.Key, Modifiers: kd.Modifiers}, a.now())
			select {
			case kd.Consumed <- consumed:
			default:
			}
			a.publishState()

		case intent := <-intents:
			switch intent {
			case systray.IntentToggle:
				a.toggle()
			case systray.IntentExit:
				slog.Info("Exit requested")
				return nil
			}

		case <-ticker.C:
			if a.ctrl.Tick(a.now()) {
				slog.Debug("Overlay auto-hidden")
			}

		case fn := <-a.posts:
			fn()
		}
	}
}

// shutdown releases OS registrations and flushes history. Failures are
// logged; none of them abort the remaining steps.
func (a *Agent) shutdown() {
	a.ctrl.BeginShutdown()
	a.ctrl.CloseRequested()

	if a.hotkey != nil {
		if err := a.hotkey.Unregister(); err != nil {
			slog.Warn("Failed to unregister hotkey", "error", err)
		}
	}
	if a.hook != nil {
		if err := a.hook.Stop(); err != nil {
			slog.Warn("Failed to remove keyboard hook", "error", err)
		}
	}
	if err := a.store.TrimAndPersist(a.settings.RetainedItemsLimit); err != nil {
		slog.Warn("Failed to persist history on shutdown", "error", err)
	}
	slog.Info("Membrain stopped")
}

// post runs fn on the loop goroutine and waits for it. It returns false if
// the loop has stopped.
func (a *Agent) post(fn func()) bool {
	ran := make(chan struct{})
	select {
	case a.posts <- func() { fn(); close(ran) }:
	case <-a.done:
		return false
	}
	select {
	case <-ran:
		return true
	case <-a.done:
		return false
	}
}

// closeDone releases callers blocked in post.
func (a *Agent) closeDone() {
	a.doneOnce.Do(func() { close(a.done) })
}

// postAsync queues fn without waiting. Used by background workers.
func (a *Agent) postAsync(fn func()) {
	select {
	case a.posts <- fn:
	case <-a.done:
	}
}

func (a *Agent) toggle() {
	if !a.ctrl.Toggle(a.now()) {
		slog.Debug("Toggle debounced")
	}
	a.publishState()
}

// handleClipboardChange captures the clipboard, keeps the overlay cursor on
// the same item, and persists when something was captured.
func (a *Agent) handleClipboardChange() {
	var selectedHash string
	if it, ok := a.store.At(a.ctrl.Selected()); ok && a.ctrl.Visible() {
		selectedHash = it.ContentHash
	}
	armed, _ := a.gate.Armed()

	res := a.watcher.HandleChange()
	if res.Suppressed > 0 {
		a.activity.record(storage.EventSuppress, armed, 0)
		slog.Debug("Suppressed self-authored clipboard change", "hash", armed)
	}
	if len(res.Captured) == 0 {
		return
	}

	for _, it := range res.Captured {
		slog.Debug("Captured clipboard item", "kind", it.Kind, "hash", it.ContentHash)
	}
	a.persistHistory()

	if selectedHash != "" {
		if i := a.store.FindIndexByHash(selectedHash); i >= 0 {
			a.ctrl.SetSelected(i)
		}
	}
	a.ctrl.HistoryChanged()
	a.publishHistory()
}

func (a *Agent) persistHistory() {
	if err := a.store.TrimAndPersist(a.settings.RetainedItemsLimit); err != nil {
		slog.Warn("Failed to persist history", "error", err)
	}
}

// Show implements overlay.Host.
func (a *Agent) Show() {
	slog.Debug("Overlay shown", "items", a.store.Len())
	if a.hook != nil {
		a.hook.SetGrab(true)
	}
	a.publishState()
}

// Hide implements overlay.Host.
func (a *Agent) Hide() {
	slog.Debug("Overlay hidden")
	if a.hook != nil {
		a.hook.SetGrab(false)
	}
	a.publishState()
}

// CopySelected implements overlay.Host. The item is promoted to the front
// with a fresh timestamp and the gate is armed so the resulting clipboard
// notification does not re-capture it.
func (a *Agent) CopySelected(index int) bool {
	item, ok := a.store.At(index)
	if !ok {
		a.setStatus("Selected item is unavailable.")
		return false
	}

	var png []byte
	if item.Kind == history.KindImage {
		if item.Image == nil {
			a.setStatus("Selected item is unavailable.")
			return false
		}
		data, err := os.ReadFile(item.Image.Path)
		if err != nil {
			slog.Warn("Selected image is missing", "path", item.Image.Path, "error", err)
			a.gate.Disarm()
			a.setStatus("Selected item is unavailable.")
			return false
		}
		png = data
	}

	item.CapturedAt = a.now().UTC()
	a.store.PromoteOrInsert(item)
	a.persistHistory()
	a.gate.Arm(item.ContentHash)

	var err error
	if item.Kind == history.KindImage {
		err = a.clipboard.WriteImage(png)
	} else {
		err = a.clipboard.WriteText(item.Text)
	}
	if err != nil {
		slog.Warn("Failed to write clipboard", "error", err)
		a.gate.Disarm()
		a.setStatus("Selected item is unavailable.")
		a.publishHistory()
		return false
	}

	a.activity.record(storage.EventCopy, item.ContentHash, a.activity.size(item))
	if item.Kind == history.KindImage {
		a.setStatus("Copied selected image.")
	} else {
		a.setStatus("Copied selected entry.")
	}
	a.publishHistory()
	return true
}

// SaveSettings implements overlay.Host: the settings save key commits the
// staged edits, or re-applies the current settings when nothing is staged.
func (a *Agent) SaveSettings() {
	req := web.SettingsRequest{SettingsForm: config.FormFromSettings(a.settings)}
	if a.draft != nil {
		req = *a.draft
	}
	if err := a.applySettings(req); err != nil {
		slog.Debug("Settings not saved", "error", err)
	}
}

// CheckForUpdates implements overlay.Host.
func (a *Agent) CheckForUpdates() {
	if a.updates == nil {
		a.setUpdateStatus("Updates are not configured.")
		return
	}
	if a.draft != nil && a.draft.Update != nil {
		a.updates.Stage(*a.draft.Update)
	}
	ctx := a.ctx
	go func() {
		if err := a.updates.Check(ctx, true); errors.Is(err, update.ErrBusy) {
			slog.Debug("Update check already running")
		}
	}()
}

// applySettings validates and commits a settings form. Validation is
// all-or-nothing: on failure nothing changes and the field error is
// reported as the status.
func (a *Agent) applySettings(req web.SettingsRequest) error {
	s, err := req.SettingsForm.Validate()
	if err != nil {
		var fe *config.FieldError
		if errors.As(err, &fe) {
			a.setStatus(fe.Message)
		}
		return err
	}

	if err := config.SaveSettings(a.paths.Settings, s); err != nil {
		a.setStatus("Failed to save settings.")
		return err
	}

	a.settings = s
	b := s.Bindings()
	a.ctrl.SetBindings(b)
	a.ctrl.SetAutoHide(s.AutoHideSeconds)
	a.registerHotkey(b.Activation)

	evicted := a.store.Trim(s.RetainedItemsLimit)
	a.persistHistory()
	a.ctrl.HistoryChanged()
	if len(evicted) > 0 {
		slog.Info("Trimmed history to new limit", "evicted", len(evicted), "limit", s.RetainedItemsLimit)
	}

	if a.updates != nil {
		if req.Update != nil {
			a.updates.Stage(*req.Update)
		}
		if err := a.updates.ApplyStaged(); err != nil {
			slog.Warn("Failed to save update settings", "error", err)
		}
	}

	a.draft = nil
	a.ctrl.Interact(a.now())
	a.setStatus(fmt.Sprintf("Saved settings. Retaining %d items. Auto-hide: %ds.", s.RetainedItemsLimit, s.AutoHideSeconds))
	a.publishHistory()
	return nil
}

// registerHotkey arms the activation hotkey. CapsLock combinations cannot
// be registered with the OS and are matched by the keyboard hook instead.
func (a *Agent) registerHotkey(hk config.Hotkey) {
	if a.hotkey == nil {
		return
	}
	if hk.UsesCapsLock() {
		if err := a.hotkey.Unregister(); err != nil {
			slog.Warn("Failed to unregister hotkey", "error", err)
		}
		if a.hook == nil {
			slog.Warn("CapsLock hotkey needs the keyboard hook", "hotkey", hk.String())
		}
		return
	}
	if err := a.hotkey.Register(hk); err != nil {
		slog.Warn("Failed to register hotkey", "hotkey", hk.String(), "error", err)
		a.setStatus("Hotkey unavailable. Pick another combination.")
		return
	}
	slog.Debug("Hotkey registered", "hotkey", hk.String())
}

func (a *Agent) setStatus(s string) {
	a.status = s
	slog.Info(s)
	if a.web != nil {
		a.web.BroadcastStatus(s)
	}
}

func (a *Agent) setUpdateStatus(s string) {
	a.updateStatus = s
	slog.Info(s)
	a.publishState()
}

func (a *Agent) stateView() web.StateView {
	return web.StateView{
		Snapshot:     a.ctrl.Snapshot(),
		Status:       a.status,
		UpdateStatus: a.updateStatus,
	}
}

func (a *Agent) publishState() {
	if a.web != nil {
		a.web.BroadcastState(a.stateView())
	}
}

func (a *Agent) publishHistory() {
	if a.web != nil {
		a.web.BroadcastHistory(a.store.Items())
		a.web.BroadcastState(a.stateView())
	}
}

// onUpdateStatus and onRestart are handed to the update service, which
// calls them from its own goroutine.
func (a *Agent) onUpdateStatus(s string) {
	a.postAsync(func() { a.setUpdateStatus(s) })
}

// onRestart stops the loop and keeps relaunch for the caller of Run, which
// starts the new binary once this process has released its resources.
func (a *Agent) onRestart(relaunch func() error) {
	a.postAsync(func() {
		if a.relaunch != nil {
			return
		}
		slog.Info("Stopping to apply update")
		a.relaunch = relaunch
		close(a.quit)
	})
}

// PendingRelaunch returns the updated binary's launcher after Run stopped
// for an update, or nil. Call it only after Run has returned.
func (a *Agent) PendingRelaunch() func() error {
	return a.relaunch
}

// web.Backend. Each call hops onto the loop goroutine.

func (a *Agent) History() []history.Item {
	var items []history.Item
	a.post(func() { items = a.store.Items() })
	return items
}

func (a *Agent) Item(index int) (history.Item, bool) {
	var (
		item history.Item
		ok   bool
	)
	a.post(func() { item, ok = a.store.At(index) })
	return item, ok
}

func (a *Agent) State() web.StateView {
	var v web.StateView
	a.post(func() { v = a.stateView() })
	return v
}

func (a *Agent) Settings() web.SettingsView {
	var v web.SettingsView
	a.post(func() {
		b := a.ctrl.Bindings()
		v = web.SettingsView{
			Form:          config.FormFromSettings(a.settings),
			Hints:         overlay.Hints(b),
			SettingsHints: overlay.SettingsHints(b),
			Keys:          config.KnownKeys(),
		}
	})
	if a.updates != nil {
		us := a.updates.Settings()
		v.Update = web.UpdateView{
			Source:            a.updates.SourceLabel(),
			Configured:        a.updates.Configured(),
			HasToken:          us.Token != "",
			IncludePrerelease: us.IncludePrerelease,
		}
	}
	return v
}

func (a *Agent) CommitSettings(req web.SettingsRequest) error {
	var err error
	if !a.post(func() { err = a.applySettings(req) }) {
		return fmt.Errorf("agent stopped")
	}
	return err
}

func (a *Agent) StageSettings(req web.SettingsRequest) {
	a.post(func() { a.draft = &req })
}

func (a *Agent) Toggle() bool {
	var toggled bool
	a.post(func() {
		toggled = a.ctrl.Toggle(a.now())
		a.publishState()
	})
	return toggled
}

// Close handles a dashboard window close. Unless the agent is shutting
// down this only hides the overlay.
func (a *Agent) Close() {
	a.post(func() {
		if a.ctrl.CloseRequested() {
			slog.Debug("Close requested during shutdown")
		}
		a.publishState()
	})
}

func (a *Agent) Select(index int) error {
	var err error
	a.post(func() {
		if index < 0 || index >= a.store.Len() {
			err = web.ErrIndexOutOfRange
			return
		}
		if !a.ctrl.SelectIndex(index, a.now()) {
			err = errCopyFailed
		}
		a.publishState()
	})
	return err
}
