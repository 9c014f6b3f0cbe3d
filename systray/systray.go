package systray

import (
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
)

// Intent is a user request raised from the tray menu.
type Intent int

const (
	IntentToggle Intent = iota
	IntentExit
)

func (i Intent) String() string {
	switch i {
	case IntentToggle:
		return "toggle"
	case IntentExit:
		return "exit"
	}
	return "unknown"
}

// Manager owns the system tray icon and menu
type Manager struct {
	dashboardURL string
	iconData     []byte
	intents      chan Intent
	stopped      chan struct{}
	stopOnce     sync.Once
}

// NewManager creates a tray manager. An empty dashboardURL hides the
// dashboard menu item.
func NewManager(dashboardURL string, iconData []byte) *Manager {
	return &Manager{
		dashboardURL: dashboardURL,
		iconData:     iconData,
		intents:      make(chan Intent, 4),
		stopped:      make(chan struct{}),
	}
}

// Intents delivers menu requests to the caller's event loop
func (m *Manager) Intents() <-chan Intent {
	return m.intents
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Stop stops the system tray
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
	systray.Quit()
}

func (m *Manager) onReady() {
	if len(m.iconData) > 0 {
		systray.SetIcon(m.iconData)
	}

	systray.SetTitle("Membrain")
	systray.SetTooltip("Membrain")

	mToggle := systray.AddMenuItem("Toggle", "Show or hide the clipboard strip")
	var dashboardClicked <-chan struct{}
	if m.dashboardURL != "" {
		dashboardClicked = systray.AddMenuItem("Open Dashboard", "Open the web dashboard").ClickedCh
	}
	systray.AddSeparator()
	mExit := systray.AddMenuItem("Exit", "Exit Membrain")

	go func() {
		for {
			select {
			case <-mToggle.ClickedCh:
				m.send(IntentToggle)
			case <-dashboardClicked:
				openBrowser(m.dashboardURL)
			case <-mExit.ClickedCh:
				slog.Info("User requested exit from system tray")
				m.send(IntentExit)
				return
			}
		}
	}()
}

// send drops a toggle when the loop is not keeping up. Exit waits for the
// loop until the tray is stopped.
func (m *Manager) send(i Intent) {
	if i == IntentExit {
		select {
		case m.intents <- i:
		case <-m.stopped:
			slog.Warn("Tray stopped before exit was delivered")
		}
		return
	}
	select {
	case m.intents <- i:
	default:
		slog.Warn("Dropped tray intent", "intent", i)
	}
}

func (m *Manager) onExit() {
	slog.Info("System tray exited")
}

func openBrowser(url string) {
	slog.Info("Opening dashboard", "url", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		slog.Error("Unsupported platform for opening browser", "platform", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to open dashboard", "error", err)
	}
}
