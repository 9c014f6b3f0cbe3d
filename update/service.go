package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	StartupDelay    = 8 * time.Second
	SilentThrottle  = 15 * time.Minute
	DefaultInterval = 4 * time.Hour
)

// Factory builds an Updater for a resolved feed.
type Factory func(Source) (Updater, error)

// Form carries update settings as entered by the user. Blank RepoURL or
// Token keep the stored value.
type Form struct {
	RepoURL           string `json:"repoUrl"`
	Token             string `json:"token"`
	IncludePrerelease bool   `json:"includePrerelease"`
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store     *SettingsStore
	Factory   Factory
	Getenv    func(string) string
	OnStatus  func(string)
	// OnRestart receives the launcher for the updated binary. The caller
	// must stop and release its resources before running it.
	OnRestart func(relaunch func() error)
}

// Service runs update checks. At most one check runs at a time and silent
// checks are throttled.
type Service struct {
	mu         sync.Mutex
	store      *SettingsStore
	factory    Factory
	getenv     func(string) string
	onStatus   func(string)
	onRestart  func(relaunch func() error)
	now        func() time.Time
	settings   Settings
	source     Source
	updater    Updater
	staged     *Form
	busy       bool
	lastSilent time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:     cfg.Store,
		factory:   cfg.Factory,
		getenv:    cfg.Getenv,
		onStatus:  cfg.OnStatus,
		onRestart: cfg.OnRestart,
		now:       time.Now,
	}
	if s.getenv == nil {
		s.getenv = os.Getenv
	}
	if s.onStatus == nil {
		s.onStatus = func(string) {}
	}
	if s.onRestart == nil {
		s.onRestart = func(func() error) {}
	}

	s.settings = s.store.Load()
	s.rebuild()
	return s
}

// Settings returns the stored settings.
func (s *Service) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SourceLabel names the active feed, or "" when not configured.
func (s *Service) SourceLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.Label
}

func (s *Service) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updater != nil
}

// Stage records form values to be applied by ApplyStaged or the next
// user-initiated check.
func (s *Service) Stage(f Form) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = &f
}

// ApplyStaged persists staged form values and rebuilds the updater.
func (s *Service) ApplyStaged() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyStagedLocked()
}

func (s *Service) applyStagedLocked() error {
	if s.staged == nil {
		return nil
	}
	f := *s.staged
	s.staged = nil

	next := Settings{
		RepoURL:           strings.TrimSpace(f.RepoURL),
		Token:             strings.TrimSpace(f.Token),
		IncludePrerelease: f.IncludePrerelease,
	}
	if next.RepoURL == "" {
		next.RepoURL = s.settings.RepoURL
	}
	if next.Token == "" {
		next.Token = s.settings.Token
	}

	s.settings = next
	err := s.store.Save(next)
	s.rebuild()
	return err
}

func (s *Service) rebuild() {
	s.source = Resolve(s.settings, s.getenv)
	s.updater = nil
	if !s.source.Configured() {
		return
	}
	u, err := s.factory(s.source)
	if err != nil {
		slog.Warn("Update source unavailable", "source", s.source.Label, "error", err)
		return
	}
	s.updater = u
}

// Check runs one update cycle. Silent checks are skipped within
// SilentThrottle of the previous one and report only progress.
func (s *Service) Check(ctx context.Context, userInitiated bool) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	now := s.now()
	if !userInitiated && !s.lastSilent.IsZero() && now.Sub(s.lastSilent) < SilentThrottle {
		s.mu.Unlock()
		return nil
	}
	if userInitiated {
		if err := s.applyStagedLocked(); err != nil {
			slog.Warn("Failed to save update settings", "error", err)
		}
	}
	updater := s.updater
	if updater == nil {
		s.mu.Unlock()
		if userInitiated {
			s.onStatus("Updates are not configured.")
		}
		return ErrNotConfigured
	}
	s.busy = true
	s.lastSilent = now
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	err := s.run(ctx, updater, userInitiated)
	if err != nil && !errors.Is(err, ErrNotInstalled) {
		slog.Warn("Update check failed", "error", err, "user", userInitiated)
		if userInitiated {
			s.onStatus("Update check failed: " + err.Error())
		}
	}
	return err
}

func (s *Service) run(ctx context.Context, u Updater, userInitiated bool) error {
	if !u.IsInstalled() {
		if userInitiated {
			s.onStatus("Install via a release build to enable updates.")
		}
		return ErrNotInstalled
	}

	if pending := u.PendingRestart(); pending != nil {
		s.onStatus("Applying downloaded update...")
		return s.restart(u, pending)
	}

	if userInitiated {
		s.onStatus("Checking for updates...")
	} else {
		s.onStatus("Checking updates in background...")
	}
	release, err := u.Check(ctx)
	if err != nil {
		return err
	}
	if release == nil {
		if userInitiated {
			s.onStatus("Up to date.")
		}
		return nil
	}

	slog.Info("Update available", "version", release.Version)
	s.onStatus("Downloading update...")
	err = u.Download(ctx, release, func(percent int) {
		s.onStatus(fmt.Sprintf("Downloading update... %d%%", percent))
	})
	if err != nil {
		return err
	}

	s.onStatus("Restarting to apply update...")
	return s.restart(u, release)
}

func (s *Service) restart(u Updater, r *Release) error {
	s.onRestart(func() error { return u.ApplyAndRestart(r) })
	return nil
}

// Run performs a silent check after StartupDelay and then every interval
// until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration, checkOnStartup bool) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if checkOnStartup {
		select {
		case <-ctx.Done():
			return
		case <-time.After(StartupDelay):
			s.Check(ctx, false)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx, false)
		}
	}
}
