package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/creativeprojects/go-selfupdate"
)

var (
	ErrNotConfigured = errors.New("updates are not configured")
	ErrNotInstalled  = errors.New("not an installed release build")
	ErrBusy          = errors.New("an update check is already running")
)

// Release identifies a published version.
type Release struct {
	Version string

	rel *selfupdate.Release
}

// Updater talks to a release feed. Check returns nil when the running
// version is current.
type Updater interface {
	IsInstalled() bool
	PendingRestart() *Release
	Check(ctx context.Context) (*Release, error)
	Download(ctx context.Context, r *Release, progress func(percent int)) error
	ApplyAndRestart(r *Release) error
}

// GitHubUpdater resolves releases from GitHub via go-selfupdate and replaces
// the running executable in place.
type GitHubUpdater struct {
	updater *selfupdate.Updater
	slug    selfupdate.RepositorySlug
	current string
	exe     string
	pending *Release
}

// NewGitHubUpdater builds an updater for src. current is the running version;
// "dev" builds are never considered installed.
func NewGitHubUpdater(src Source, current string) (*GitHubUpdater, error) {
	if !src.Configured() {
		return nil, ErrNotConfigured
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{
		APIToken:            src.Token,
		EnterpriseBaseURL:   src.EnterpriseURL,
		EnterpriseUploadURL: src.EnterpriseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create update source: %w", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source: source,
		Validator: &selfupdate.ChecksumValidator{
			UniqueFilename: "checksums.txt",
		},
		Prerelease: src.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	exe, err := executablePath()
	if err != nil {
		return nil, err
	}

	return &GitHubUpdater{
		updater: updater,
		slug:    selfupdate.NewRepositorySlug(src.Owner, src.Repo),
		current: current,
		exe:     exe,
	}, nil
}

func (u *GitHubUpdater) IsInstalled() bool {
	if u.current == "" || u.current == "dev" {
		return false
	}
	f, err := os.OpenFile(u.exe, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (u *GitHubUpdater) PendingRestart() *Release {
	return u.pending
}

func (u *GitHubUpdater) Check(ctx context.Context) (*Release, error) {
	latest, found, err := u.updater.DetectLatest(ctx, u.slug)
	if err != nil {
		return nil, err
	}
	if !found || !latest.GreaterThan(u.current) {
		return nil, nil
	}
	return &Release{Version: latest.Version(), rel: latest}, nil
}

// Download replaces the executable on disk. go-selfupdate reports no
// intermediate progress, so only 0 and 100 are emitted.
func (u *GitHubUpdater) Download(ctx context.Context, r *Release, progress func(int)) error {
	if r == nil || r.rel == nil {
		return fmt.Errorf("no release to download")
	}
	progress(0)
	if err := u.updater.UpdateTo(ctx, r.rel, u.exe); err != nil {
		return err
	}
	progress(100)
	u.pending = r
	return nil
}

// ApplyAndRestart launches the replaced binary. Call it once this process
// has released the port, the hotkey and the hook; the caller exits
// afterwards.
func (u *GitHubUpdater) ApplyAndRestart(r *Release) error {
	cmd := exec.Command(u.exe, "run")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to restart: %w", err)
	}
	return cmd.Process.Release()
}

func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.EvalSymlinks(exe)
}
