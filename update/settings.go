// Package update checks a GitHub release feed and replaces the running
// binary when a newer version is published.
package update

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"markestedt/membrain/fileutil"
	"markestedt/membrain/secrets"
)

// Environment overrides, consulted when nothing is stored.
const (
	EnvRepo       = "MEMBRAIN_GITHUB_REPO"
	EnvToken      = "MEMBRAIN_GITHUB_TOKEN"
	EnvUpdateURL  = "MEMBRAIN_UPDATE_URL"
	EnvPrerelease = "MEMBRAIN_PRERELEASE"
)

// Settings is the user-facing update configuration. RepoURL and Token live
// in the secret store; only IncludePrerelease is written to JSON.
type Settings struct {
	RepoURL           string `json:"-"`
	Token             string `json:"-"`
	IncludePrerelease bool   `json:"includePrerelease"`
}

type storedSettings struct {
	RepoURL           string `json:"repoUrl,omitempty"`
	IncludePrerelease bool   `json:"includePrerelease"`
}

// SettingsStore persists Settings across update-settings.json and a
// secrets.Store.
type SettingsStore struct {
	path    string
	secrets secrets.Store
}

func NewSettingsStore(path string, store secrets.Store) *SettingsStore {
	return &SettingsStore{path: path, secrets: store}
}

// Load reads the settings. A repo URL left in the JSON file by older builds
// is moved into the secret store when the store has none, and dropped from
// the file once the store holds a value.
func (s *SettingsStore) Load() Settings {
	var stored storedSettings
	if data, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(data, &stored); err != nil {
			slog.Warn("Ignoring corrupt update settings", "path", s.path, "error", err)
			stored = storedSettings{}
		}
	}

	repo := s.secret(secrets.RepoURL)
	if legacy := strings.TrimSpace(stored.RepoURL); legacy != "" {
		migrated := repo != ""
		if !migrated {
			repo = legacy
			if err := s.secrets.Put(secrets.RepoURL, repo); err != nil {
				slog.Warn("Failed to migrate update repo URL", "error", err)
			} else {
				migrated = true
			}
		}
		if migrated {
			s.scrubLegacy(stored)
		}
	}

	return Settings{
		RepoURL:           repo,
		Token:             s.secret(secrets.Token),
		IncludePrerelease: stored.IncludePrerelease,
	}
}

// Save writes the secrets and the JSON file. An empty RepoURL or Token
// removes the stored value.
func (s *SettingsStore) Save(settings Settings) error {
	if err := s.secrets.Put(secrets.RepoURL, settings.RepoURL); err != nil {
		return fmt.Errorf("failed to store repo URL: %w", err)
	}
	if err := s.secrets.Put(secrets.Token, settings.Token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	data, err := json.MarshalIndent(storedSettings{IncludePrerelease: settings.IncludePrerelease}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode update settings: %w", err)
	}
	return fileutil.WriteFileAtomic(s.path, data, 0644)
}

// scrubLegacy rewrites the JSON file without the plain-text repo URL.
func (s *SettingsStore) scrubLegacy(stored storedSettings) {
	stored.RepoURL = ""
	data, err := json.MarshalIndent(stored, "", "  ")
	if err == nil {
		err = fileutil.WriteFileAtomic(s.path, data, 0644)
	}
	if err != nil {
		slog.Warn("Failed to remove legacy repo URL from update settings", "path", s.path, "error", err)
	}
}

func (s *SettingsStore) secret(name string) string {
	v, err := s.secrets.Get(name)
	if err != nil {
		if !errors.Is(err, secrets.ErrNotFound) {
			slog.Warn("Failed to read secret", "name", name, "error", err)
		}
		return ""
	}
	return strings.TrimSpace(v)
}

// Source is the resolved release feed.
type Source struct {
	Label         string
	Owner         string
	Repo          string
	EnterpriseURL string
	Token         string
	Prerelease    bool
}

// Configured reports whether a feed is available.
func (s Source) Configured() bool {
	return s.Owner != "" && s.Repo != ""
}

// Resolve merges stored settings with environment overrides. Stored values
// win; MEMBRAIN_UPDATE_URL is used only when no repo is set at all.
func Resolve(settings Settings, getenv func(string) string) Source {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	repo := settings.RepoURL
	if repo == "" {
		repo = env(EnvRepo)
	}
	if repo == "" {
		repo = env(EnvUpdateURL)
	}
	token := settings.Token
	if token == "" {
		token = env(EnvToken)
	}
	prerelease := settings.IncludePrerelease || strings.EqualFold(env(EnvPrerelease), "true")

	if repo == "" {
		return Source{}
	}
	owner, name, enterprise, err := ParseRepoURL(repo)
	if err != nil {
		slog.Warn("Ignoring invalid update repo", "repo", repo, "error", err)
		return Source{}
	}
	return Source{
		Label:         repo,
		Owner:         owner,
		Repo:          name,
		EnterpriseURL: enterprise,
		Token:         token,
		Prerelease:    prerelease,
	}
}

// ParseRepoURL accepts "owner/repo" or a repository URL. Hosts other than
// github.com are treated as GitHub Enterprise and yield their API base URL.
func ParseRepoURL(raw string) (owner, repo, enterpriseURL string, err error) {
	raw = strings.TrimSpace(raw)
	path := raw
	if strings.Contains(raw, "://") {
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", "", "", fmt.Errorf("invalid repo URL: %w", perr)
		}
		host := strings.ToLower(u.Host)
		if host != "github.com" && host != "www.github.com" {
			enterpriseURL = u.Scheme + "://" + u.Host + "/api/v3/"
		}
		path = u.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("expected owner/repo, got %q", raw)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), enterpriseURL, nil
}
