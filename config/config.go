package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const appDir = "membrain"

// Config is the application configuration stored in config.toml. Overlay
// behaviour that the user edits at runtime lives in Settings instead.
type Config struct {
	Data      DataConfig      `toml:"data"`
	Log       LogConfig       `toml:"log"`
	Clipboard ClipboardConfig `toml:"clipboard"`
	Web       WebConfig       `toml:"web"`
	Tray      TrayConfig      `toml:"tray"`
	Update    UpdateConfig    `toml:"update"`
}

type DataConfig struct {
	Dir string `toml:"dir"`
	// EventRetentionDays bounds the activity log; 0 keeps everything.
	EventRetentionDays int `toml:"event_retention_days"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File also writes logs to membrain.log in the data directory.
	File bool `toml:"file"`
}

type ClipboardConfig struct {
	PollIntervalMs int `toml:"poll_interval_ms"`
}

type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type TrayConfig struct {
	Enabled bool `toml:"enabled"`
}

type UpdateConfig struct {
	Repo           string `toml:"repo"`
	CheckOnStartup bool   `toml:"check_on_startup"`
	IntervalHours  int    `toml:"interval_hours"`
}

// Default configuration
func defaultConfig() *Config {
	dataDir := ""
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir = filepath.Join(dir, appDir)
	}

	return &Config{
		Data: DataConfig{
			Dir:                dataDir,
			EventRetentionDays: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Clipboard: ClipboardConfig{
			PollIntervalMs: 250,
		},
		Web: WebConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7733",
		},
		Tray: TrayConfig{
			Enabled: true,
		},
		Update: UpdateConfig{
			CheckOnStartup: true,
			IntervalHours:  4,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// ConfigPath returns the path to the configuration file
func ConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}

	configDir := filepath.Join(dir, appDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.toml"), nil
}

// Load loads the configuration from the TOML file at path, or from the
// default location when path is empty. A missing file is created with
// default values.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := defaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the TOML file
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Paths are the files kept in the data directory.
type Paths struct {
	Dir            string
	Settings       string
	History        string
	Images         string
	UpdateSettings string
	Secrets        string
	Database       string
}

// PathsFor lays out the data directory.
func PathsFor(dir string) Paths {
	return Paths{
		Dir:            dir,
		Settings:       filepath.Join(dir, "settings.json"),
		History:        filepath.Join(dir, "clipboard-history.json"),
		Images:         filepath.Join(dir, "clipboard-images"),
		UpdateSettings: filepath.Join(dir, "update-settings.json"),
		Secrets:        filepath.Join(dir, "secrets.bin"),
		Database:       filepath.Join(dir, "membrain.db"),
	}
}

// Ensure creates the data and image directories.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Dir, p.Images} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
