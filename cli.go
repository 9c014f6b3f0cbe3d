package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"markestedt/membrain/config"
	"markestedt/membrain/logging"
)

// bindViper layers MEMBRAIN_* environment variables over the command's
// flags. The TOML file itself is read by config.Load.
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix("MEMBRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addConfigFlags adds the flags shared by every command that reads the
// data directory.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config.toml (default: user config dir)")
	cmd.Flags().String("data-dir", "", "directory for history, images and settings")
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-format", "", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error")
}

// loadConfig reads config.toml and applies flag and env overrides.
func loadConfig(v *viper.Viper) (*config.Config, config.Paths, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, config.Paths{}, err
	}
	applyOverrides(cfg, v)

	if cfg.Data.Dir == "" {
		return nil, config.Paths{}, fmt.Errorf("no data directory; set [data] dir or --data-dir")
	}
	return cfg, config.PathsFor(cfg.Data.Dir), nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if s := v.GetString("data-dir"); s != "" {
		cfg.Data.Dir = s
	}
	if s := v.GetString("log-level"); s != "" {
		cfg.Log.Level = s
	}
	if s := v.GetString("log-format"); s != "" {
		cfg.Log.Format = s
	}
	if s := v.GetString("web-addr"); s != "" {
		cfg.Web.Addr = s
	}
	if v.IsSet("no-web") && v.GetBool("no-web") {
		cfg.Web.Enabled = false
	}
	if v.IsSet("no-tray") && v.GetBool("no-tray") {
		cfg.Tray.Enabled = false
	}
	if n := v.GetInt("poll-interval-ms"); n > 0 {
		cfg.Clipboard.PollIntervalMs = n
	}
}

// setupLogging configures slog from the resolved config. The returned
// func closes the log file, if any.
func setupLogging(cfg *config.Config) func() {
	format := logging.ParseFormat(cfg.Log.Format)
	level := logging.ParseLevel(cfg.Log.Level)

	if !cfg.Log.File {
		logging.Setup(os.Stderr, format, level)
		return func() {}
	}

	f, err := logging.OpenFile(cfg.Data.Dir)
	if err != nil {
		logging.Setup(os.Stderr, format, level)
		slog.Warn("Logging to stderr only", "error", err)
		return func() {}
	}
	logging.Setup(io.MultiWriter(os.Stderr, f), format, level)
	return func() { f.Close() }
}
