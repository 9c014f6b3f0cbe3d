package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"markestedt/membrain/config"
	"markestedt/membrain/history"
	"markestedt/membrain/overlay"
	"markestedt/membrain/platform"
	"markestedt/membrain/secrets"
	"markestedt/membrain/storage"
	"markestedt/membrain/systray"
	"markestedt/membrain/update"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the clipboard agent",
		Long: `Watches the clipboard, keeps the history and serves the overlay.

The overlay is toggled with the activation hotkey, the tray menu, or
POST /api/overlay/toggle on the local web server.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runAgent(v) },
	}

	f := cmd.Flags()
	f.String("web-addr", "", "web server listen address (default 127.0.0.1:7733)")
	f.Bool("no-web", false, "disable the local web server")
	f.Bool("no-tray", false, "disable the system tray icon")
	f.Int("poll-interval-ms", 0, "clipboard poll interval where change events are unavailable")
	addConfigFlags(cmd)
	addLoggingFlags(cmd)

	return cmd
}

func runAgent(v *viper.Viper) error {
	relaunch, err := serveAgent(v)
	if err != nil || relaunch == nil {
		return err
	}
	// Every resource of this process has been released by now
	if err := relaunch(); err != nil {
		return fmt.Errorf("failed to start updated binary: %w", err)
	}
	return nil
}

// serveAgent runs the agent until it stops. It returns the updated
// binary's launcher when the agent stopped to apply an update.
func serveAgent(v *viper.Viper) (func() error, error) {
	cfg, paths, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	defer setupLogging(cfg)()

	clip, err := platform.NewClipboard(time.Duration(cfg.Clipboard.PollIntervalMs) * time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to open clipboard: %w", err)
	}

	if err := paths.Ensure(); err != nil {
		return nil, err
	}

	db, err := storage.Open(paths.Database)
	if err != nil {
		slog.Warn("Activity log disabled", "error", err)
		db = nil
	} else {
		defer db.Close()
		pruneEvents(db, cfg.Data.EventRetentionDays)
	}

	deps := Deps{
		Clipboard:   clip,
		Hook:        platform.NewKeyboardHook(),
		Hotkey:      platform.NewHotkey(),
		DB:          db,
		UpdateStore: update.NewSettingsStore(paths.UpdateSettings, secrets.NewDefault(paths.Secrets)),
		UpdateFactory: func(src update.Source) (update.Updater, error) {
			return update.NewGitHubUpdater(src, Version)
		},
		Getenv: func(key string) string {
			if s := os.Getenv(key); s != "" {
				return s
			}
			if key == update.EnvRepo {
				return cfg.Update.Repo
			}
			return ""
		},
	}
	if cfg.Tray.Enabled {
		dashboard := ""
		if cfg.Web.Enabled {
			dashboard = "http://" + cfg.Web.Addr
		}
		deps.Tray = systray.NewManager(dashboard, nil)
	}

	agent, err := NewAgent(cfg, paths, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if deps.Tray == nil {
		if err := agent.Run(ctx); err != nil {
			return nil, err
		}
		return agent.PendingRelaunch(), nil
	}

	// The tray owns the main thread until it quits
	errc := make(chan error, 1)
	go func() {
		errc <- agent.Run(ctx)
		deps.Tray.Stop()
	}()
	deps.Tray.Run()
	cancel()
	if err := <-errc; err != nil {
		return nil, err
	}
	return agent.PendingRelaunch(), nil
}

// pruneEvents drops activity older than the retention window.
func pruneEvents(db *storage.DB, days int) {
	if days <= 0 {
		return
	}
	n, err := db.PruneBefore(time.Now().AddDate(0, 0, -days))
	if err != nil {
		slog.Warn("Failed to prune activity log", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned activity log", "events", n, "retention_days", days)
	}
}

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "Print the persisted clipboard history",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runHistory(v) },
	}

	cmd.Flags().Int("limit", 0, "maximum entries to print (default: retained items limit)")
	addConfigFlags(cmd)

	return cmd
}

func runHistory(v *viper.Viper) error {
	cfg, paths, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer setupLogging(cfg)()

	limit := v.GetInt("limit")
	if limit <= 0 {
		limit = config.LoadSettings(paths.Settings).RetainedItemsLimit
	}
	items := history.NewStore(paths.History, paths.Images).Load(limit)

	if len(items) == 0 {
		fmt.Println("History is empty.")
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for i, it := range items {
		kind := it.Kind.String()
		if it.Kind == history.KindImage {
			kind = yellow(kind)
		}
		fmt.Printf("%s %-5s %s  %s\n",
			cyan(fmt.Sprintf("%3d", i)),
			kind,
			gray(it.CapturedAt.Local().Format("2006-01-02 15:04:05")),
			oneLine(it.Preview(), 72),
		)
	}
	return nil
}

// oneLine flattens s and truncates it to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

func newSettingsCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "settings",
		Short:   "Print the effective overlay settings and key bindings",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runSettings(v) },
	}
	addConfigFlags(cmd)
	return cmd
}

func runSettings(v *viper.Viper) error {
	cfg, paths, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer setupLogging(cfg)()

	s := config.LoadSettings(paths.Settings)
	b := s.Bindings()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("%s %s\n", bold("Settings:"), paths.Settings)
	fmt.Printf("  Activation hotkey:  %s\n", b.Activation)
	fmt.Printf("  Screen side:        %s\n", s.ScreenSide)
	fmt.Printf("  Retained items:     %d\n", s.RetainedItemsLimit)
	fmt.Printf("  Auto-hide:          %ds\n", s.AutoHideSeconds)
	fmt.Println()
	fmt.Println(bold("Strip keys:"))
	for _, h := range overlay.Hints(b) {
		fmt.Printf("  %s\n", h)
	}
	fmt.Println(bold("Settings panel keys:"))
	for _, h := range overlay.SettingsHints(b) {
		fmt.Printf("  %s\n", h)
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "stats",
		Short:   "Summarise clipboard activity",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStats(v) },
	}
	cmd.Flags().Int("days", 7, "number of days to include")
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD); overrides --days")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD, inclusive; default today)")
	addConfigFlags(cmd)
	return cmd
}

func runStats(v *viper.Viper) error {
	cfg, paths, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer setupLogging(cfg)()

	db, err := storage.Open(paths.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	if from := v.GetString("from"); from != "" {
		start, end, err := statsRange(from, v.GetString("to"))
		if err != nil {
			return err
		}
		overall, err := db.GetStatsForDateRange(start, end)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s to %s\n", bold("Activity:"), start.Format(time.DateOnly), end.Format(time.DateOnly))
		printOverall(overall, green)
		return nil
	}

	days := v.GetInt("days")
	overall, err := db.GetOverallStats(days)
	if err != nil {
		return err
	}
	daily, err := db.GetDailyStats(days)
	if err != nil {
		return err
	}

	fmt.Printf("%s last %d days\n", bold("Activity:"), days)
	printOverall(overall, green)
	for _, d := range daily {
		fmt.Printf("  %s  %3d captured  %3d copied\n", d.Date, d.Captures, d.Copies)
	}
	return nil
}

func printOverall(overall *storage.OverallStats, green func(...any) string) {
	fmt.Printf("  Captured:    %s (%d bytes)\n", green(overall.Captures), overall.CapturedBytes)
	fmt.Printf("  Promoted:    %d\n", overall.Promotes)
	fmt.Printf("  Copied back: %d\n", overall.Copies)
	fmt.Printf("  Suppressed:  %d\n", overall.Suppressed)
	fmt.Printf("  Distinct:    %d\n", overall.DistinctItems)
}

// statsRange parses local dates; to is inclusive and defaults to now.
func statsRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(time.DateOnly, from, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date: %w", err)
	}
	end := time.Now()
	if to != "" {
		t, err := time.ParseInLocation(time.DateOnly, to, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date: %w", err)
		}
		end = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to is before --from")
	}
	return start, end, nil
}

func newAutostartCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "autostart [on|off]",
		Short:     "Show or change whether membrain starts at login",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(_ *cobra.Command, args []string) error {
			as := platform.NewAutostart()
			if len(args) == 1 {
				switch args[0] {
				case "on", "off":
					if err := as.SetEnabled(args[0] == "on"); err != nil {
						return autostartErr(err)
					}
				default:
					return fmt.Errorf("expected on or off, got %q", args[0])
				}
			}
			enabled, err := as.Enabled()
			if err != nil {
				return autostartErr(err)
			}
			state := "off"
			if enabled {
				state = "on"
			}
			fmt.Printf("autostart: %s\n", state)
			return nil
		},
	}
}

func autostartErr(err error) error {
	if errors.Is(err, platform.ErrUnsupported) {
		return fmt.Errorf("autostart is only available on Windows")
	}
	return err
}
