// membrain: clipboard history with a hotkey-summoned overlay.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "membrain",
		Short: "Clipboard history with a hotkey-summoned overlay",
		Long: `membrain records text and images copied to the clipboard and shows them
in an overlay summoned with a global hotkey (CapsLock+D by default).

Run "membrain run" to start the agent. The other commands read the
persisted history and settings and do not need a running agent.

Configuration lives in config.toml under the user config directory.
Flags can also be set via MEMBRAIN_<FLAG> env vars.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newHistoryCmd(),
		newSettingsCmd(),
		newStatsCmd(),
		newAutostartCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("membrain %s\n", Version)
		},
	}
}
