package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "launchsync",
	Short: "launchsync scrapes rocket launches from nextspaceflight.com and syncs them into a Feishu Bitable.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadGlobals()
	},
}

var (
	configPath *string
	verbose    *bool
	dataDir    *string
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file, a config.local.json5 next to it overrides it.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages.")
	dataDir = rootCmd.PersistentFlags().String("data-dir", "", "Overrides the data directory of the config.")
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	closeGlobals()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
