package commands

import (
	"fmt"
	"log/slog"
	"os"

	"launchsync/internal/scrapers/nextspaceflight"
	"launchsync/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	executeAllPages      *bool
	executeDelay         *float64
	executePreWriteCheck *bool
)

func init() {
	executeAllPages = executeCmd.Flags().Bool("all-pages", false, "Execute the output of `prepare --all-pages`.")
	executeDelay = executeCmd.Flags().Float64("delay", 0.2, "Seconds to wait between two records, overrides the config.")
	executePreWriteCheck = executeCmd.Flags().Bool("pre-write-check", false, "Query the Bitable for each record right before creating it.")
	rootCmd.AddCommand(executeCmd)
}

var executeCmd = &cobra.Command{
	Use:   "execute [to_sync.json] [--delay <seconds>] [--pre-write-check]",
	Short: "Writes a to-sync file into the Bitable, resuming an interrupted run of the same file.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service := newService(cmd.Context(), newClock(), newTel(), true)

		paths := service.Paths()
		toSync := paths.ToSync(paths.Processed(nextspaceflight.SourceName, *executeAllPages))
		if len(args) > 0 {
			toSync = args[0]
		}

		options := executorOptions(executeDelay, executePreWriteCheck, cmd.Flags().Changed)
		result, err := service.Execute(cmd.Context(), toSync, options)
		slog.Info(
			"executed sync",
			"run", result.RunID,
			"state", result.Result.State,
			"next_index", result.Result.NextIndex,
			"total", result.Result.Total,
			"written", result.Result.Written,
			"skipped", result.Result.Skipped,
			"failed", result.Result.Failed,
		)
		for _, mission := range result.Result.FailedMissions {
			fmt.Fprintln(os.Stderr, "failed:", mission)
		}
		if err != nil {
			serviceutil.Fatal("failed to execute sync", err)
		}
	},
}
