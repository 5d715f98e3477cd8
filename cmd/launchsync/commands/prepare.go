package commands

import (
	"log/slog"

	"launchsync/internal/scrapers/nextspaceflight"
	"launchsync/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var prepareAllPages *bool

func init() {
	prepareAllPages = prepareCmd.Flags().Bool("all-pages", false, "Prepare the output of `fetch --all-pages`.")
	rootCmd.AddCommand(prepareCmd)
}

var prepareCmd = &cobra.Command{
	Use:   "prepare [processed.json]",
	Short: "Compares processed launches with the Bitable and writes the missing ones to a to-sync file.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service := newService(cmd.Context(), newClock(), newTel(), true)

		processed := service.Paths().Processed(nextspaceflight.SourceName, *prepareAllPages)
		if len(args) > 0 {
			processed = args[0]
		}

		result, err := service.Prepare(cmd.Context(), processed)
		if err != nil {
			serviceutil.Fatal("failed to prepare sync", err)
		}
		slog.Info(
			"prepared sync",
			"input", result.Plan.Input,
			"eligible", result.Plan.Eligible,
			"existing", result.Plan.Existing,
			"planned", len(result.Batch.Records),
			"file", result.Batch.Path,
		)
	},
}
