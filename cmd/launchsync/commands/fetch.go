package commands

import (
	"log/slog"

	"launchsync/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	fetchAllPages *bool
	fetchMaxPages *int
)

func init() {
	fetchAllPages = fetchCmd.Flags().Bool("all-pages", false, "Follow the listing's pages until it runs out of results.")
	fetchMaxPages = fetchCmd.Flags().Int("max-pages", 0, "The most pages to request with --all-pages, overrides the config.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [--all-pages] [--max-pages <n>]",
	Short: "Downloads the launch listing and extracts it into a processed JSON file.",
	Run: func(cmd *cobra.Command, args []string) {
		if *fetchMaxPages > 0 {
			config.Fetch.MaxPages = *fetchMaxPages
		}
		clock := newClock()
		service := newService(cmd.Context(), clock, newTel(), false)

		result, err := service.Fetch(cmd.Context(), *fetchAllPages)
		if err != nil {
			serviceutil.Fatal("failed to fetch launches", err)
		}
		slog.Info(
			"fetched launches",
			"records", len(result.Records),
			"html", result.HTMLPath,
			"processed", result.ProcessedPath,
		)
	},
}
