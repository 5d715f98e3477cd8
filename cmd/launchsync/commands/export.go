package commands

import (
	"bufio"
	"io"
	"os"

	"launchsync/internal/application"
	"launchsync/internal/launch"
	"launchsync/internal/scrapers/nextspaceflight"
	"launchsync/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	exportOut      *string
	exportAllPages *bool
)

func init() {
	exportOut = exportCmd.Flags().StringP("out", "o", "", "The CSV file to write, defaults to stdout.")
	exportAllPages = exportCmd.Flags().Bool("all-pages", false, "Export the output of `fetch --all-pages`.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [records.json] [-o <out.csv>]",
	Short: "Exports a processed or to-sync file as CSV.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		input := application.NewPaths(config.DataDir).Processed(nextspaceflight.SourceName, *exportAllPages)
		if len(args) > 0 {
			input = args[0]
		}
		records, err := launch.ReadFile(input)
		if err != nil {
			serviceutil.Fatal("failed to read records", err)
		}

		var out io.Writer = os.Stdout
		if *exportOut != "" {
			f, err := os.Create(*exportOut)
			if err != nil {
				serviceutil.Fatal("failed to create output", err)
			}
			defer f.Close()
			out = f
		}
		buffered := bufio.NewWriter(out)

		err = launch.WriteCSV(buffered, records, newClock().Location())
		if err != nil {
			serviceutil.Fatal("failed to write csv", err)
		}
		err = buffered.Flush()
		if err != nil {
			serviceutil.Fatal("failed to write csv", err)
		}
	},
}
