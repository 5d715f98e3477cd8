package commands

import (
	"fmt"

	"launchsync/internal/application"
	"launchsync/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	runAllPages      *bool
	runDelay         *float64
	runPreWriteCheck *bool
)

func init() {
	runAllPages = runCmd.Flags().Bool("all-pages", false, "Fetch every page of the listing.")
	runDelay = runCmd.Flags().Float64("delay", 0.2, "Seconds to wait between two records, overrides the config.")
	runPreWriteCheck = runCmd.Flags().Bool("pre-write-check", true, "Query the Bitable for each record right before creating it.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--all-pages]",
	Short: "Runs fetch, prepare and execute once.",
	Run: func(cmd *cobra.Command, args []string) {
		service := newService(cmd.Context(), newClock(), newTel(), true)

		options := executorOptions(runDelay, runPreWriteCheck, cmd.Flags().Changed)
		if !cmd.Flags().Changed("pre-write-check") {
			options.PreWriteCheck = *runPreWriteCheck
		}

		summary, err := service.Run(cmd.Context(), application.RunOptions{
			AllPages: *runAllPages,
			Execute:  options,
		})
		fmt.Print(summary.Text())
		if err != nil {
			serviceutil.Fatal("sync flow failed", err)
		}
	},
}
