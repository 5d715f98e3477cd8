package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"launchsync/internal/scrapers/nextspaceflight"
	"launchsync/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyLimit    *int
	historyLaunches *bool
)

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 20, "The most rows to show, 0 shows every row.")
	historyLaunches = historyCmd.Flags().Bool("launches", false, "Show archived launches instead of sync runs.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>] [--launches]",
	Short: "Shows the sync runs and launches kept in the local archive.",
	Run: func(cmd *cobra.Command, args []string) {
		clock := newClock()
		archive, ok := openArchive(cmd.Context(), clock, newTel())
		if !ok {
			serviceutil.Fatal("failed to open archive", errors.New("no usable archive configured"))
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)

		if *historyLaunches {
			launches, err := archive.Launches(cmd.Context(), nextspaceflight.SourceName, *historyLimit)
			if err != nil {
				serviceutil.Fatal("failed to read launches", err)
			}
			t.AppendHeader(table.Row{"Time", "Mission", "Vehicle", "Status", "Provider"})
			for _, l := range launches {
				when := "-"
				if l.TimestampMs != nil {
					when = time.UnixMilli(*l.TimestampMs).In(clock.Location()).Format("2006-01-02 15:04")
				}
				t.AppendRow(table.Row{when, l.Mission, l.Vehicle, l.Status, l.Provider})
			}
			t.Render()
			return
		}

		runs, err := archive.Runs(cmd.Context(), *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to read runs", err)
		}
		t.AppendHeader(table.Row{"Run", "Started", "Duration", "State", "Progress", "Written", "Skipped", "Failed", "Error"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.ID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
				r.State,
				fmt.Sprintf("%d/%d", r.NextIndex, r.Total),
				r.Written,
				r.Skipped,
				r.Failed,
				r.Error,
			})
		}
		t.Render()
	},
}
