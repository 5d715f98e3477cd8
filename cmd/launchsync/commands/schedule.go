package commands

import (
	"log/slog"
	"time"

	"launchsync/internal/application"
	"launchsync/internal/components/chrono"
	libtelemetry "launchsync/lib/telemetry"
	"launchsync/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	scheduleMode     *string
	scheduleWeekday  *int
	scheduleHour     *int
	scheduleMinute   *int
	scheduleAllPages *bool
	scheduleDelay    *float64
)

func init() {
	scheduleMode = scheduleCmd.Flags().String("mode", "weekly", "Either daily or weekly.")
	scheduleWeekday = scheduleCmd.Flags().Int("weekday", 0, "The weekday of weekly runs, Monday = 0 to Sunday = 6.")
	scheduleHour = scheduleCmd.Flags().Int("hour", 3, "The hour runs start at.")
	scheduleMinute = scheduleCmd.Flags().Int("minute", 0, "The minute runs start at.")
	scheduleAllPages = scheduleCmd.Flags().Bool("all-pages", false, "Fetch every page of the listing on each run.")
	scheduleDelay = scheduleCmd.Flags().Float64("delay", 0.2, "Seconds to wait between two records, overrides the config.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--mode daily|weekly] [--weekday <0-6>] [--hour <h>] [--minute <m>]",
	Short: "Runs the sync flow on a schedule in the configured time zone until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		flags := cmd.Flags()

		cfg := config.Schedule
		if flags.Changed("mode") {
			cfg.Mode = *scheduleMode
		}
		if flags.Changed("weekday") {
			cfg.Weekday = *scheduleWeekday
		}
		if flags.Changed("hour") {
			cfg.Hour = *scheduleHour
		}
		if flags.Changed("minute") {
			cfg.Minute = *scheduleMinute
		}
		if flags.Changed("all-pages") {
			cfg.AllPages = *scheduleAllPages
		}

		clock := newClock()
		tel := newTel()
		service := newService(ctx, clock, tel, true)

		options := application.RunOptions{
			Execute: executorOptions(scheduleDelay, nil, flags.Changed),
		}
		options.Execute.PreWriteCheck = true

		cron := chrono.NewStandardCron(clock.Location(), tel)
		spec, err := service.Schedule(ctx, cron, cfg, options)
		if err != nil {
			cron.Stop()
			serviceutil.Fatal("failed to schedule sync", err)
		}

		libtelemetry.InstrumentPerfStats(ctx, 30*time.Second)
		slog.Info(
			"scheduled sync",
			"spec", spec,
			"time_zone", clock.Location().String(),
			"next", cron.Next().Format(time.RFC3339),
		)

		<-ctx.Done()
		slog.Info("stopping scheduler, waiting for a running sync to finish")
		cron.Stop()
	},
}
